package domain

import "time"

// SessionStatus is the lifecycle state of a WhatsApp Web session. There
// is no persisted terminal state: removal of the record is termination.
type SessionStatus string

const (
	SessionStatusQRCode        SessionStatus = "QRCODE"
	SessionStatusAuthenticated SessionStatus = "AUTHENTICATED"
)

// Session is the canonical record of one login/automation flow. The
// durable copy lives in MongoDB; a TTL-bounded mirror lives in Redis.
type Session struct {
	ID        string        `bson:"_id" json:"sessionId"`
	UserID    string        `bson:"user_id" json:"userId"`
	Status    SessionStatus `bson:"status" json:"status"`
	CreatedAt time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updatedAt"`
}

// ChatPreview is a read-only snapshot of one conversation, scraped from
// the chat pane after authentication. Never persisted.
type ChatPreview struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image"`
}
