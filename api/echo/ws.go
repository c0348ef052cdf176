package echo

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens in the CORS layer; the ws endpoint
	// carries no identity until a sessionId is registered.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type subscribeMessage struct {
	SessionID string `json:"sessionId"`
}

// WebSocketHandler upgrades the connection and registers it for every
// sessionId the client announces. The hub holds back-references only;
// closing the socket deregisters it everywhere and cleans up sessions
// left without a subscriber.
func (a *SessionAPI) WebSocketHandler(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("WebSocket client connected")

	defer func() {
		// A disconnect that empties a session's subscriber set releases
		// its automation resources; the durable record stays. The request
		// context is already cancelled here.
		for _, sessionID := range a.hub.Unsubscribe(conn) {
			a.sessions.Cleanup(context.Background(), sessionID)
		}
		_ = conn.Close()
		log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("WebSocket client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		var msg subscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Msg("Ignoring malformed WebSocket message")
			continue
		}
		if msg.SessionID != "" {
			a.hub.Subscribe(msg.SessionID, conn)
		}
	}
}
