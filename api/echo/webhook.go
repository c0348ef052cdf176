package echo

import (
	"fmt"
	"math/rand"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	waerrors "go.pilab.hu/wabroker/errors"
	"go.pilab.hu/wabroker/notify"
	"go.pilab.hu/wabroker/services"
)

// WebhookAPI is the mock inbound-webhook simulator: it fabricates
// incoming customer messages and replays canned replies over the
// session's client connections. Intended for frontend development
// against a broker with no real traffic.
type WebhookAPI struct {
	sessions *services.SessionService
	hub      *notify.Hub
	apiKey   string
}

// NewWebhookAPI initializes the webhook simulator.
func NewWebhookAPI(sessions *services.SessionService, hub *notify.Hub, apiKey string) *WebhookAPI {
	return &WebhookAPI{sessions: sessions, hub: hub, apiKey: apiKey}
}

// RegisterRoutes registers the simulator routes.
func (w *WebhookAPI) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/whatsapp_bot/webhook/:instance", w.GetHandler)
	e.POST("/api/v1/whatsapp_bot/webhook/:instance", w.PostHandler)
}

var captions = []string{
	"Here is a photo of my order #12345, please check it!",
	"This is the item I received, it arrived damaged.",
	"This is what the product looks like, can it be replaced?",
	"Receipt photo for the return of order #67890.",
	"Here is a picture of the box, some parts are missing.",
	"Sent a photo of the item, is this what I ordered?",
	"I photographed a defect on the product, what should I do?",
	"This is a photo of my order, when will it be delivered?",
	"Can you check whether this is the right item for me?",
	"Sending a photo to confirm the order.",
}

var thumbnailURLs = []string{
	"https://placehold.co/50x50",
	"https://picsum.photos/50",
	"https://placehold.co/60x60",
	"https://picsum.photos/60",
	"https://placehold.co/48x48",
	"https://picsum.photos/48",
	"https://placehold.co/64x64",
	"https://picsum.photos/64",
	"https://placehold.co/55x55",
	"https://picsum.photos/55",
}

// randomPhoneNumber generates a random Kyrgyzstan phone number.
func randomPhoneNumber() string {
	operators := []string{"500", "555", "700", "777", "999"}
	operator := operators[rand.Intn(len(operators))]
	subscriber := 1000000 + rand.Intn(9000000)
	return fmt.Sprintf("+996%s%07d", operator, subscriber)
}

// randomChatID generates a random chat ID in the [phone]@c.us format.
func randomChatID() string {
	return strings.TrimPrefix(randomPhoneNumber(), "+") + "@c.us"
}

// webhookMessage is the inbound payload shape the simulator produces
// and accepts.
type webhookMessage struct {
	TypeMessage      string            `json:"typeMessage"`
	ImageMessageData *imageMessageData `json:"imageMessageData,omitempty"`
}

type imageMessageData struct {
	DownloadURL   string `json:"downloadUrl,omitempty"`
	Caption       string `json:"caption,omitempty"`
	JpegThumbnail string `json:"jpegThumbnail,omitempty"`
	MimeType      string `json:"mimeType,omitempty"`
}

type senderData struct {
	ChatID string `json:"chatId"`
}

type webhookPayload struct {
	Instance    string          `json:"instance"`
	TypeWebhook string          `json:"typeWebhook,omitempty"`
	MessageData *webhookMessage `json:"messageData"`
	SenderData  *senderData     `json:"senderData,omitempty"`
}

// generateReply produces a canned reply keyed on message type and
// caption keywords.
func generateReply(msg *webhookMessage) string {
	switch msg.TypeMessage {
	case "imageMessage":
		caption := ""
		if msg.ImageMessageData != nil {
			caption = strings.ToLower(msg.ImageMessageData.Caption)
		}
		switch {
		case strings.Contains(caption, "damaged") || strings.Contains(caption, "defect"):
			return "Thank you for your message. We can see the item is damaged. Please contact our support team to arrange a return."
		case strings.Contains(caption, "receipt") || strings.Contains(caption, "confirm"):
			return "Receipt received. We will verify the details and get back to you shortly."
		case strings.Contains(caption, "deliver"):
			return "Thanks for the photo. We will check the delivery status and let you know."
		default:
			return "Thank you for sending the picture! We will check your order and contact you."
		}
	case "textMessage":
		return "Thank you for your message! We will process your request and reply shortly."
	default:
		return "Message received. We will contact you to clarify the details."
	}
}

// GetHandler returns a randomized inbound message for the instance.
// Requires api_key in the query string.
func (w *WebhookAPI) GetHandler(c echo.Context) error {
	if w.apiKey == "" || c.QueryParam("api_key") != w.apiKey {
		return c.JSON(http.StatusForbidden, waerrors.NewUnauthorized("invalid or missing api_key"))
	}

	instance := c.Param("instance")
	return c.JSON(http.StatusOK, &webhookPayload{
		Instance:    instance,
		TypeWebhook: "incomingMessageReceived",
		MessageData: &webhookMessage{
			TypeMessage: "imageMessage",
			ImageMessageData: &imageMessageData{
				DownloadURL:   "https://url-to-image",
				Caption:       captions[rand.Intn(len(captions))],
				JpegThumbnail: thumbnailURLs[rand.Intn(len(thumbnailURLs))],
				MimeType:      "image/jpeg",
			},
		},
		SenderData: &senderData{ChatID: randomChatID()},
	})
}

// outgoingMessage is pushed over the instance's client connections when
// the simulator replies.
type outgoingMessage struct {
	Instance string `json:"instance"`
	Type     string `json:"type"`
	Message  string `json:"message"`
	ChatID   string `json:"chatId"`
}

// PostHandler accepts an inbound message for a known session and pushes
// a canned reply to its subscribed connections. Requires a Bearer API
// key.
func (w *WebhookAPI) PostHandler(c echo.Context) error {
	authHeader := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return c.JSON(http.StatusUnauthorized, waerrors.NewUnauthorized("authorization header missing or invalid"))
	}
	if w.apiKey == "" || strings.TrimPrefix(authHeader, "Bearer ") != w.apiKey {
		return c.JSON(http.StatusForbidden, waerrors.NewUnauthorized("invalid API key"))
	}

	instance := c.Param("instance")
	var payload webhookPayload
	if err := c.Bind(&payload); err != nil || payload.MessageData == nil {
		return c.JSON(http.StatusBadRequest, waerrors.NewNotFound("invalid message data"))
	}

	if !w.sessions.Exists(c.Request().Context(), instance) {
		return c.JSON(http.StatusNotFound, waerrors.NewNotFound("instance "+instance+" not found"))
	}

	reply := generateReply(payload.MessageData)
	chatID := randomChatID()
	if payload.SenderData != nil && payload.SenderData.ChatID != "" {
		chatID = payload.SenderData.ChatID
	}

	delivered := w.hub.Send(instance, &outgoingMessage{
		Instance: instance,
		Type:     "outgoingMessage",
		Message:  reply,
		ChatID:   chatID,
	})
	if !delivered {
		log.Warn().Str("instance", instance).Msg("No client connection for instance, reply not pushed")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"instance": instance,
		"status":   "received",
		"reply":    reply,
	})
}
