package echo

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomPhoneNumber_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^\+996(500|555|700|777|999)\d{7}$`)
	for i := 0; i < 50; i++ {
		number := randomPhoneNumber()
		assert.Regexp(t, pattern, number)
	}
}

func TestRandomChatID_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^996\d{10}@c\.us$`)
	for i := 0; i < 50; i++ {
		assert.Regexp(t, pattern, randomChatID())
	}
}

func TestGenerateReply_ImageCaptionKeywords(t *testing.T) {
	tests := []struct {
		name    string
		caption string
		want    string
	}{
		{
			name:    "damaged item routes to support",
			caption: "This is the item I received, it arrived damaged.",
			want:    "Thank you for your message. We can see the item is damaged. Please contact our support team to arrange a return.",
		},
		{
			name:    "defect routes to support",
			caption: "I photographed a DEFECT on the product, what should I do?",
			want:    "Thank you for your message. We can see the item is damaged. Please contact our support team to arrange a return.",
		},
		{
			name:    "receipt acknowledged",
			caption: "Receipt photo for the return of order #67890.",
			want:    "Receipt received. We will verify the details and get back to you shortly.",
		},
		{
			name:    "delivery question",
			caption: "This is a photo of my order, when will it be delivered?",
			want:    "Thanks for the photo. We will check the delivery status and let you know.",
		},
		{
			name:    "generic image",
			caption: "Sent a photo of the item, is this what I ordered?",
			want:    "Thank you for sending the picture! We will check your order and contact you.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &webhookMessage{
				TypeMessage:      "imageMessage",
				ImageMessageData: &imageMessageData{Caption: tt.caption},
			}
			assert.Equal(t, tt.want, generateReply(msg))
		})
	}
}

func TestGenerateReply_NonImageTypes(t *testing.T) {
	text := &webhookMessage{TypeMessage: "textMessage"}
	assert.Equal(t, "Thank you for your message! We will process your request and reply shortly.", generateReply(text))

	unknown := &webhookMessage{TypeMessage: "locationMessage"}
	assert.Equal(t, "Message received. We will contact you to clarify the details.", generateReply(unknown))

	imageNoData := &webhookMessage{TypeMessage: "imageMessage"}
	assert.Equal(t, "Thank you for sending the picture! We will check your order and contact you.", generateReply(imageNoData))
}
