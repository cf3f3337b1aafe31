package message

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message represents the messages table
type Message struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"senderId"`
	ReceiverID uuid.UUID `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Seen       bool      `json:"seen"`
	// Seq breaks createdAt ties in insertion order; assigned by the store.
	Seq int64 `json:"-"`
}

// MaxTextBytes caps message text so a pushed frame stays well under the
// websocket read limit.
const MaxTextBytes = 64 << 10

// HasContent reports whether at least one of text or image is present.
func HasContent(text, image string) bool {
	return strings.TrimSpace(text) != "" || strings.TrimSpace(image) != ""
}

// ConversationKey identifies the unordered pair {a, b}. The same key is
// produced whichever participant is passed first.
func ConversationKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}

// Participants reports whether the message belongs to the conversation {a, b}.
func (m Message) Participants(a, b uuid.UUID) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}
