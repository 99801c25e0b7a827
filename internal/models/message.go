package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message types
const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
)

// ChatMessage is append-only; it is never edited after creation.
type ChatMessage struct {
	ID         uuid.UUID  `json:"id"`
	SenderID   uuid.UUID  `json:"sender_id"`
	ReceiverID uuid.UUID  `json:"receiver_id"`
	Content    string     `json:"content"`
	Type       string     `json:"type"`
	Timestamp  time.Time  `json:"timestamp"`
	ClientID   string     `json:"client_id,omitempty"`
	OfferID    *uuid.UUID `json:"offer_id,omitempty"`
}

// ConversationSummary is the latest message between the caller and one counterparty.
type ConversationSummary struct {
	Key            string      `json:"key"`
	CounterpartyID uuid.UUID   `json:"counterparty_id"`
	LastMessage    ChatMessage `json:"last_message"`
}

// ConversationKey identifies the conversation between two users. It is symmetric and
// depends only on the two ids: the canonical string forms sorted and joined with ":".
func ConversationKey(a, b uuid.UUID) string {
	x, y := strings.ToLower(a.String()), strings.ToLower(b.String())
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}
