package events

import (
	"context"
	"time"

	"github.com/collab-market/backend/internal/models"
	"github.com/google/uuid"
)

// Streams
const (
	StreamOffer      = "events:offer"
	StreamMessage    = "events:message"
	StreamConnection = "events:connection"
)

// Event types
const (
	EventOfferStatusChanged = "offer_status_changed"
	EventMessageCreated     = "message_created"
	EventConnectionState    = "connection_state"
	EventDeliveryFailed     = "delivery_failed"
)

// Connection states reported to a sender while queued messages drain.
const (
	StateConnecting = "connecting"
	StateConnected  = "connected"
)

// Event carries exactly one payload matching Type. Recipients are the user ids it is
// pushed to.
type Event struct {
	Type       string              `json:"type"`
	Recipients []uuid.UUID         `json:"recipients"`
	Message    *models.ChatMessage `json:"message,omitempty"`
	Offer      *OfferStatusChange  `json:"offer,omitempty"`
	Connection *ConnectionState    `json:"connection,omitempty"`
	Failure    *DeliveryFailure    `json:"failure,omitempty"`
}

type OfferStatusChange struct {
	OfferID    uuid.UUID  `json:"offer_id"`
	CampaignID *uuid.UUID `json:"campaign_id,omitempty"`
	OldStatus  string     `json:"old_status"`
	NewStatus  string     `json:"new_status"`
	ActorID    uuid.UUID  `json:"actor_id"`
	At         time.Time  `json:"at"`
}

type ConnectionState struct {
	State   string `json:"state"`
	Pending int    `json:"pending"`
}

type DeliveryFailure struct {
	ClientID   string    `json:"client_id,omitempty"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Reason     string    `json:"reason"`
}

func MessageCreated(m models.ChatMessage) Event {
	return Event{Type: EventMessageCreated, Recipients: []uuid.UUID{m.ReceiverID, m.SenderID}, Message: &m}
}

func ConnectionChanged(user uuid.UUID, state string, pending int) Event {
	return Event{Type: EventConnectionState, Recipients: []uuid.UUID{user}, Connection: &ConnectionState{State: state, Pending: pending}}
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
