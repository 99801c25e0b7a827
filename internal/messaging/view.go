package messaging

import (
	"slices"
	"sync"
	"time"

	"github.com/collab-market/backend/internal/models"
	"github.com/google/uuid"
)

// Entry states in a ConversationView.
const (
	EntryPending = "pending" // sent locally, no server answer yet
	EntryQueued  = "queued"  // accepted into the delivery queue
	EntryFailed  = "failed"
	EntrySent    = "sent" // confirmed by the server
)

type ViewEntry struct {
	Message models.ChatMessage `json:"message"`
	State   string             `json:"state"`
}

// ConversationView is the client-side model of one conversation. Locally appended messages
// are replaced in place when the authoritative copy arrives, so a caught-up view holds
// exactly one copy of each message.
type ConversationView struct {
	mu         sync.Mutex
	self, peer uuid.UUID
	entries    []*ViewEntry
	warning    string
	warnUntil  time.Time
	warningTTL time.Duration
	now        func() time.Time
}

func NewConversationView(self, peer uuid.UUID, warningTTL time.Duration) *ConversationView {
	return &ConversationView{self: self, peer: peer, warningTTL: warningTTL, now: time.Now}
}

// WithClock replaces the time source.
func (v *ConversationView) WithClock(now func() time.Time) *ConversationView {
	v.now = now
	return v
}

// AppendPending adds an optimistic local entry and returns the client id to send with it.
func (v *ConversationView) AppendPending(content string) ViewEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	e := &ViewEntry{
		Message: models.ChatMessage{
			SenderID:   v.self,
			ReceiverID: v.peer,
			Content:    content,
			Type:       models.MessageTypeText,
			Timestamp:  v.now(),
			ClientID:   uuid.NewString(),
		},
		State: EntryPending,
	}
	v.entries = append(v.entries, e)
	return *e
}

// Reconcile merges an authoritative message from a send response, a subscription echo or
// a history load. Messages of other conversations are ignored.
func (v *ConversationView) Reconcile(msg models.ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reconcileLocked(msg)
}

// LoadHistory reconciles a page of history.
func (v *ConversationView) LoadHistory(msgs []models.ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range msgs {
		v.reconcileLocked(m)
	}
}

func (v *ConversationView) reconcileLocked(msg models.ChatMessage) {
	if models.ConversationKey(msg.SenderID, msg.ReceiverID) != models.ConversationKey(v.self, v.peer) {
		return
	}
	if e := v.findLocked(msg); e != nil {
		e.Message = msg
		e.State = EntrySent
		return
	}
	v.entries = append(v.entries, &ViewEntry{Message: msg, State: EntrySent})
}

// findLocked matches by server id, then client id, then for entries without a client id
// by sender, receiver and content of a still-unconfirmed entry.
func (v *ConversationView) findLocked(msg models.ChatMessage) *ViewEntry {
	for _, e := range v.entries {
		if e.Message.ID != uuid.Nil && e.Message.ID == msg.ID {
			return e
		}
	}
	if msg.ClientID != "" {
		for _, e := range v.entries {
			if e.Message.ClientID == msg.ClientID && e.Message.SenderID == msg.SenderID {
				return e
			}
		}
		return nil
	}
	for _, e := range v.entries {
		if e.State != EntrySent && e.Message.ClientID == "" &&
			e.Message.SenderID == msg.SenderID && e.Message.ReceiverID == msg.ReceiverID &&
			e.Message.Content == msg.Content {
			return e
		}
	}
	return nil
}

// MarkQueued flags a local entry as waiting in the delivery queue.
func (v *ConversationView) MarkQueued(clientID string) {
	v.setState(clientID, EntryQueued)
}

func (v *ConversationView) MarkFailed(clientID string) {
	v.setState(clientID, EntryFailed)
}

func (v *ConversationView) setState(clientID, state string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, e := range v.entries {
		if e.Message.ClientID == clientID && e.State != EntrySent {
			e.State = state
			return
		}
	}
}

// Discard removes an unconfirmed local entry, e.g. after a rate-limited send.
func (v *ConversationView) Discard(clientID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = slices.DeleteFunc(v.entries, func(e *ViewEntry) bool {
		return e.Message.ClientID == clientID && e.State != EntrySent
	})
}

// Warn shows a transient warning that clears itself after the view's warning TTL.
func (v *ConversationView) Warn(text string) {
	v.WarnFor(text, v.warningTTL)
}

func (v *ConversationView) WarnFor(text string, ttl time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.warning = text
	v.warnUntil = v.now().Add(ttl)
}

// Warning returns the active warning, if any.
func (v *ConversationView) Warning() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.warning == "" || !v.now().Before(v.warnUntil) {
		v.warning = ""
		return "", false
	}
	return v.warning, true
}

// Messages returns confirmed messages in timestamp order followed by unconfirmed local
// entries in the order they were appended.
func (v *ConversationView) Messages() []ViewEntry {
	v.mu.Lock()
	defer v.mu.Unlock()

	var sent, local []ViewEntry
	for _, e := range v.entries {
		if e.State == EntrySent {
			sent = append(sent, *e)
		} else {
			local = append(local, *e)
		}
	}
	slices.SortStableFunc(sent, func(a, b ViewEntry) int {
		return a.Message.Timestamp.Compare(b.Message.Timestamp)
	})
	return append(sent, local...)
}
