// Package messaging implements real-time fan-out, delivery-delay queuing and the
// client-side conversation model for chat messages.
package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/collab-market/backend/internal/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSlowSubscriber = errors.New("subscriber fell behind and was dropped")

const DefaultSubscriptionBuffer = 64

// Subscription streams events addressed to one user. C is closed after Unsubscribe or when
// the subscriber falls too far behind; Err tells the two apart.
type Subscription struct {
	id     uint64
	UserID uuid.UUID
	ch     chan events.Event
	err    atomic.Pointer[error]
	closed bool // guarded by Hub.mu
}

func (s *Subscription) C() <-chan events.Event { return s.ch }

// Err returns ErrSlowSubscriber if the hub dropped the subscription, nil otherwise.
func (s *Subscription) Err() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[uint64]*Subscription
	nextID atomic.Uint64
	buffer int
	log    *zap.Logger
}

func NewHub(buffer int, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	return &Hub{subs: make(map[uuid.UUID]map[uint64]*Subscription), buffer: buffer, log: log}
}

// Start feeds the hub from every event stream.
func (h *Hub) Start(ctx context.Context, sub events.Subscriber) error {
	for _, stream := range []string{events.StreamMessage, events.StreamOffer, events.StreamConnection} {
		if err := sub.Subscribe(ctx, stream, h.Dispatch); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) Subscribe(userID uuid.UUID) *Subscription {
	s := &Subscription{id: h.nextID.Add(1), UserID: userID, ch: make(chan events.Event, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]*Subscription)
	}
	h.subs[userID][s.id] = s
	return s
}

// Unsubscribe stops delivery to s. Calling it more than once is a no-op.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscription) {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	if m := h.subs[s.UserID]; m != nil {
		delete(m, s.id)
		if len(m) == 0 {
			delete(h.subs, s.UserID)
		}
	}
}

// Dispatch pushes e to every live subscription of its recipients. It never blocks: a
// subscription whose buffer is full is dropped so the client reconnects and reloads history.
func (h *Hub) Dispatch(e events.Event) {
	var lagging []*Subscription

	h.mu.RLock()
	seen := make(map[uuid.UUID]bool, len(e.Recipients))
	for _, uid := range e.Recipients {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		for _, s := range h.subs[uid] {
			select {
			case s.ch <- e:
			default:
				lagging = append(lagging, s)
			}
		}
	}
	h.mu.RUnlock()

	if len(lagging) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range lagging {
		if s.closed {
			continue
		}
		err := ErrSlowSubscriber
		s.err.Store(&err)
		h.removeLocked(s)
		h.log.Warn("dropping slow subscriber", zap.String("user_id", s.UserID.String()))
	}
}

// Subscribers returns the number of live subscriptions for userID.
func (h *Hub) Subscribers(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
