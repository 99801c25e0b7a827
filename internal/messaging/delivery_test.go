package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/collab-market/backend/internal/apperrors"
	"github.com/collab-market/backend/internal/events"
	"github.com/collab-market/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type recorder struct {
	mu        sync.Mutex
	delivered []models.ChatMessage
	failed    []models.ChatMessage
	states    []string
	done      chan struct{}
	expect    int
}

func newRecorder(expect int) *recorder {
	return &recorder{done: make(chan struct{}), expect: expect}
}

func (r *recorder) hooks() DeliveryHooks {
	return DeliveryHooks{
		Delivered: func(_ context.Context, m models.ChatMessage) {
			r.mu.Lock()
			r.delivered = append(r.delivered, m)
			r.mu.Unlock()
		},
		Failed: func(_ context.Context, m models.ChatMessage, _ error) {
			r.mu.Lock()
			r.failed = append(r.failed, m)
			r.mu.Unlock()
		},
		StateChanged: func(_ context.Context, _ uuid.UUID, state string, _ int) {
			r.mu.Lock()
			r.states = append(r.states, state)
			if state == events.StateConnected {
				r.expect--
				if r.expect == 0 {
					close(r.done)
				}
			}
			r.mu.Unlock()
		},
	}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("backlog did not drain")
	}
}

var fastRetry = DeliveryConfig{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxElapsed: time.Second}

func TestDeliveryQueueRetriesTransientFailures(t *testing.T) {
	var (
		mu       sync.Mutex
		attempts int
	)
	persist := func(_ context.Context, m *models.ChatMessage) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts <= 3 {
			return &apperrors.StoreUnavailableError{Op: "create message", Err: errors.New("connection refused")}
		}
		m.ID = uuid.New()
		m.Timestamp = time.Now()
		return nil
	}

	rec := newRecorder(1)
	q := NewDeliveryQueue(persist, rec.hooks(), fastRetry, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	sender, receiver := uuid.New(), uuid.New()
	var want []string
	for i := range 3 {
		m := models.ChatMessage{SenderID: sender, ReceiverID: receiver, Content: "m", ClientID: string(rune('a' + i))}
		want = append(want, m.ClientID)
		q.Enqueue(ctx, m)
	}
	if n := q.PendingFor(models.ConversationKey(receiver, sender)); n != 3 {
		t.Errorf("PendingFor = %d, want 3", n)
	}

	done := make(chan struct{})
	go func() { q.Run(ctx); close(done) }()

	rec.wait(t)
	cancel()
	<-done

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.delivered) != 3 || len(rec.failed) != 0 {
		t.Fatalf("delivered=%d failed=%d, want 3/0", len(rec.delivered), len(rec.failed))
	}
	for i, m := range rec.delivered {
		if m.ClientID != want[i] {
			t.Errorf("delivery %d = %s, want %s", i, m.ClientID, want[i])
		}
		if m.ID == uuid.Nil {
			t.Errorf("delivery %d has no server id", i)
		}
	}
	if len(rec.states) != 2 || rec.states[0] != events.StateConnecting || rec.states[1] != events.StateConnected {
		t.Errorf("states = %v, want [connecting connected]", rec.states)
	}
	if q.Len() != 0 || q.PendingFor(models.ConversationKey(sender, receiver)) != 0 {
		t.Error("queue not empty after drain")
	}
}

func TestDeliveryQueueDropsOnPermanentError(t *testing.T) {
	persist := func(context.Context, *models.ChatMessage) error {
		return errors.New("violates check constraint")
	}
	rec := newRecorder(1)
	q := NewDeliveryQueue(persist, rec.hooks(), fastRetry, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { q.Run(ctx); close(done) }()

	q.Enqueue(ctx, models.ChatMessage{SenderID: uuid.New(), ReceiverID: uuid.New(), Content: "x", ClientID: "c1"})
	rec.wait(t)
	cancel()
	<-done

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.failed) != 1 || rec.failed[0].ClientID != "c1" {
		t.Errorf("failed = %+v, want c1", rec.failed)
	}
}

func TestDeliveryQueueStopsOnCancel(t *testing.T) {
	persist := func(context.Context, *models.ChatMessage) error {
		return &apperrors.StoreUnavailableError{Op: "create message", Err: errors.New("down")}
	}
	q := NewDeliveryQueue(persist, DeliveryHooks{}, DeliveryConfig{InitialInterval: time.Millisecond, MaxElapsed: time.Hour}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { q.Run(ctx); close(done) }()

	q.Enqueue(ctx, models.ChatMessage{SenderID: uuid.New(), ReceiverID: uuid.New(), Content: "x"})
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want the undelivered message kept", q.Len())
	}
}
