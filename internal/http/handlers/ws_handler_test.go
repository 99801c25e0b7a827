package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/collab-market/backend/internal/apperrors"
	"github.com/collab-market/backend/internal/models"
	"github.com/collab-market/backend/internal/services"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type chanWriter chan any

func (w chanWriter) write(v any) error {
	w <- v
	return nil
}

// stubSender blocks sends whose content is "slow" until release is closed.
type stubSender struct {
	release chan struct{}
	limited bool
}

func (s *stubSender) Send(ctx context.Context, in services.SendInput) (*models.ChatMessage, error) {
	if s.limited {
		return nil, &apperrors.RateLimitExceededError{Limit: 10, Window: 10 * time.Second, RetryAfter: 2 * time.Second}
	}
	if in.Content == "slow" {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &models.ChatMessage{ID: uuid.New(), SenderID: in.SenderID, ReceiverID: in.ReceiverID, Content: in.Content, ClientID: in.ClientID}, nil
}

func (s *stubSender) WarningTTL() time.Duration { return 4 * time.Second }

func nextFrame(t *testing.T, w chanWriter) outboundFrame {
	t.Helper()
	select {
	case v := <-w:
		f, ok := v.(outboundFrame)
		if !ok {
			t.Fatalf("frame type %T", v)
		}
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame written")
	}
	return outboundFrame{}
}

func TestSendFramesAreNotSerialized(t *testing.T) {
	sender := &stubSender{release: make(chan struct{})}
	h := &WSHandler{messages: sender, log: zap.NewNop()}
	w := make(chanWriter, 4)
	user, peer := uuid.New(), uuid.New()
	var inflight sync.WaitGroup
	defer inflight.Wait()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, f := range []inboundFrame{
		{Type: frameSend, ReceiverID: peer, Content: "slow", ClientID: "c1"},
		{Type: frameSend, ReceiverID: peer, Content: "fast", ClientID: "c2"},
	} {
		if err := h.handleFrame(ctx, w, user, f, &inflight); err != nil {
			t.Fatalf("handleFrame: %v", err)
		}
	}

	if f := nextFrame(t, w); f.Type != "ack" || f.ClientID != "c2" {
		t.Fatalf("first answer = %+v, want ack for c2", f)
	}
	close(sender.release)
	if f := nextFrame(t, w); f.Type != "ack" || f.ClientID != "c1" {
		t.Errorf("second answer = %+v, want ack for c1", f)
	}
}

func TestSendFrameRateLimited(t *testing.T) {
	h := &WSHandler{messages: &stubSender{limited: true}, log: zap.NewNop()}
	w := make(chanWriter, 1)
	var inflight sync.WaitGroup

	f := inboundFrame{Type: frameSend, ReceiverID: uuid.New(), Content: "hi", ClientID: "c1"}
	if err := h.handleFrame(context.Background(), w, uuid.New(), f, &inflight); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}
	inflight.Wait()

	got := nextFrame(t, w)
	if got.Type != "error" || got.ClientID != "c1" || got.RetryAfterMS != 2000 || got.WarningTTLMS != 4000 {
		t.Errorf("frame = %+v", got)
	}
}

func TestUnknownFrame(t *testing.T) {
	h := &WSHandler{log: zap.NewNop()}
	w := make(chanWriter, 1)
	var inflight sync.WaitGroup

	if err := h.handleFrame(context.Background(), w, uuid.New(), inboundFrame{Type: "typing"}, &inflight); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}
	if got := nextFrame(t, w); got.Type != "error" {
		t.Errorf("frame = %+v", got)
	}
}
