package main

import (
	"context"
	"testing"
	"time"

	"github.com/collab-market/backend/internal/config"
	"github.com/collab-market/backend/internal/events"
	"github.com/collab-market/backend/internal/messaging"
	"github.com/collab-market/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestBackplaneWithoutRedis(t *testing.T) {
	cfg := &config.Config{
		MessageRateLimit:  2,
		MessageRateWindow: time.Minute,
		APIRateLimit:      100,
		APIRateWindow:     time.Minute,
		ViewDedupWindow:   time.Minute,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bp, err := newBackplane(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newBackplane: %v", err)
	}
	defer bp.close()

	for i, want := range []bool{true, true, false} {
		d, err := bp.messageRate.Allow(ctx, "msg:a")
		if err != nil || d.Allowed != want {
			t.Fatalf("send %d: allowed=%v err=%v, want %v", i+1, d.Allowed, err, want)
		}
	}
	if bp.apiRate.Limit() != 100 {
		t.Errorf("api limit = %d, want 100", bp.apiRate.Limit())
	}

	first, _ := bp.views.FirstSeen(ctx, "offer:1:user:2")
	again, _ := bp.views.FirstSeen(ctx, "offer:1:user:2")
	if !first || again {
		t.Errorf("views first=%v again=%v", first, again)
	}

	hub := messaging.NewHub(4, zap.NewNop())
	if err := hub.Start(ctx, bp.subscriber); err != nil {
		t.Fatalf("hub start: %v", err)
	}
	receiver := uuid.New()
	sub := hub.Subscribe(receiver)
	defer hub.Unsubscribe(sub)

	msg := models.ChatMessage{ID: uuid.New(), SenderID: uuid.New(), ReceiverID: receiver, Content: "hi"}
	if err := bp.publisher.Publish(ctx, events.StreamMessage, events.MessageCreated(msg)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-sub.C():
		if ev.Message == nil || ev.Message.ID != msg.ID {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("message not fanned out through the local bus")
	}
}
