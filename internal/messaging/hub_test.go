package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/collab-market/backend/internal/events"
	"github.com/collab-market/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func recv(t *testing.T, s *Subscription) events.Event {
	t.Helper()
	select {
	case e, ok := <-s.C():
		if !ok {
			t.Fatal("subscription closed")
		}
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return events.Event{}
}

func TestHubDeliversToReceiver(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	bus := events.NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := hub.Start(ctx, bus); err != nil {
		t.Fatalf("Start: %v", err)
	}

	u, other := uuid.New(), uuid.New()
	sub := hub.Subscribe(u)
	otherSub := hub.Subscribe(other)
	defer hub.Unsubscribe(otherSub)

	msg := models.ChatMessage{ID: uuid.New(), SenderID: uuid.New(), ReceiverID: u, Content: "hello", Type: models.MessageTypeText}
	_ = bus.Publish(ctx, events.StreamMessage, events.MessageCreated(msg))

	got := recv(t, sub)
	if got.Message == nil || got.Message.ID != msg.ID || got.Message.Content != "hello" {
		t.Fatalf("got %+v, want message %s", got, msg.ID)
	}
	select {
	case e := <-otherSub.C():
		t.Errorf("unrelated subscriber received %+v", e)
	default:
	}

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	if _, ok := <-sub.C(); ok {
		t.Error("channel still open after Unsubscribe")
	}
	if sub.Err() != nil {
		t.Errorf("Err = %v after explicit unsubscribe", sub.Err())
	}
	if n := hub.Subscribers(u); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}

	// no panic on dispatch after unsubscribe
	_ = bus.Publish(ctx, events.StreamMessage, events.MessageCreated(msg))
}

func TestHubPreservesOrderPerConversation(t *testing.T) {
	hub := NewHub(32, zap.NewNop())
	u, peer := uuid.New(), uuid.New()
	sub := hub.Subscribe(u)
	defer hub.Unsubscribe(sub)

	var ids []uuid.UUID
	for range 10 {
		m := models.ChatMessage{ID: uuid.New(), SenderID: peer, ReceiverID: u}
		ids = append(ids, m.ID)
		hub.Dispatch(events.MessageCreated(m))
	}
	for i, want := range ids {
		if got := recv(t, sub); got.Message.ID != want {
			t.Fatalf("message %d = %s, want %s", i, got.Message.ID, want)
		}
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(1, zap.NewNop())
	u := uuid.New()
	sub := hub.Subscribe(u)

	e := events.ConnectionChanged(u, events.StateConnecting, 1)
	hub.Dispatch(e)
	hub.Dispatch(e)

	if _, ok := <-sub.C(); !ok {
		t.Fatal("buffered event lost")
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("expected channel closed after overflow")
	}
	if !errors.Is(sub.Err(), ErrSlowSubscriber) {
		t.Errorf("Err = %v, want ErrSlowSubscriber", sub.Err())
	}
	hub.Unsubscribe(sub)
}

func TestHubConcurrentSubscribeDispatch(t *testing.T) {
	hub := NewHub(128, zap.NewNop())
	u := uuid.New()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := hub.Subscribe(u)
			hub.Unsubscribe(s)
		}()
		go func() {
			defer wg.Done()
			hub.Dispatch(events.ConnectionChanged(u, events.StateConnected, 0))
		}()
	}
	wg.Wait()
}

func TestKeyedMutex(t *testing.T) {
	km := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("a:b")
			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
	if n := km.size(); n != 0 {
		t.Errorf("entries left = %d, want 0", n)
	}

	// different keys do not block each other
	u1 := km.Lock("x")
	u2 := km.Lock("y")
	u2()
	u1()
}
