package events

import (
	"context"
	"sync"
)

type localHandler struct {
	id int
	fn func(Event)
}

// LocalBus delivers events in-process. It backs single-instance deployments without
// Redis and the service tests.
type LocalBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string][]localHandler
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[string][]localHandler)}
}

// Publish calls the stream's handlers synchronously, in subscription order.
func (b *LocalBus) Publish(_ context.Context, stream string, event Event) error {
	b.mu.RLock()
	hs := make([]localHandler, len(b.handlers[stream]))
	copy(hs, b.handlers[stream])
	b.mu.RUnlock()

	for _, h := range hs {
		h.fn(event)
	}
	return nil
}

// Subscribe registers handler until ctx is done.
func (b *LocalBus) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[stream] = append(b.handlers[stream], localHandler{id: id, fn: handler})
	b.mu.Unlock()

	context.AfterFunc(ctx, func() { b.remove(stream, id) })
	return nil
}

func (b *LocalBus) remove(stream string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hs := b.handlers[stream]
	for i, h := range hs {
		if h.id == id {
			b.handlers[stream] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

func (b *LocalBus) handlerCount(stream string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[stream])
}
