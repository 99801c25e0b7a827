package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	start time.Time
	count int
}

// MemoryWindow is a process-local Limiter.
type MemoryWindow struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	buckets map[string]*bucket
}

func NewMemoryWindow(limit int, window time.Duration) *MemoryWindow {
	return &MemoryWindow{limit: limit, window: window, now: time.Now, buckets: make(map[string]*bucket)}
}

// WithClock replaces the time source.
func (w *MemoryWindow) WithClock(now func() time.Time) *MemoryWindow {
	w.now = now
	return w
}

func (w *MemoryWindow) Limit() int            { return w.limit }
func (w *MemoryWindow) Window() time.Duration { return w.window }

func (w *MemoryWindow) Allow(_ context.Context, key string) (Decision, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	b, ok := w.buckets[key]
	if !ok || now.Sub(b.start) >= w.window {
		b = &bucket{start: now}
		w.buckets[key] = b
		w.sweep(now)
	}
	b.count++

	d := Decision{Allowed: b.count <= w.limit, Count: b.count, Limit: w.limit}
	if !d.Allowed {
		d.RetryAfter = b.start.Add(w.window).Sub(now)
	}
	return d, nil
}

// sweep drops expired buckets; caller holds mu.
func (w *MemoryWindow) sweep(now time.Time) {
	for k, b := range w.buckets {
		if now.Sub(b.start) >= w.window {
			delete(w.buckets, k)
		}
	}
}

type MemoryDeduper struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	seen   map[string]time.Time
}

func NewMemoryDeduper(window time.Duration) *MemoryDeduper {
	return &MemoryDeduper{window: window, now: time.Now, seen: make(map[string]time.Time)}
}

func (d *MemoryDeduper) WithClock(now func() time.Time) *MemoryDeduper {
	d.now = now
	return d
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.seen[key] = now.Add(d.window)
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}
	return true, nil
}
