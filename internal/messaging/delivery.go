package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/collab-market/backend/internal/apperrors"
	"github.com/collab-market/backend/internal/events"
	"github.com/collab-market/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Persister writes one message. It must be idempotent on the message's client id, since a
// write that timed out may have landed.
type Persister func(ctx context.Context, msg *models.ChatMessage) error

// DeliveryHooks are called from the drain goroutine.
type DeliveryHooks struct {
	// Delivered runs after a queued message is persisted.
	Delivered func(ctx context.Context, msg models.ChatMessage)
	// Failed runs when a message is dropped after a permanent error or when retries ran out.
	Failed func(ctx context.Context, msg models.ChatMessage, err error)
	// StateChanged reports a sender going to connecting (first queued message) or back to
	// connected (backlog drained).
	StateChanged func(ctx context.Context, sender uuid.UUID, state string, pending int)
}

type DeliveryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DeliveryQueue buffers messages whose persistence could not be confirmed and retries them
// in FIFO order. One goroutine drains the head, so order is kept within every conversation.
type DeliveryQueue struct {
	persist Persister
	hooks   DeliveryHooks
	cfg     DeliveryConfig
	log     *zap.Logger

	mu       sync.Mutex
	items    []models.ChatMessage
	bySender map[uuid.UUID]int
	byConv   map[string]int
	wake     chan struct{}
}

func NewDeliveryQueue(persist Persister, hooks DeliveryHooks, cfg DeliveryConfig, log *zap.Logger) *DeliveryQueue {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = 5 * time.Minute
	}
	return &DeliveryQueue{
		persist:  persist,
		hooks:    hooks,
		cfg:      cfg,
		log:      log,
		bySender: make(map[uuid.UUID]int),
		byConv:   make(map[string]int),
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue appends msg and returns how many messages of the same sender are now pending.
func (q *DeliveryQueue) Enqueue(ctx context.Context, msg models.ChatMessage) int {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.bySender[msg.SenderID]++
	q.byConv[models.ConversationKey(msg.SenderID, msg.ReceiverID)]++
	pending := q.bySender[msg.SenderID]
	q.mu.Unlock()

	if pending == 1 && q.hooks.StateChanged != nil {
		q.hooks.StateChanged(ctx, msg.SenderID, events.StateConnecting, pending)
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return pending
}

// PendingFor returns the number of queued messages in the conversation identified by key.
func (q *DeliveryQueue) PendingFor(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.byConv[key]
}

// Len returns the total backlog.
func (q *DeliveryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Run drains the queue until ctx is done. Messages still queued at that point are lost;
// they were never confirmed to the sender as delivered.
func (q *DeliveryQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := q.Len(); n > 0 {
				q.log.Warn("delivery queue stopped with pending messages", zap.Int("pending", n))
			}
			return
		case <-q.wake:
		}

		for {
			msg, ok := q.head()
			if !ok {
				break
			}
			err := q.deliver(ctx, &msg)
			if ctx.Err() != nil {
				break
			}
			q.pop(ctx, msg, err)
		}
	}
}

func (q *DeliveryQueue) head() (models.ChatMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return models.ChatMessage{}, false
	}
	return q.items[0], true
}

func (q *DeliveryQueue) deliver(ctx context.Context, msg *models.ChatMessage) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.cfg.InitialInterval
	b.MaxInterval = q.cfg.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := q.persist(ctx, msg)
		if err == nil || apperrors.IsStoreUnavailable(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(q.cfg.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			q.log.Debug("delivery retry",
				zap.String("client_id", msg.ClientID),
				zap.Duration("next", next),
				zap.Error(err),
			)
		}),
	)
	return err
}

func (q *DeliveryQueue) pop(ctx context.Context, msg models.ChatMessage, err error) {
	q.mu.Lock()
	q.items = q.items[1:]
	q.bySender[msg.SenderID]--
	remaining := q.bySender[msg.SenderID]
	if remaining == 0 {
		delete(q.bySender, msg.SenderID)
	}
	key := models.ConversationKey(msg.SenderID, msg.ReceiverID)
	if q.byConv[key]--; q.byConv[key] <= 0 {
		delete(q.byConv, key)
	}
	q.mu.Unlock()

	if err != nil {
		q.log.Error("queued message dropped",
			zap.String("sender_id", msg.SenderID.String()),
			zap.String("client_id", msg.ClientID),
			zap.Error(err),
		)
		if q.hooks.Failed != nil {
			q.hooks.Failed(ctx, msg, err)
		}
	} else if q.hooks.Delivered != nil {
		q.hooks.Delivered(ctx, msg)
	}

	if remaining == 0 && q.hooks.StateChanged != nil {
		q.hooks.StateChanged(ctx, msg.SenderID, events.StateConnected, 0)
	}
}
