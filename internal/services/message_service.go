package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/collab-market/backend/internal/apperrors"
	"github.com/collab-market/backend/internal/events"
	"github.com/collab-market/backend/internal/messaging"
	"github.com/collab-market/backend/internal/models"
	"github.com/collab-market/backend/internal/ratelimit"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SendInput struct {
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Content    string
	Type       string
	ClientID   string
	OfferID    *uuid.UUID
}

type MessageService struct {
	messages   MessageStore
	profiles   ProfileStore
	limiter    ratelimit.Limiter
	publisher  events.Publisher
	queue      *messaging.DeliveryQueue
	locks      *messaging.KeyedMutex
	warningTTL time.Duration
	now        func() time.Time
	log        *zap.Logger
}

func NewMessageService(
	messages MessageStore,
	profiles ProfileStore,
	limiter ratelimit.Limiter,
	publisher events.Publisher,
	delivery messaging.DeliveryConfig,
	warningTTL time.Duration,
	log *zap.Logger,
) *MessageService {
	s := &MessageService{
		messages:   messages,
		profiles:   profiles,
		limiter:    limiter,
		publisher:  publisher,
		locks:      messaging.NewKeyedMutex(),
		warningTTL: warningTTL,
		now:        time.Now,
		log:        log,
	}
	s.queue = messaging.NewDeliveryQueue(s.persistQueued, messaging.DeliveryHooks{
		Delivered:    s.queuedDelivered,
		Failed:       s.deliveryFailed,
		StateChanged: s.connectionChanged,
	}, delivery, log)
	return s
}

// Run drains the delivery queue until ctx is done.
func (s *MessageService) Run(ctx context.Context) {
	s.queue.Run(ctx)
}

// Send validates, rate-limits and persists a message, then fans it out. When the store is
// unavailable the message is queued and returned together with a DeliveryDelayedError.
func (s *MessageService) Send(ctx context.Context, in SendInput) (*models.ChatMessage, error) {
	if in.Type == "" {
		in.Type = models.MessageTypeText
	}
	in.Content = strings.TrimSpace(in.Content)

	var v apperrors.ValidationError
	if in.Content == "" {
		v.Add("content must not be empty")
	} else if utf8.RuneCountInString(in.Content) > maxMessageLen {
		v.Addf("content must be at most %d characters", maxMessageLen)
	}
	if in.SenderID == uuid.Nil || in.ReceiverID == uuid.Nil {
		v.Add("sender and receiver are required")
	} else if in.SenderID == in.ReceiverID {
		v.Add("cannot send a message to yourself")
	}
	if in.Type != models.MessageTypeText && in.Type != models.MessageTypeSystem {
		v.Addf("unknown message type %q", in.Type)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	if in.Type != models.MessageTypeSystem {
		if err := s.checkSender(ctx, in.SenderID); err != nil {
			return nil, err
		}
	}

	if in.ClientID == "" {
		in.ClientID = uuid.NewString()
	}
	msg := &models.ChatMessage{
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Content:    in.Content,
		Type:       in.Type,
		ClientID:   in.ClientID,
		OfferID:    in.OfferID,
	}

	key := models.ConversationKey(msg.SenderID, msg.ReceiverID)
	unlock := s.locks.Lock(key)
	defer unlock()

	// keep persistence order behind anything already queued for this conversation
	if s.queue.PendingFor(key) > 0 {
		return s.enqueue(ctx, msg)
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		if apperrors.IsStoreUnavailable(err) {
			s.log.Warn("message store unavailable, queueing",
				zap.String("sender_id", msg.SenderID.String()),
				zap.Error(err),
			)
			return s.enqueue(ctx, msg)
		}
		return nil, err
	}

	s.publishCreated(ctx, *msg)
	return msg, nil
}

// checkSender enforces profile completion and the per-sender rate limit.
func (s *MessageService) checkSender(ctx context.Context, senderID uuid.UUID) error {
	profile, err := s.profiles.GetByID(ctx, senderID)
	if err != nil && !apperrors.IsNotFound(err) {
		return err
	}
	if profile == nil || !profile.BasicProfileComplete {
		return &apperrors.ForbiddenError{Rule: "complete your basic profile before sending messages"}
	}

	d, err := s.limiter.Allow(ctx, "msg:"+senderID.String())
	if err != nil {
		// windows are a cache; an unreachable limiter does not block sending
		s.log.Warn("rate limiter unavailable", zap.String("sender_id", senderID.String()), zap.Error(err))
		return nil
	}
	if !d.Allowed {
		return &apperrors.RateLimitExceededError{
			Limit:      s.limiter.Limit(),
			Window:     s.limiter.Window(),
			RetryAfter: d.RetryAfter,
		}
	}
	return nil
}

// enqueue hands msg to the delivery queue; caller holds the conversation lock.
func (s *MessageService) enqueue(ctx context.Context, msg *models.ChatMessage) (*models.ChatMessage, error) {
	msg.Timestamp = s.now().UTC()
	pending := s.queue.Enqueue(ctx, *msg)
	return msg, &apperrors.DeliveryDelayedError{ClientID: msg.ClientID, Pending: pending}
}

// persistQueued runs on the drain goroutine. It takes the conversation lock so a queued
// message is published before any later send in the same conversation.
func (s *MessageService) persistQueued(ctx context.Context, msg *models.ChatMessage) error {
	unlock := s.locks.Lock(models.ConversationKey(msg.SenderID, msg.ReceiverID))
	defer unlock()

	if err := s.messages.Create(ctx, msg); err != nil {
		return err
	}
	s.publishCreated(ctx, *msg)
	return nil
}

func (s *MessageService) publishCreated(ctx context.Context, msg models.ChatMessage) {
	// fan-out must not depend on the request staying open
	ctx = context.WithoutCancel(ctx)
	if err := s.publisher.Publish(ctx, events.StreamMessage, events.MessageCreated(msg)); err != nil {
		s.log.Error("message fan-out failed",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *MessageService) connectionChanged(ctx context.Context, sender uuid.UUID, state string, pending int) {
	_ = s.publisher.Publish(context.WithoutCancel(ctx), events.StreamConnection, events.ConnectionChanged(sender, state, pending))
}

func (s *MessageService) queuedDelivered(_ context.Context, msg models.ChatMessage) {
	s.log.Info("queued message delivered",
		zap.String("message_id", msg.ID.String()),
		zap.String("sender_id", msg.SenderID.String()),
		zap.Duration("delay", s.now().Sub(msg.Timestamp)),
	)
}

func (s *MessageService) deliveryFailed(ctx context.Context, msg models.ChatMessage, err error) {
	_ = s.publisher.Publish(context.WithoutCancel(ctx), events.StreamConnection, events.Event{
		Type:       events.EventDeliveryFailed,
		Recipients: []uuid.UUID{msg.SenderID},
		Failure: &events.DeliveryFailure{
			ClientID:   msg.ClientID,
			ReceiverID: msg.ReceiverID,
			Reason:     err.Error(),
		},
	})
}

// WarningTTL is how long clients show a rate-limit warning.
func (s *MessageService) WarningTTL() time.Duration {
	return s.warningTTL
}

// History returns messages between caller and peer, oldest first.
func (s *MessageService) History(ctx context.Context, caller, peer uuid.UUID, limit int, before *time.Time) ([]models.ChatMessage, error) {
	return s.messages.ListConversation(ctx, caller, peer, limit, before)
}

func (s *MessageService) Conversations(ctx context.Context, caller uuid.UUID) ([]models.ConversationSummary, error) {
	return s.messages.ListConversations(ctx, caller)
}

// Pending returns the delivery backlog size.
func (s *MessageService) Pending() int {
	return s.queue.Len()
}
