// Package queue carries manual-review work between the API and the moderation worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Reviewable entities
const (
	EntityCampaign = "campaign"
	EntityOffer    = "offer"
)

// ReviewRequest asks a moderator to look at flagged content.
type ReviewRequest struct {
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	Text       string    `json:"text"`
	Reasons    []string  `json:"reasons,omitempty"`
	// GateError is set when the gate itself failed and the record was queued unscreened.
	GateError   string    `json:"gate_error,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// ReviewDecision is a moderator's verdict on a ReviewRequest.
type ReviewDecision struct {
	EntityType string     `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	Approved   bool       `json:"approved"`
	ReviewerID *uuid.UUID `json:"reviewer_id,omitempty"`
	Note       string     `json:"note,omitempty"`
	DecidedAt  time.Time  `json:"decided_at"`
}

type ReviewQueue interface {
	Enqueue(ctx context.Context, req ReviewRequest) error
}

// DecisionHandler processes one decision. A returned error requeues the delivery once.
type DecisionHandler func(ctx context.Context, d ReviewDecision) error

type AMQPReviewQueue struct {
	conn          *amqp.Connection
	channel       *amqp.Channel
	reviewQueue   string
	decisionQueue string
	log           *zap.Logger
}

func Dial(url, reviewQueue, decisionQueue string, log *zap.Logger) (*AMQPReviewQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	for _, name := range []string{reviewQueue, decisionQueue} {
		_, err = channel.QueueDeclare(
			name,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			channel.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
		}
	}

	log.Info("review queue connected", zap.String("review_queue", reviewQueue), zap.String("decision_queue", decisionQueue))
	return &AMQPReviewQueue{
		conn:          conn,
		channel:       channel,
		reviewQueue:   reviewQueue,
		decisionQueue: decisionQueue,
		log:           log,
	}, nil
}

func (q *AMQPReviewQueue) Enqueue(ctx context.Context, req ReviewRequest) error {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	return q.publish(ctx, q.reviewQueue, req.EntityID, req)
}

// PublishDecision is used by review tooling to hand a verdict back to the worker.
func (q *AMQPReviewQueue) PublishDecision(ctx context.Context, d ReviewDecision) error {
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}
	return q.publish(ctx, q.decisionQueue, d.EntityID, d)
}

func (q *AMQPReviewQueue) publish(ctx context.Context, queueName string, id uuid.UUID, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = q.channel.PublishWithContext(ctx,
		"",        // exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    id.String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}
	return nil
}

// ConsumeDecisions blocks, handing each decision to handle until ctx is done or the
// broker closes the channel. Deliveries are acked only after handle succeeds.
func (q *AMQPReviewQueue) ConsumeDecisions(ctx context.Context, handle DecisionHandler) error {
	if err := q.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.ConsumeWithContext(ctx,
		q.decisionQueue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", q.decisionQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("decision channel closed")
			}
			q.handleDelivery(ctx, msg, handle)
		}
	}
}

func (q *AMQPReviewQueue) handleDelivery(ctx context.Context, msg amqp.Delivery, handle DecisionHandler) {
	d, err := DecodeDecision(msg.Body)
	if err != nil {
		q.log.Error("dropping malformed decision", zap.String("message_id", msg.MessageId), zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}

	if err := handle(ctx, d); err != nil {
		q.log.Error("decision handling failed",
			zap.String("entity_type", d.EntityType),
			zap.String("entity_id", d.EntityID.String()),
			zap.Bool("redelivered", msg.Redelivered),
			zap.Error(err),
		)
		_ = msg.Nack(false, !msg.Redelivered)
		return
	}
	_ = msg.Ack(false)
}

// DecodeDecision parses and checks a decision body.
func DecodeDecision(body []byte) (ReviewDecision, error) {
	var d ReviewDecision
	if err := json.Unmarshal(body, &d); err != nil {
		return d, err
	}
	if d.EntityType != EntityCampaign && d.EntityType != EntityOffer {
		return d, fmt.Errorf("unknown entity type %q", d.EntityType)
	}
	if d.EntityID == uuid.Nil {
		return d, fmt.Errorf("missing entity id")
	}
	return d, nil
}

func (q *AMQPReviewQueue) Close() error {
	if q.channel != nil {
		if err := q.channel.Close(); err != nil {
			q.log.Warn("error closing channel", zap.Error(err))
		}
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// LogOnlyQueue records review requests in the log. Used when no broker is configured.
type LogOnlyQueue struct {
	Log *zap.Logger
}

func (q LogOnlyQueue) Enqueue(_ context.Context, req ReviewRequest) error {
	q.Log.Warn("review requested but no queue configured",
		zap.String("entity_type", req.EntityType),
		zap.String("entity_id", req.EntityID.String()),
		zap.Strings("reasons", req.Reasons),
	)
	return nil
}
