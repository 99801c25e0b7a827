package repositories

import (
	"context"
	"slices"
	"time"

	"github.com/collab-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageColumns = `id, sender_id, receiver_id, content, type, created_at, COALESCE(client_id, ''), offer_id`

func scanMessage(row pgx.Row) (*models.ChatMessage, error) {
	var m models.ChatMessage
	if err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Type, &m.Timestamp, &m.ClientID, &m.OfferID); err != nil {
		return nil, err
	}
	return &m, nil
}

// Create appends a message. A retried insert with the same (sender, client_id) returns the
// row written by the first attempt instead of duplicating it.
func (r *MessageRepo) Create(ctx context.Context, m *models.ChatMessage) error {
	var clientID *string
	if m.ClientID != "" {
		clientID = &m.ClientID
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (sender_id, receiver_id, conversation_key, content, type, client_id, offer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sender_id, client_id) WHERE client_id IS NOT NULL
		DO UPDATE SET client_id = EXCLUDED.client_id
		RETURNING id, created_at
	`, m.SenderID, m.ReceiverID, models.ConversationKey(m.SenderID, m.ReceiverID), m.Content, m.Type, clientID, m.OfferID,
	).Scan(&m.ID, &m.Timestamp)
	return classify("insert message", "message", nil, err)
}

// ListConversation returns up to limit messages between a and b sent before `before`
// (or the latest ones), oldest first.
func (r *MessageRepo) ListConversation(ctx context.Context, a, b uuid.UUID, limit int, before *time.Time) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE conversation_key = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, seq DESC
		LIMIT $3
	`, models.ConversationKey(a, b), before, limit)
	if err != nil {
		return nil, classify("list conversation", "message", nil, err)
	}
	defer rows.Close()

	msgs := []models.ChatMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, classify("list conversation", "message", nil, err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list conversation", "message", nil, err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// ListConversations returns the latest message of every conversation userID takes part in.
func (r *MessageRepo) ListConversations(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (conversation_key) conversation_key, `+messageColumns+`
		FROM chat_messages
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY conversation_key, created_at DESC, seq DESC
	`, userID)
	if err != nil {
		return nil, classify("list conversations", "message", nil, err)
	}
	defer rows.Close()

	var out []models.ConversationSummary
	for rows.Next() {
		var s models.ConversationSummary
		m := &s.LastMessage
		if err := rows.Scan(&s.Key, &m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Type, &m.Timestamp, &m.ClientID, &m.OfferID); err != nil {
			return nil, classify("list conversations", "message", nil, err)
		}
		s.CounterpartyID = m.ReceiverID
		if m.ReceiverID == userID {
			s.CounterpartyID = m.SenderID
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list conversations", "message", nil, err)
	}
	slices.SortFunc(out, func(a, b models.ConversationSummary) int {
		return b.LastMessage.Timestamp.Compare(a.LastMessage.Timestamp)
	})
	return out, nil
}
