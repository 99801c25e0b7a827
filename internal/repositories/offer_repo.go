package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/collab-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OfferRepo struct {
	pool *pgxpool.Pool
}

func NewOfferRepo(pool *pgxpool.Pool) *OfferRepo {
	return &OfferRepo{pool: pool}
}

const offerColumns = `
	id, influencer_id, advertiser_id, campaign_id, kind, initiated_by, status,
	title, description, proposed_rate, currency, deliverables, timeline, terms,
	view_count, message_count, moderation_status, created_at, responded_at, completed_at, updated_at`

func scanOffer(row pgx.Row) (*models.Offer, error) {
	var o models.Offer
	err := row.Scan(&o.ID, &o.InfluencerID, &o.AdvertiserID, &o.CampaignID, &o.Kind, &o.InitiatedBy, &o.Status,
		&o.Title, &o.Description, &o.ProposedRate, &o.Currency, &o.Deliverables, &o.Timeline, &o.Terms,
		&o.Metadata.ViewCount, &o.Metadata.MessageCount, &o.ModerationStatus,
		&o.CreatedAt, &o.RespondedAt, &o.CompletedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Create inserts the offer and, for campaign-linked records, bumps metrics.applicants in the
// same transaction.
func (r *OfferRepo) Create(ctx context.Context, o *models.Offer) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return classify("create offer", "offer", nil, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO offers (influencer_id, advertiser_id, campaign_id, kind, initiated_by, status,
		                    title, description, proposed_rate, currency, deliverables, timeline, terms,
		                    moderation_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		RETURNING id
	`, o.InfluencerID, o.AdvertiserID, o.CampaignID, o.Kind, o.InitiatedBy, o.Status,
		o.Title, o.Description, o.ProposedRate, o.Currency, o.Deliverables, o.Timeline, o.Terms,
		o.ModerationStatus, o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		return classify("create offer", "offer", nil, err)
	}
	o.UpdatedAt = o.CreatedAt

	if o.CampaignID != nil {
		tag, err := tx.Exec(ctx, `UPDATE campaigns SET metrics_applicants = metrics_applicants + 1 WHERE id = $1`, *o.CampaignID)
		if err != nil {
			return classify("count applicant", "campaign", o.CampaignID, err)
		}
		if tag.RowsAffected() == 0 {
			return classify("count applicant", "campaign", o.CampaignID, pgx.ErrNoRows)
		}
	}

	return classify("create offer", "offer", nil, tx.Commit(ctx))
}

func (r *OfferRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	o, err := scanOffer(r.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
	if err != nil {
		return nil, classify("get offer", "offer", id, err)
	}
	return o, nil
}

// ApplyTransition moves the offer from t.From to t.To only if it is still in t.From.
// Returns ErrStaleState when another writer got there first.
func (r *OfferRepo) ApplyTransition(ctx context.Context, t models.OfferTransition) (*models.Offer, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, classify("transition offer", "offer", t.OfferID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if t.Details != nil {
		d := t.Details
		_, err := tx.Exec(ctx, `
			UPDATE offers SET title = $1, description = $2, proposed_rate = $3, currency = $4,
			       deliverables = $5, timeline = $6, terms = $7
			WHERE id = $8 AND status = $9
		`, d.Title, d.Description, d.ProposedRate, d.Currency, d.Deliverables, d.Timeline, d.Terms, t.OfferID, t.From)
		if err != nil {
			return nil, classify("revise offer", "offer", t.OfferID, err)
		}
	}

	o, err := scanOffer(tx.QueryRow(ctx, `
		UPDATE offers SET status = $1,
		       responded_at = CASE WHEN $2::bool THEN COALESCE(responded_at, $3) ELSE responded_at END,
		       completed_at = CASE WHEN $4::bool THEN $3 ELSE completed_at END,
		       updated_at = $3
		WHERE id = $5 AND status = $6
		RETURNING `+offerColumns,
		t.To, t.SetResponse, t.At, t.SetComplete, t.OfferID, t.From))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, classify("transition offer", "offer", t.OfferID, err)
	}

	if t.CountAccept && o.CampaignID != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE campaigns SET metrics_accepted = metrics_accepted + 1, updated_at = now() WHERE id = $1
		`, *o.CampaignID); err != nil {
			return nil, classify("count acceptance", "campaign", o.CampaignID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify("transition offer", "offer", t.OfferID, err)
	}
	return o, nil
}

func (r *OfferRepo) UpdateModerationStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE offers SET moderation_status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return classify("update offer moderation", "offer", id, err)
	}
	if tag.RowsAffected() == 0 {
		return classify("update offer moderation", "offer", id, pgx.ErrNoRows)
	}
	return nil
}

func (r *OfferRepo) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE offers SET view_count = view_count + 1 WHERE id = $1`, id)
	return classify("increment view count", "offer", id, err)
}

func (r *OfferRepo) IncrementMessageCount(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE offers SET message_count = message_count + 1 WHERE id = $1`, id)
	return classify("increment message count", "offer", id, err)
}

type OfferFilter struct {
	ParticipantID *uuid.UUID // influencer or advertiser side
	CampaignID    *uuid.UUID
	Status        *string
	Kind          *string
	Limit         int
	Offset        int
}

func (r *OfferRepo) List(ctx context.Context, f OfferFilter) ([]models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.ParticipantID != nil {
		where = append(where, fmt.Sprintf("(influencer_id = $%d OR advertiser_id = $%d)", argIdx, argIdx))
		args = append(args, *f.ParticipantID)
		argIdx++
	}
	if f.CampaignID != nil {
		where = append(where, fmt.Sprintf("campaign_id = $%d", argIdx))
		args = append(args, *f.CampaignID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}
	if f.Kind != nil {
		where = append(where, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, *f.Kind)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list offers", "offer", nil, err)
	}
	defer rows.Close()

	var offers []models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, classify("list offers", "offer", nil, err)
		}
		offers = append(offers, *o)
	}
	return offers, classify("list offers", "offer", nil, rows.Err())
}
