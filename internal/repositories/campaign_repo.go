package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/collab-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CampaignRepo struct {
	pool *pgxpool.Pool
}

func NewCampaignRepo(pool *pgxpool.Pool) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

const campaignColumns = `
	id, advertiser_user_id, title, brand, description,
	budget_min, budget_max, budget_currency, preferences, status, timeline,
	metrics_applicants, metrics_accepted, metrics_impressions, metrics_engagement,
	moderation_status, created_at, updated_at`

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	err := row.Scan(&c.ID, &c.AdvertiserUserID, &c.Title, &c.Brand, &c.Description,
		&c.Budget.Min, &c.Budget.Max, &c.Budget.Currency, &c.Preferences, &c.Status, &c.Timeline,
		&c.Metrics.Applicants, &c.Metrics.Accepted, &c.Metrics.Impressions, &c.Metrics.Engagement,
		&c.ModerationStatus, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *models.Campaign) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO campaigns (advertiser_user_id, title, brand, description, budget_min, budget_max, budget_currency,
		                       preferences, platforms, status, timeline, moderation_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`, c.AdvertiserUserID, c.Title, c.Brand, c.Description, c.Budget.Min, c.Budget.Max, c.Budget.Currency,
		c.Preferences, platformsOf(c), c.Status, c.Timeline, c.ModerationStatus,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return classify("create campaign", "campaign", nil, err)
}

func (r *CampaignRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if err != nil {
		return nil, classify("get campaign", "campaign", id, err)
	}
	return c, nil
}

// Update writes the user-editable fields. Status, metrics and moderation state are left alone.
func (r *CampaignRepo) Update(ctx context.Context, c *models.Campaign) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaigns SET title = $1, brand = $2, description = $3, budget_min = $4, budget_max = $5,
		       budget_currency = $6, preferences = $7, platforms = $8, timeline = $9, updated_at = now()
		WHERE id = $10
	`, c.Title, c.Brand, c.Description, c.Budget.Min, c.Budget.Max, c.Budget.Currency,
		c.Preferences, platformsOf(c), c.Timeline, c.ID)
	if err != nil {
		return classify("update campaign", "campaign", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return classify("update campaign", "campaign", c.ID, pgx.ErrNoRows)
	}
	return nil
}

// UpdateStatus is a compare-and-set on the current status.
func (r *CampaignRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE campaigns SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return classify("update campaign status", "campaign", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *CampaignRepo) UpdateModerationStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `UPDATE campaigns SET moderation_status = $1, updated_at = now() WHERE id = $2`, status, id)
	return classify("update campaign moderation", "campaign", id, err)
}

func (r *CampaignRepo) IncrementImpressions(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE campaigns SET metrics_impressions = metrics_impressions + 1 WHERE id = $1`, id)
	if err != nil {
		return classify("increment impressions", "campaign", id, err)
	}
	if tag.RowsAffected() == 0 {
		return classify("increment impressions", "campaign", id, pgx.ErrNoRows)
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	return classify("delete campaign", "campaign", id, err)
}

type CampaignFilter struct {
	AdvertiserUserID *uuid.UUID
	Status           *string
	Platform         *string
	BudgetMin        *float64
	BudgetMax        *float64
	Search           *string // case-insensitive substring over title, brand, description
	Limit            int
	Offset           int
}

func (r *CampaignRepo) List(ctx context.Context, f CampaignFilter) ([]models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.AdvertiserUserID != nil {
		where = append(where, fmt.Sprintf("advertiser_user_id = $%d", argIdx))
		args = append(args, *f.AdvertiserUserID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}
	if f.Platform != nil {
		where = append(where, fmt.Sprintf("$%d = ANY(platforms)", argIdx))
		args = append(args, *f.Platform)
		argIdx++
	}
	if f.BudgetMin != nil {
		where = append(where, fmt.Sprintf("budget_max >= $%d", argIdx))
		args = append(args, *f.BudgetMin)
		argIdx++
	}
	if f.BudgetMax != nil {
		where = append(where, fmt.Sprintf("budget_min <= $%d", argIdx))
		args = append(args, *f.BudgetMax)
		argIdx++
	}
	if f.Search != nil && strings.TrimSpace(*f.Search) != "" {
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR brand ILIKE $%d OR description ILIKE $%d)", argIdx, argIdx, argIdx))
		args = append(args, "%"+escapeLike(strings.TrimSpace(*f.Search))+"%")
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
		return nil, classify("list campaigns", "campaign", nil, err)
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, classify("list campaigns", "campaign", nil, err)
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, classify("list campaigns", "campaign", nil, rows.Err())
}

// platformsOf keeps a plain text[] copy of the targeted platforms for ANY() lookups.
func platformsOf(c *models.Campaign) []string {
	if c.Preferences.Platforms == nil {
		return []string{}
	}
	return c.Preferences.Platforms
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
