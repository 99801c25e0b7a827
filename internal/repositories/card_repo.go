package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/collab-market/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CardRepo struct {
	pool *pgxpool.Pool
}

func NewCardRepo(pool *pgxpool.Pool) *CardRepo {
	return &CardRepo{pool: pool}
}

// CardQuery holds the AND-combined matching predicates. Empty fields are not applied.
type CardQuery struct {
	Platforms    []string
	FollowersMin *int
	FollowersMax *int
	Countries    []string // non-empty intersection with top_countries
	Limit        int
}

// Match returns active cards satisfying q in insertion order.
func (r *CardRepo) Match(ctx context.Context, q CardQuery) ([]models.CandidateCard, error) {
	query := `
		SELECT id, influencer_user_id, platform, followers, average_views, engagement_rate,
		       age_min, age_max, genders, top_countries, pricing, active, created_at
		FROM candidate_cards
	`
	args := []any{}
	argIdx := 1
	where := []string{"active = true"}

	if len(q.Platforms) > 0 {
		where = append(where, fmt.Sprintf("platform = ANY($%d)", argIdx))
		args = append(args, q.Platforms)
		argIdx++
	}
	if q.FollowersMin != nil {
		where = append(where, fmt.Sprintf("followers >= $%d", argIdx))
		args = append(args, *q.FollowersMin)
		argIdx++
	}
	if q.FollowersMax != nil {
		where = append(where, fmt.Sprintf("followers <= $%d", argIdx))
		args = append(args, *q.FollowersMax)
		argIdx++
	}
	if len(q.Countries) > 0 {
		where = append(where, fmt.Sprintf("top_countries && $%d", argIdx))
		args = append(args, q.Countries)
		argIdx++
	}

	query += " WHERE " + strings.Join(where, " AND ")
	query += fmt.Sprintf(" ORDER BY created_at ASC, id ASC LIMIT $%d", argIdx)
	args = append(args, q.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("match cards", "card", nil, err)
	}
	defer rows.Close()

	cards := []models.CandidateCard{}
	for rows.Next() {
		var c models.CandidateCard
		if err := rows.Scan(&c.ID, &c.InfluencerUserID, &c.Platform, &c.Reach.Followers, &c.Reach.AverageViews,
			&c.Reach.EngagementRate, &c.AudienceDemographics.AgeRange.Min, &c.AudienceDemographics.AgeRange.Max,
			&c.AudienceDemographics.Genders, &c.AudienceDemographics.TopCountries, &c.Pricing, &c.Active,
			&c.CreatedAt); err != nil {
			return nil, classify("match cards", "card", nil, err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("match cards", "card", nil, err)
	}
	return cards, nil
}
