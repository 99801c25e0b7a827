package repositories

import (
	"context"

	"github.com/collab-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepo reads profiles owned by the profile service.
type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

func (r *ProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	err := r.pool.QueryRow(ctx, `
		SELECT id, role, display_name, basic_profile_complete, created_at, last_active_at
		FROM profiles WHERE id = $1
	`, id).Scan(&p.ID, &p.Role, &p.DisplayName, &p.BasicProfileComplete, &p.CreatedAt, &p.LastActiveAt)
	if err != nil {
		return nil, classify("get profile", "profile", id, err)
	}
	return &p, nil
}

func (r *ProfileRepo) TouchLastActive(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE profiles SET last_active_at = now() WHERE id = $1`, id)
	return classify("touch profile", "profile", id, err)
}
