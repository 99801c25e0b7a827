package services

import (
	"context"
	"time"

	"github.com/collab-market/backend/internal/models"
	"github.com/collab-market/backend/internal/repositories"
	"github.com/google/uuid"
)

// Store interfaces are satisfied by the pgx repositories and by in-memory fakes in tests.

type CampaignStore interface {
	Create(ctx context.Context, c *models.Campaign) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	Update(ctx context.Context, c *models.Campaign) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error
	UpdateModerationStatus(ctx context.Context, id uuid.UUID, status string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f repositories.CampaignFilter) ([]models.Campaign, error)
}

type OfferStore interface {
	Create(ctx context.Context, o *models.Offer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	ApplyTransition(ctx context.Context, t models.OfferTransition) (*models.Offer, error)
	UpdateModerationStatus(ctx context.Context, id uuid.UUID, status string) error
	IncrementViewCount(ctx context.Context, id uuid.UUID) error
	IncrementMessageCount(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f repositories.OfferFilter) ([]models.Offer, error)
}

type MessageStore interface {
	Create(ctx context.Context, m *models.ChatMessage) error
	ListConversation(ctx context.Context, a, b uuid.UUID, limit int, before *time.Time) ([]models.ChatMessage, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error)
}

type ProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

// Matcher is the campaign matching engine.
type Matcher interface {
	Match(ctx context.Context, campaignID uuid.UUID) ([]models.CandidateCard, error)
	TrackView(ctx context.Context, campaignID, viewerID uuid.UUID) (bool, error)
}

// Messenger sends chat messages; OfferService uses it for system messages.
type Messenger interface {
	Send(ctx context.Context, in SendInput) (*models.ChatMessage, error)
}
