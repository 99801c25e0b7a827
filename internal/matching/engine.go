// Package matching selects active candidate cards for a campaign's targeting preferences.
package matching

import (
	"context"
	"slices"

	"github.com/collab-market/backend/internal/apperrors"
	"github.com/collab-market/backend/internal/models"
	"github.com/collab-market/backend/internal/ratelimit"
	"github.com/collab-market/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultLimit = 20

type CampaignStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	IncrementImpressions(ctx context.Context, id uuid.UUID) error
}

type CardStore interface {
	Match(ctx context.Context, q repositories.CardQuery) ([]models.CandidateCard, error)
}

type Engine struct {
	campaigns CampaignStore
	cards     CardStore
	views     ratelimit.Deduper
	limit     int
	log       *zap.Logger
}

func NewEngine(campaigns CampaignStore, cards CardStore, views ratelimit.Deduper, limit int, log *zap.Logger) *Engine {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Engine{campaigns: campaigns, cards: cards, views: views, limit: limit, log: log}
}

// Match returns at most the configured number of active cards matching the campaign's
// preferences. An empty slice with a nil error means nothing matched.
func (e *Engine) Match(ctx context.Context, campaignID uuid.UUID) ([]models.CandidateCard, error) {
	campaign, err := e.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, err
		}
		return nil, &apperrors.MatchQueryFailedError{Err: err}
	}

	q := QueryFor(campaign.Preferences, e.limit)
	cards, err := e.cards.Match(ctx, q)
	if err != nil {
		e.log.Error("match query failed", zap.String("campaign_id", campaignID.String()), zap.Error(err))
		return nil, &apperrors.MatchQueryFailedError{Err: err}
	}
	if cards == nil {
		cards = []models.CandidateCard{}
	}

	e.log.Debug("campaign matched",
		zap.String("campaign_id", campaignID.String()),
		zap.Int("candidates", len(cards)),
	)
	return cards, nil
}

// QueryFor translates preferences into a card query. Empty preferences add no predicate.
func QueryFor(prefs models.TargetingPreferences, limit int) repositories.CardQuery {
	q := repositories.CardQuery{Limit: limit}
	if len(prefs.Platforms) > 0 {
		q.Platforms = slices.Clone(prefs.Platforms)
	}
	q.FollowersMin = prefs.AudienceSize.Min
	q.FollowersMax = prefs.AudienceSize.Max
	if len(prefs.Demographics.Countries) > 0 {
		q.Countries = slices.Clone(prefs.Demographics.Countries)
	}
	return q
}

// Matches applies the same predicates as the card query to a single card.
func Matches(card models.CandidateCard, prefs models.TargetingPreferences) bool {
	if !card.Active {
		return false
	}
	if len(prefs.Platforms) > 0 && !slices.Contains(prefs.Platforms, card.Platform) {
		return false
	}
	if !prefs.AudienceSize.Contains(card.Reach.Followers) {
		return false
	}
	if len(prefs.Demographics.Countries) > 0 {
		return slices.ContainsFunc(card.AudienceDemographics.TopCountries, func(c string) bool {
			return slices.Contains(prefs.Demographics.Countries, c)
		})
	}
	return true
}

// TrackView counts a campaign impression at most once per viewer per dedup window.
// The advertiser's own views are ignored.
func (e *Engine) TrackView(ctx context.Context, campaignID, viewerID uuid.UUID) (bool, error) {
	campaign, err := e.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if campaign.AdvertiserUserID == viewerID {
		return false, nil
	}

	first, err := e.views.FirstSeen(ctx, "campaign:"+campaignID.String()+":"+viewerID.String())
	if err != nil {
		// dedup windows are a cache; skip counting rather than fail the view
		e.log.Warn("view dedup unavailable", zap.String("campaign_id", campaignID.String()), zap.Error(err))
		return false, nil
	}
	if !first {
		return false, nil
	}

	if err := e.campaigns.IncrementImpressions(ctx, campaignID); err != nil {
		return false, err
	}
	return true, nil
}
