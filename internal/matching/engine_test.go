package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/collab-market/backend/internal/apperrors"
	"github.com/collab-market/backend/internal/models"
	"github.com/collab-market/backend/internal/ratelimit"
	"github.com/collab-market/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakeCampaigns struct {
	byID        map[uuid.UUID]*models.Campaign
	err         error
	impressions map[uuid.UUID]int
}

func (f *fakeCampaigns) GetByID(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.byID[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Entity: "campaign", ID: id.String()}
	}
	return c, nil
}

func (f *fakeCampaigns) IncrementImpressions(_ context.Context, id uuid.UUID) error {
	f.impressions[id]++
	return nil
}

// memCards evaluates queries against an in-memory slice in insertion order.
type memCards struct {
	cards   []models.CandidateCard
	err     error
	queries []repositories.CardQuery
}

func (m *memCards) Match(_ context.Context, q repositories.CardQuery) ([]models.CandidateCard, error) {
	m.queries = append(m.queries, q)
	if m.err != nil {
		return nil, m.err
	}
	prefs := models.TargetingPreferences{
		Platforms:    q.Platforms,
		AudienceSize: models.IntRange{Min: q.FollowersMin, Max: q.FollowersMax},
		Demographics: models.Demographics{Countries: q.Countries},
	}
	out := []models.CandidateCard{}
	for _, c := range m.cards {
		if len(out) == q.Limit {
			break
		}
		if Matches(c, prefs) {
			out = append(out, c)
		}
	}
	return out, nil
}

func intp(v int) *int { return &v }

func card(platform string, followers int, active bool, countries ...string) models.CandidateCard {
	return models.CandidateCard{
		ID:                   uuid.New(),
		Platform:             platform,
		Reach:                models.Reach{Followers: followers},
		AudienceDemographics: models.AudienceDemographics{TopCountries: countries},
		Active:               active,
	}
}

func newEngine(campaign *models.Campaign, cards *memCards) (*Engine, *fakeCampaigns) {
	fc := &fakeCampaigns{byID: map[uuid.UUID]*models.Campaign{campaign.ID: campaign}, impressions: map[uuid.UUID]int{}}
	return NewEngine(fc, cards, ratelimit.NewMemoryDeduper(10*time.Minute), 20, zap.NewNop()), fc
}

func TestMatchEmptyPreferencesFiltersOnlyActive(t *testing.T) {
	campaign := &models.Campaign{ID: uuid.New()}
	cards := &memCards{cards: []models.CandidateCard{
		card(models.PlatformInstagram, 100, true, "US"),
		card(models.PlatformTikTok, 5, false, "DE"),
		card(models.PlatformYouTube, 1_000_000, true),
	}}
	e, _ := newEngine(campaign, cards)

	got, err := e.Match(context.Background(), campaign.ID)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d cards, want 2", len(got))
	}
	if got[0].ID != cards.cards[0].ID || got[1].ID != cards.cards[2].ID {
		t.Error("result does not keep insertion order")
	}

	q := cards.queries[0]
	if q.Platforms != nil || q.Countries != nil || q.FollowersMin != nil || q.FollowersMax != nil {
		t.Errorf("empty preferences produced predicates: %+v", q)
	}
	if q.Limit != 20 {
		t.Errorf("limit = %d, want 20", q.Limit)
	}
}

func TestMatchNoIntersectionIsEmptyNotError(t *testing.T) {
	campaign := &models.Campaign{ID: uuid.New(), Preferences: models.TargetingPreferences{
		Demographics: models.Demographics{Countries: []string{"JP"}},
	}}
	cards := &memCards{cards: []models.CandidateCard{
		card(models.PlatformInstagram, 100, true, "US", "GB"),
	}}
	e, _ := newEngine(campaign, cards)

	got, err := e.Match(context.Background(), campaign.ID)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

func TestMatchCapsResults(t *testing.T) {
	campaign := &models.Campaign{ID: uuid.New()}
	cards := &memCards{}
	for range 30 {
		cards.cards = append(cards.cards, card(models.PlatformTwitch, 10, true))
	}
	e, _ := newEngine(campaign, cards)

	got, err := e.Match(context.Background(), campaign.ID)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("got %d cards, want 20", len(got))
	}
}

func TestMatchErrors(t *testing.T) {
	campaign := &models.Campaign{ID: uuid.New()}

	t.Run("missing campaign", func(t *testing.T) {
		e, _ := newEngine(campaign, &memCards{})
		_, err := e.Match(context.Background(), uuid.New())
		var nf *apperrors.NotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("err = %v, want NotFoundError", err)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		storeErr := &apperrors.StoreUnavailableError{Op: "match cards", Err: errors.New("conn reset")}
		e, _ := newEngine(campaign, &memCards{err: storeErr})
		got, err := e.Match(context.Background(), campaign.ID)
		var mq *apperrors.MatchQueryFailedError
		if !errors.As(err, &mq) {
			t.Fatalf("err = %v, want MatchQueryFailedError", err)
		}
		if !errors.Is(err, storeErr) {
			t.Error("cause not wrapped")
		}
		if got != nil {
			t.Error("failure must not return a result")
		}
	})
}

func TestMatches(t *testing.T) {
	prefs := models.TargetingPreferences{
		Platforms:    []string{models.PlatformInstagram, models.PlatformTikTok},
		AudienceSize: models.IntRange{Min: intp(1_000), Max: intp(50_000)},
		Demographics: models.Demographics{Countries: []string{"US", "CA"}},
	}

	tests := []struct {
		name string
		card models.CandidateCard
		want bool
	}{
		{"all predicates hold", card(models.PlatformInstagram, 10_000, true, "CA", "MX"), true},
		{"inactive", card(models.PlatformInstagram, 10_000, false, "US"), false},
		{"wrong platform", card(models.PlatformYouTube, 10_000, true, "US"), false},
		{"below min", card(models.PlatformTikTok, 999, true, "US"), false},
		{"min inclusive", card(models.PlatformTikTok, 1_000, true, "US"), true},
		{"max inclusive", card(models.PlatformTikTok, 50_000, true, "US"), true},
		{"above max", card(models.PlatformTikTok, 50_001, true, "US"), false},
		{"no country overlap", card(models.PlatformTikTok, 2_000, true, "DE"), false},
		{"no countries on card", card(models.PlatformTikTok, 2_000, true), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.card, prefs); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}

	openMax := models.TargetingPreferences{AudienceSize: models.IntRange{Min: intp(100)}}
	if !Matches(card(models.PlatformTwitch, 10_000_000, true), openMax) {
		t.Error("missing max bound should be unbounded")
	}
}

func TestTrackView(t *testing.T) {
	owner := uuid.New()
	campaign := &models.Campaign{ID: uuid.New(), AdvertiserUserID: owner}
	e, fc := newEngine(campaign, &memCards{})
	ctx := context.Background()
	viewer := uuid.New()

	counted, err := e.TrackView(ctx, campaign.ID, viewer)
	if err != nil || !counted {
		t.Fatalf("first view: counted=%v err=%v", counted, err)
	}
	counted, _ = e.TrackView(ctx, campaign.ID, viewer)
	if counted {
		t.Error("repeat view inside window was counted")
	}
	counted, _ = e.TrackView(ctx, campaign.ID, owner)
	if counted {
		t.Error("owner view was counted")
	}
	if n := fc.impressions[campaign.ID]; n != 1 {
		t.Errorf("impressions = %d, want 1", n)
	}

	if _, err := e.TrackView(ctx, uuid.New(), viewer); !apperrors.IsNotFound(err) {
		t.Errorf("unknown campaign err = %v, want NotFoundError", err)
	}
}
