package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/collab-market/backend/internal/apperrors"
	"github.com/collab-market/backend/internal/events"
	"github.com/collab-market/backend/internal/messaging"
	"github.com/collab-market/backend/internal/models"
	"github.com/collab-market/backend/internal/moderation"
	"github.com/collab-market/backend/internal/queue"
	"github.com/collab-market/backend/internal/ratelimit"
	"github.com/collab-market/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// memDB is an in-memory record store shared by the fake repositories.
type memDB struct {
	mu           sync.Mutex
	campaigns    map[uuid.UUID]*models.Campaign
	offers       map[uuid.UUID]*models.Offer
	messages     []models.ChatMessage
	audit        []models.AuditLog
	profiles     map[uuid.UUID]*models.Profile
	failMessages int
	offerWrites  int
}

func newMemDB() *memDB {
	return &memDB{
		campaigns: make(map[uuid.UUID]*models.Campaign),
		offers:    make(map[uuid.UUID]*models.Offer),
		profiles:  make(map[uuid.UUID]*models.Profile),
	}
}

func cloneOffer(o *models.Offer) *models.Offer {
	c := *o
	c.Deliverables = slices.Clone(o.Deliverables)
	return &c
}

func cloneCampaign(c *models.Campaign) *models.Campaign {
	cc := *c
	cc.Preferences.Platforms = slices.Clone(c.Preferences.Platforms)
	return &cc
}

func notFound(entity string, id uuid.UUID) error {
	return &apperrors.NotFoundError{Entity: entity, ID: id.String()}
}

type memCampaigns struct{ db *memDB }

func (m memCampaigns) Create(_ context.Context, c *models.Campaign) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.db.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (m memCampaigns) GetByID(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.campaigns[id]
	if !ok {
		return nil, notFound("campaign", id)
	}
	return cloneCampaign(c), nil
}

func (m memCampaigns) Update(_ context.Context, c *models.Campaign) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cur, ok := m.db.campaigns[c.ID]
	if !ok {
		return notFound("campaign", c.ID)
	}
	next := cloneCampaign(c)
	next.Status, next.Metrics, next.ModerationStatus = cur.Status, cur.Metrics, cur.ModerationStatus
	m.db.campaigns[c.ID] = next
	return nil
}

func (m memCampaigns) UpdateStatus(_ context.Context, id uuid.UUID, from, to string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.campaigns[id]
	if !ok || c.Status != from {
		return repositories.ErrStaleState
	}
	c.Status = to
	return nil
}

func (m memCampaigns) UpdateModerationStatus(_ context.Context, id uuid.UUID, status string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.campaigns[id]
	if !ok {
		return notFound("campaign", id)
	}
	c.ModerationStatus = status
	return nil
}

func (m memCampaigns) Delete(_ context.Context, id uuid.UUID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	delete(m.db.campaigns, id)
	return nil
}

func (m memCampaigns) List(_ context.Context, f repositories.CampaignFilter) ([]models.Campaign, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Campaign
	for _, c := range m.db.campaigns {
		if f.AdvertiserUserID != nil && c.AdvertiserUserID != *f.AdvertiserUserID {
			continue
		}
		out = append(out, *cloneCampaign(c))
	}
	return out, nil
}

type memOffers struct{ db *memDB }

func (m memOffers) Create(_ context.Context, o *models.Offer) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if o.CampaignID != nil {
		c, ok := m.db.campaigns[*o.CampaignID]
		if !ok {
			return notFound("campaign", *o.CampaignID)
		}
		c.Metrics.Applicants++
	}
	o.ID = uuid.New()
	o.UpdatedAt = o.CreatedAt
	m.db.offers[o.ID] = cloneOffer(o)
	m.db.offerWrites++
	return nil
}

func (m memOffers) GetByID(_ context.Context, id uuid.UUID) (*models.Offer, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	o, ok := m.db.offers[id]
	if !ok {
		return nil, notFound("offer", id)
	}
	return cloneOffer(o), nil
}

func (m memOffers) ApplyTransition(_ context.Context, t models.OfferTransition) (*models.Offer, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	o, ok := m.db.offers[t.OfferID]
	if !ok || o.Status != t.From {
		return nil, repositories.ErrStaleState
	}
	if t.Details != nil {
		o.OfferDetails = *t.Details
		o.Deliverables = slices.Clone(t.Details.Deliverables)
	}
	o.Status = t.To
	at := t.At
	if t.SetResponse && o.RespondedAt == nil {
		o.RespondedAt = &at
	}
	if t.SetComplete {
		o.CompletedAt = &at
	}
	o.UpdatedAt = at
	if t.CountAccept && o.CampaignID != nil {
		m.db.campaigns[*o.CampaignID].Metrics.Accepted++
	}
	m.db.offerWrites++
	return cloneOffer(o), nil
}

func (m memOffers) UpdateModerationStatus(_ context.Context, id uuid.UUID, status string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	o, ok := m.db.offers[id]
	if !ok {
		return notFound("offer", id)
	}
	o.ModerationStatus = status
	return nil
}

func (m memOffers) IncrementViewCount(_ context.Context, id uuid.UUID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.offers[id].Metadata.ViewCount++
	return nil
}

func (m memOffers) IncrementMessageCount(_ context.Context, id uuid.UUID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.offers[id].Metadata.MessageCount++
	return nil
}

func (m memOffers) List(_ context.Context, f repositories.OfferFilter) ([]models.Offer, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Offer
	for _, o := range m.db.offers {
		if f.ParticipantID != nil && !o.IsParticipant(*f.ParticipantID) {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		out = append(out, *cloneOffer(o))
	}
	return out, nil
}

type memMessages struct{ db *memDB }

func (m memMessages) Create(_ context.Context, msg *models.ChatMessage) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.failMessages > 0 {
		m.db.failMessages--
		return &apperrors.StoreUnavailableError{Op: "insert message", Err: errors.New("connection refused")}
	}
	for _, existing := range m.db.messages {
		if msg.ClientID != "" && existing.SenderID == msg.SenderID && existing.ClientID == msg.ClientID {
			msg.ID, msg.Timestamp = existing.ID, existing.Timestamp
			return nil
		}
	}
	msg.ID = uuid.New()
	msg.Timestamp = time.Now()
	m.db.messages = append(m.db.messages, *msg)
	return nil
}

func (m memMessages) ListConversation(_ context.Context, a, b uuid.UUID, limit int, _ *time.Time) ([]models.ChatMessage, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	key := models.ConversationKey(a, b)
	out := []models.ChatMessage{}
	for _, msg := range m.db.messages {
		if models.ConversationKey(msg.SenderID, msg.ReceiverID) == key {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m memMessages) ListConversations(_ context.Context, userID uuid.UUID) ([]models.ConversationSummary, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	latest := map[string]models.ConversationSummary{}
	for _, msg := range m.db.messages {
		if msg.SenderID != userID && msg.ReceiverID != userID {
			continue
		}
		peer := msg.ReceiverID
		if peer == userID {
			peer = msg.SenderID
		}
		key := models.ConversationKey(msg.SenderID, msg.ReceiverID)
		latest[key] = models.ConversationSummary{Key: key, CounterpartyID: peer, LastMessage: msg}
	}
	out := []models.ConversationSummary{}
	for _, s := range latest {
		out = append(out, s)
	}
	return out, nil
}

func (db *memDB) systemMessages(offerID uuid.UUID) []models.ChatMessage {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range db.messages {
		if m.OfferID != nil && *m.OfferID == offerID {
			out = append(out, m)
		}
	}
	return out
}

type memProfiles struct{ db *memDB }

func (m memProfiles) GetByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.profiles[id]
	if !ok {
		return nil, notFound("profile", id)
	}
	cp := *p
	return &cp, nil
}

type memAudit struct{ db *memDB }

func (m memAudit) Log(_ context.Context, entry models.AuditLog) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	m.db.audit = append(m.db.audit, entry)
	return nil
}

func (m memAudit) GetByEntity(_ context.Context, entityType string, entityID uuid.UUID, _, _ int) ([]models.AuditLog, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.AuditLog
	for _, e := range m.db.audit {
		if e.EntityType == entityType && e.EntityID != nil && *e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeGate struct {
	mu      sync.Mutex
	verdict moderation.Verdict
	err     error
	calls   []string
}

func (g *fakeGate) Check(_ context.Context, text string) (moderation.Verdict, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, text)
	return g.verdict, g.err
}

type fakeReview struct {
	mu   sync.Mutex
	reqs []queue.ReviewRequest
}

func (r *fakeReview) Enqueue(_ context.Context, req queue.ReviewRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return nil
}

type noMatches struct{}

func (noMatches) Match(context.Context, uuid.UUID) ([]models.CandidateCard, error) {
	return []models.CandidateCard{}, nil
}

func (noMatches) TrackView(context.Context, uuid.UUID, uuid.UUID) (bool, error) { return false, nil }

// harness wires the services against memDB and an in-process event bus.
type harness struct {
	db        *memDB
	bus       *events.LocalBus
	hub       *messaging.Hub
	gate      *fakeGate
	review    *fakeReview
	messages  *MessageService
	offers    *OfferService
	campaigns *CampaignService
	clock     time.Time
	logs      *observer.ObservedLogs
}

func newHarness(t *testing.T, rateLimit int) *harness {
	t.Helper()
	h := &harness{
		db:     newMemDB(),
		bus:    events.NewLocalBus(),
		hub:    messaging.NewHub(64, zap.NewNop()),
		gate:   &fakeGate{},
		review: &fakeReview{},
		clock:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.hub.Start(ctx, h.bus); err != nil {
		t.Fatalf("hub start: %v", err)
	}

	core, logs := observer.New(zap.InfoLevel)
	h.logs = logs
	log := zap.New(core)
	h.messages = NewMessageService(
		memMessages{h.db}, memProfiles{h.db},
		ratelimit.NewMemoryWindow(rateLimit, 10*time.Second),
		h.bus,
		messaging.DeliveryConfig{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxElapsed: 2 * time.Second},
		4*time.Second, log,
	)
	h.offers = NewOfferService(
		memOffers{h.db}, memCampaigns{h.db}, memAudit{h.db}, h.messages,
		h.gate, h.review, ratelimit.NewMemoryDeduper(10*time.Minute), h.bus, log,
	)
	h.offers.now = func() time.Time { return h.clock }
	h.campaigns = NewCampaignService(memCampaigns{h.db}, memAudit{h.db}, noMatches{}, h.gate, h.review, log)
	return h
}

// user registers a profile with a completed basic profile.
func (h *harness) user(role string) uuid.UUID {
	id := uuid.New()
	h.db.mu.Lock()
	h.db.profiles[id] = &models.Profile{ID: id, Role: role, BasicProfileComplete: true}
	h.db.mu.Unlock()
	return id
}

func (h *harness) activeCampaign(t *testing.T, advertiser uuid.UUID) *models.Campaign {
	t.Helper()
	c := &models.Campaign{Title: "Spring launch", Status: models.CampaignStatusActive, Budget: models.Budget{Min: 100, Max: 1000}}
	if err := h.campaigns.Create(context.Background(), advertiser, c); err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return c
}

func (h *harness) campaign(id uuid.UUID) models.Campaign {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	return *cloneCampaign(h.db.campaigns[id])
}

func (h *harness) storedOffer(id uuid.UUID) models.Offer {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	return *cloneOffer(h.db.offers[id])
}

func validInput(influencer, advertiser uuid.UUID) CreateOfferInput {
	return CreateOfferInput{
		InfluencerID: influencer,
		AdvertiserID: advertiser,
		OfferDetails: models.OfferDetails{
			ProposedRate: 500,
			Deliverables: []string{"1 post"},
			Timeline:     "2 weeks",
		},
	}
}
