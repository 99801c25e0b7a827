package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/collab-market/backend/internal/apperrors"
	"github.com/collab-market/backend/internal/models"
	"github.com/collab-market/backend/internal/moderation"
	"github.com/collab-market/backend/internal/queue"
	"github.com/collab-market/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CampaignService struct {
	campaignRepo CampaignStore
	auditRepo    AuditStore
	matcher      Matcher
	screener     screener
	log          *zap.Logger
}

func NewCampaignService(
	campaignRepo CampaignStore,
	auditRepo AuditStore,
	matcher Matcher,
	gate moderation.Gate,
	review queue.ReviewQueue,
	log *zap.Logger,
) *CampaignService {
	return &CampaignService{
		campaignRepo: campaignRepo,
		auditRepo:    auditRepo,
		matcher:      matcher,
		screener:     screener{gate: gate, review: review, log: log},
		log:          log,
	}
}

func (s *CampaignService) Create(ctx context.Context, userID uuid.UUID, c *models.Campaign) error {
	c.AdvertiserUserID = userID
	c.Title = strings.TrimSpace(c.Title)
	c.Metrics = models.CampaignMetrics{}
	if c.Status == "" {
		c.Status = models.CampaignStatusDraft
	}
	if c.Budget.Currency == "" {
		c.Budget.Currency = "USD"
	}

	var v apperrors.ValidationError
	validateCampaign(&v, c)
	if c.Status != models.CampaignStatusDraft && c.Status != models.CampaignStatusActive {
		v.Add("new campaigns must start as draft or active")
	}
	if err := v.Err(); err != nil {
		return err
	}

	r := s.screener.screen(ctx, c.Title, c.Description)
	c.ModerationStatus = r.status
	if r.status != models.ModerationApproved {
		// goes live once a reviewer approves it
		c.Status = models.CampaignStatusDraft
	}

	if err := s.campaignRepo.Create(ctx, c); err != nil {
		return err
	}

	s.writeAudit(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   "user",
		Action:      "campaign_created",
		EntityType:  "campaign",
		EntityID:    &c.ID,
		Meta:        r.audit(),
	})
	s.screener.enqueue(ctx, queue.EntityCampaign, c.ID, r)
	return nil
}

// GetByID is public: influencers browse campaigns before applying.
func (s *CampaignService) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	return s.campaignRepo.GetByID(ctx, id)
}

func (s *CampaignService) List(ctx context.Context, f repositories.CampaignFilter) ([]models.Campaign, error) {
	return s.campaignRepo.List(ctx, f)
}

func (s *CampaignService) owned(ctx context.Context, id, userID uuid.UUID) (*models.Campaign, error) {
	existing, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.AdvertiserUserID != userID {
		return nil, &apperrors.NotFoundError{Entity: "campaign", ID: id.String()}
	}
	return existing, nil
}

// Update replaces the editable fields. Edited text is screened again.
func (s *CampaignService) Update(ctx context.Context, id uuid.UUID, userID uuid.UUID, c *models.Campaign) error {
	existing, err := s.owned(ctx, id, userID)
	if err != nil {
		return err
	}

	c.ID = id
	c.AdvertiserUserID = existing.AdvertiserUserID
	c.Title = strings.TrimSpace(c.Title)
	c.Status = existing.Status
	c.Metrics = existing.Metrics
	c.ModerationStatus = existing.ModerationStatus
	c.CreatedAt = existing.CreatedAt
	if c.Budget.Currency == "" {
		c.Budget.Currency = existing.Budget.Currency
	}

	var v apperrors.ValidationError
	validateCampaign(&v, c)
	if err := v.Err(); err != nil {
		return err
	}

	if err := s.campaignRepo.Update(ctx, c); err != nil {
		return err
	}

	if c.Title != existing.Title || c.Description != existing.Description {
		r := s.screener.screen(ctx, c.Title, c.Description)
		if r.status != existing.ModerationStatus {
			if err := s.campaignRepo.UpdateModerationStatus(ctx, id, r.status); err != nil {
				return err
			}
			c.ModerationStatus = r.status
		}
		s.screener.enqueue(ctx, queue.EntityCampaign, id, r)
	}
	return nil
}

// ChangeStatus moves the campaign along its lifecycle.
func (s *CampaignService) ChangeStatus(ctx context.Context, id, userID uuid.UUID, to string) (*models.Campaign, error) {
	c, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !models.IsValidCampaignTransition(c.Status, to) {
		return nil, &apperrors.InvalidTransitionError{
			Entity: "campaign", From: c.Status, To: to,
			Rule: fmt.Sprintf("a %s campaign cannot become %s", c.Status, to),
		}
	}
	if to == models.CampaignStatusActive && c.ModerationStatus != models.ModerationApproved {
		return nil, &apperrors.InvalidTransitionError{
			Entity: "campaign", From: c.Status, To: to,
			Rule: "campaign must pass moderation before it can be activated",
		}
	}

	err = s.campaignRepo.UpdateStatus(ctx, id, c.Status, to)
	if errors.Is(err, repositories.ErrStaleState) {
		return nil, &apperrors.InvalidTransitionError{
			Entity: "campaign", From: c.Status, To: to,
			Rule: "campaign changed concurrently",
		}
	}
	if err != nil {
		return nil, err
	}

	old := c.Status
	c.Status = to
	s.writeAudit(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   "user",
		Action:      fmt.Sprintf("campaign_status_%s_to_%s", old, to),
		EntityType:  "campaign",
		EntityID:    &id,
		Meta:        models.TransitionAudit(old, to, ""),
	})
	return c, nil
}

// Delete removes draft or cancelled campaigns.
func (s *CampaignService) Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	c, err := s.owned(ctx, id, userID)
	if err != nil {
		return err
	}
	if c.Status != models.CampaignStatusDraft && c.Status != models.CampaignStatusCancelled {
		return &apperrors.InvalidTransitionError{
			Entity: "campaign", From: c.Status, To: "deleted",
			Rule: "only draft or cancelled campaigns can be deleted",
		}
	}
	return s.campaignRepo.Delete(ctx, id)
}

// Matches runs the matching engine for the campaign owner.
func (s *CampaignService) Matches(ctx context.Context, id, userID uuid.UUID) ([]models.CandidateCard, error) {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.matcher.Match(ctx, id)
}

func (s *CampaignService) RecordView(ctx context.Context, id, viewerID uuid.UUID) (bool, error) {
	return s.matcher.TrackView(ctx, id, viewerID)
}

func (s *CampaignService) ApplyModerationDecision(ctx context.Context, d queue.ReviewDecision) error {
	status := models.ModerationRejected
	if d.Approved {
		status = models.ModerationApproved
	}
	if err := s.campaignRepo.UpdateModerationStatus(ctx, d.EntityID, status); err != nil {
		return err
	}
	s.writeAudit(ctx, models.AuditLog{
		ActorUserID: d.ReviewerID,
		ActorType:   "reviewer",
		Action:      "campaign_moderation_" + status,
		EntityType:  "campaign",
		EntityID:    &d.EntityID,
		Meta:        models.ModerationAudit(!d.Approved, reasonsOf(d.Note), "reviewer"),
	})
	return nil
}

func (s *CampaignService) writeAudit(ctx context.Context, entry models.AuditLog) {
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		s.log.Warn("audit log write failed", zap.String("action", entry.Action), zap.Error(err))
	}
}
