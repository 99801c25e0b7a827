package services

import (
	"context"
	"fmt"
	"time"

	"github.com/collab-market/backend/internal/models"
	"github.com/collab-market/backend/internal/moderation"
	"github.com/collab-market/backend/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// screener runs the moderation gate and queues anything it cannot approve.
type screener struct {
	gate   moderation.Gate
	review queue.ReviewQueue
	log    *zap.Logger
}

type screenResult struct {
	text    string
	status  string
	verdict moderation.Verdict
	gateErr error
}

// screen never fails: a gate error leaves the record pending review.
func (s screener) screen(ctx context.Context, title, description string) screenResult {
	r := screenResult{text: moderation.ScreeningText(title, description), status: models.ModerationApproved}
	r.verdict, r.gateErr = s.gate.Check(ctx, r.text)
	if r.gateErr != nil {
		s.log.Warn("moderation gate failed, queueing for review", zap.Error(r.gateErr))
		r.status = models.ModerationPendingReview
	} else if r.verdict.Flagged {
		r.status = models.ModerationPendingReview
	}
	return r
}

func (s screener) enqueue(ctx context.Context, entity string, id uuid.UUID, r screenResult) {
	if r.status != models.ModerationPendingReview {
		return
	}
	req := queue.ReviewRequest{
		EntityType:  entity,
		EntityID:    id,
		Text:        r.text,
		Reasons:     r.verdict.Reasons,
		RequestedAt: time.Now().UTC(),
	}
	if r.gateErr != nil {
		req.GateError = r.gateErr.Error()
	}
	if err := s.review.Enqueue(ctx, req); err != nil {
		s.log.Error("failed to queue review",
			zap.String("entity_type", entity),
			zap.String("entity_id", id.String()),
			zap.Error(err),
		)
	}
}

func (r screenResult) audit() *models.AuditMeta {
	if r.gateErr != nil {
		return models.ModerationAudit(false, []string{"gate unavailable"}, "gate")
	}
	return models.ModerationAudit(r.verdict.Flagged, r.verdict.Reasons, "gate")
}

// ModerationHandler routes reviewer decisions to the owning service.
func ModerationHandler(campaigns *CampaignService, offers *OfferService) queue.DecisionHandler {
	return func(ctx context.Context, d queue.ReviewDecision) error {
		switch d.EntityType {
		case queue.EntityCampaign:
			return campaigns.ApplyModerationDecision(ctx, d)
		case queue.EntityOffer:
			return offers.ApplyModerationDecision(ctx, d)
		default:
			return fmt.Errorf("unknown entity type %q", d.EntityType)
		}
	}
}
