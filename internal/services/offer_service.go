package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/collab-market/backend/internal/apperrors"
	"github.com/collab-market/backend/internal/events"
	"github.com/collab-market/backend/internal/models"
	"github.com/collab-market/backend/internal/moderation"
	"github.com/collab-market/backend/internal/queue"
	"github.com/collab-market/backend/internal/ratelimit"
	"github.com/collab-market/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateOfferInput struct {
	InfluencerID uuid.UUID
	AdvertiserID uuid.UUID
	CampaignID   *uuid.UUID
	Kind         string
	models.OfferDetails
}

type OfferService struct {
	offers    OfferStore
	campaigns CampaignStore
	audit     AuditStore
	messenger Messenger
	screener  screener
	views     ratelimit.Deduper
	publisher events.Publisher
	now       func() time.Time
	log       *zap.Logger
}

func NewOfferService(
	offers OfferStore,
	campaigns CampaignStore,
	audit AuditStore,
	messenger Messenger,
	gate moderation.Gate,
	review queue.ReviewQueue,
	views ratelimit.Deduper,
	publisher events.Publisher,
	log *zap.Logger,
) *OfferService {
	return &OfferService{
		offers:    offers,
		campaigns: campaigns,
		audit:     audit,
		messenger: messenger,
		screener:  screener{gate: gate, review: review, log: log},
		views:     views,
		publisher: publisher,
		now:       time.Now,
		log:       log,
	}
}

// Create validates the whole input before writing anything and reports every violated
// rule at once. Campaign-linked records go through the moderation gate.
func (s *OfferService) Create(ctx context.Context, actorID uuid.UUID, in CreateOfferInput) (*models.Offer, error) {
	in.Deliverables = cleanList(in.Deliverables)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Timeline = strings.TrimSpace(in.Timeline)
	if in.Currency == "" {
		in.Currency = "USD"
	}

	var v apperrors.ValidationError
	if in.InfluencerID == uuid.Nil {
		v.Add("influencer_id is required")
	}
	if in.AdvertiserID == uuid.Nil {
		v.Add("advertiser_id is required")
	}
	if in.InfluencerID != uuid.Nil && in.InfluencerID == in.AdvertiserID {
		v.Add("influencer and advertiser must be different users")
	}
	validateDetails(&v, in.OfferDetails)

	initiatedBy := ""
	switch actorID {
	case in.InfluencerID:
		initiatedBy = models.SideInfluencer
	case in.AdvertiserID:
		initiatedBy = models.SideAdvertiser
	}
	if in.Kind == "" {
		in.Kind = models.OfferKindApplication
		if initiatedBy == models.SideAdvertiser {
			in.Kind = models.OfferKindOffer
		}
	}
	if in.Kind != models.OfferKindOffer && in.Kind != models.OfferKindApplication {
		v.Addf("kind must be %q or %q", models.OfferKindOffer, models.OfferKindApplication)
	}
	var campaign *models.Campaign
	if in.CampaignID != nil {
		c, err := s.campaigns.GetByID(ctx, *in.CampaignID)
		if err != nil {
			return nil, err
		}
		if c.AdvertiserUserID != in.AdvertiserID {
			v.Add("campaign does not belong to the advertiser")
		}
		if c.Status != models.CampaignStatusActive {
			v.Addf("campaign is %s and not accepting offers", c.Status)
		}
		campaign = c
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	if initiatedBy == "" {
		return nil, &apperrors.ForbiddenError{Rule: "only a participant can create an offer"}
	}

	o := &models.Offer{
		InfluencerID:     in.InfluencerID,
		AdvertiserID:     in.AdvertiserID,
		CampaignID:       in.CampaignID,
		Kind:             in.Kind,
		InitiatedBy:      initiatedBy,
		Status:           models.OfferStatusPending,
		OfferDetails:     in.OfferDetails,
		OfferTimeline:    models.OfferTimeline{CreatedAt: s.now().UTC()},
		ModerationStatus: models.ModerationApproved,
	}

	var screened *screenResult
	if campaign != nil {
		r := s.screener.screen(ctx, o.Title, o.Description)
		o.ModerationStatus = r.status
		screened = &r
	}

	if err := s.offers.Create(ctx, o); err != nil {
		return nil, err
	}

	s.writeAudit(ctx, models.AuditLog{
		ActorUserID: &actorID,
		ActorType:   "user",
		Action:      "offer_created",
		EntityType:  "offer",
		EntityID:    &o.ID,
	})
	if screened != nil {
		s.writeAudit(ctx, models.AuditLog{
			ActorType:  "system",
			Action:     "offer_screened",
			EntityType: "offer",
			EntityID:   &o.ID,
			Meta:       screened.audit(),
		})
		s.screener.enqueue(ctx, queue.EntityOffer, o.ID, *screened)
	}

	s.publishStatus(ctx, o, "", actorID)
	s.log.Info("offer created",
		zap.String("offer_id", o.ID.String()),
		zap.String("kind", o.Kind),
		zap.String("moderation_status", o.ModerationStatus),
	)
	return o, nil
}

func validationErr(rule string) error {
	var v apperrors.ValidationError
	v.Add(rule)
	return v.Err()
}

// Get returns the offer if actorID takes part in it.
func (s *OfferService) Get(ctx context.Context, offerID, actorID uuid.UUID) (*models.Offer, error) {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !o.IsParticipant(actorID) {
		return nil, &apperrors.NotFoundError{Entity: "offer", ID: offerID.String()}
	}
	return o, nil
}

func (s *OfferService) List(ctx context.Context, actorID uuid.UUID, f repositories.OfferFilter) ([]models.Offer, error) {
	f.ParticipantID = &actorID
	return s.offers.List(ctx, f)
}

// Respond answers an open offer with accepted, declined, counter or info_requested.
func (s *OfferService) Respond(ctx context.Context, offerID, actorID uuid.UUID, status, note string) (*models.Offer, error) {
	if !slices.Contains(models.RespondTargets, status) {
		return nil, validationErr(fmt.Sprintf("status must be one of %s", strings.Join(models.RespondTargets, ", ")))
	}
	o, err := s.participantOffer(ctx, offerID, actorID, "only offer participants can respond")
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, o, actorID, models.OfferTransition{To: status, SetResponse: true}, note)
}

// Revise re-opens a countered or info-requested offer with updated details.
func (s *OfferService) Revise(ctx context.Context, offerID, actorID uuid.UUID, details models.OfferDetails, note string) (*models.Offer, error) {
	details.Deliverables = cleanList(details.Deliverables)
	details.Title = strings.TrimSpace(details.Title)
	details.Description = strings.TrimSpace(details.Description)
	details.Timeline = strings.TrimSpace(details.Timeline)

	var v apperrors.ValidationError
	validateDetails(&v, details)
	if err := v.Err(); err != nil {
		return nil, err
	}

	o, err := s.participantOffer(ctx, offerID, actorID, "only offer participants can revise")
	if err != nil {
		return nil, err
	}
	if o.Status == models.OfferStatusPending {
		return nil, &apperrors.InvalidTransitionError{
			Entity: "offer", From: o.Status, To: models.OfferStatusPending,
			Rule: "only countered or info-requested offers can be revised",
		}
	}
	if details.Currency == "" {
		details.Currency = o.Currency
	}
	return s.transition(ctx, o, actorID, models.OfferTransition{To: models.OfferStatusPending, Details: &details}, note)
}

// Withdraw is only available to the party that created the offer.
func (s *OfferService) Withdraw(ctx context.Context, offerID, actorID uuid.UUID, note string) (*models.Offer, error) {
	o, err := s.participantOffer(ctx, offerID, actorID, "only offer participants can withdraw")
	if err != nil {
		return nil, err
	}
	if o.Initiator() != actorID {
		return nil, &apperrors.ForbiddenError{Rule: "only the initiating party can withdraw"}
	}
	return s.transition(ctx, o, actorID, models.OfferTransition{To: models.OfferStatusWithdrawn, SetResponse: true}, note)
}

func (s *OfferService) Complete(ctx context.Context, offerID, actorID uuid.UUID, note string) (*models.Offer, error) {
	o, err := s.participantOffer(ctx, offerID, actorID, "only offer participants can complete")
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, o, actorID, models.OfferTransition{To: models.OfferStatusCompleted, SetComplete: true}, note)
}

func (s *OfferService) participantOffer(ctx context.Context, offerID, actorID uuid.UUID, rule string) (*models.Offer, error) {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !o.IsParticipant(actorID) {
		return nil, &apperrors.ForbiddenError{Rule: rule}
	}
	return o, nil
}

// transition applies t as a compare-and-set against the status read in o. Nothing is
// written when the transition is illegal or o is stale.
func (s *OfferService) transition(ctx context.Context, o *models.Offer, actorID uuid.UUID, t models.OfferTransition, note string) (*models.Offer, error) {
	if !models.IsValidOfferTransition(o.Status, t.To) {
		return nil, &apperrors.InvalidTransitionError{Entity: "offer", From: o.Status, To: t.To, Rule: transitionRule(o.Status, t.To)}
	}

	t.OfferID = o.ID
	t.From = o.Status
	t.At = s.now().UTC()
	t.CountAccept = t.To == models.OfferStatusAccepted

	updated, err := s.offers.ApplyTransition(ctx, t)
	if errors.Is(err, repositories.ErrStaleState) {
		current, gerr := s.offers.GetByID(ctx, o.ID)
		if gerr != nil {
			return nil, gerr
		}
		return nil, &apperrors.InvalidTransitionError{
			Entity: "offer", From: current.Status, To: t.To,
			Rule: fmt.Sprintf("offer changed concurrently and is now %s", current.Status),
		}
	}
	if err != nil {
		return nil, err
	}

	// the transition is committed; follow-up effects are logged, not returned
	ctx = context.WithoutCancel(ctx)

	s.writeAudit(ctx, models.AuditLog{
		ActorUserID: &actorID,
		ActorType:   "user",
		Action:      fmt.Sprintf("offer_status_%s_to_%s", t.From, t.To),
		EntityType:  "offer",
		EntityID:    &updated.ID,
		Meta:        models.TransitionAudit(t.From, t.To, note),
	})

	s.appendSystemMessage(ctx, updated, actorID, t.To, note)
	s.publishStatus(ctx, updated, t.From, actorID)

	s.log.Info("offer transitioned",
		zap.String("offer_id", updated.ID.String()),
		zap.String("from", t.From),
		zap.String("to", t.To),
	)
	return updated, nil
}

func (s *OfferService) appendSystemMessage(ctx context.Context, o *models.Offer, actorID uuid.UUID, status, note string) {
	_, err := s.messenger.Send(ctx, SendInput{
		SenderID:   actorID,
		ReceiverID: o.Counterparty(actorID),
		Content:    systemMessage(o, status, note),
		Type:       models.MessageTypeSystem,
		OfferID:    &o.ID,
	})
	var delayed *apperrors.DeliveryDelayedError
	if err != nil && !errors.As(err, &delayed) {
		s.log.Error("failed to append system message", zap.String("offer_id", o.ID.String()), zap.Error(err))
		return
	}
	if err := s.offers.IncrementMessageCount(ctx, o.ID); err != nil {
		s.log.Warn("failed to count system message", zap.String("offer_id", o.ID.String()), zap.Error(err))
		return
	}
	o.Metadata.MessageCount++
}

func (s *OfferService) publishStatus(ctx context.Context, o *models.Offer, oldStatus string, actorID uuid.UUID) {
	err := s.publisher.Publish(context.WithoutCancel(ctx), events.StreamOffer, events.Event{
		Type:       events.EventOfferStatusChanged,
		Recipients: []uuid.UUID{o.InfluencerID, o.AdvertiserID},
		Offer: &events.OfferStatusChange{
			OfferID:    o.ID,
			CampaignID: o.CampaignID,
			OldStatus:  oldStatus,
			NewStatus:  o.Status,
			ActorID:    actorID,
			At:         o.UpdatedAt,
		},
	})
	if err != nil {
		s.log.Warn("failed to publish offer event", zap.String("offer_id", o.ID.String()), zap.Error(err))
	}
}

// RecordView counts a view by the receiving party at most once per dedup window.
func (s *OfferService) RecordView(ctx context.Context, offerID, viewerID uuid.UUID) (bool, error) {
	o, err := s.Get(ctx, offerID, viewerID)
	if err != nil {
		return false, err
	}
	if o.Initiator() == viewerID {
		return false, nil
	}
	first, err := s.views.FirstSeen(ctx, "offer:"+offerID.String()+":"+viewerID.String())
	if err != nil {
		s.log.Warn("view dedup unavailable", zap.String("offer_id", offerID.String()), zap.Error(err))
		return false, nil
	}
	if !first {
		return false, nil
	}
	if err := s.offers.IncrementViewCount(ctx, offerID); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyModerationDecision records a reviewer's verdict on a queued offer.
func (s *OfferService) ApplyModerationDecision(ctx context.Context, d queue.ReviewDecision) error {
	status := models.ModerationRejected
	if d.Approved {
		status = models.ModerationApproved
	}
	if err := s.offers.UpdateModerationStatus(ctx, d.EntityID, status); err != nil {
		return err
	}
	s.writeAudit(ctx, models.AuditLog{
		ActorUserID: d.ReviewerID,
		ActorType:   "reviewer",
		Action:      "offer_moderation_" + status,
		EntityType:  "offer",
		EntityID:    &d.EntityID,
		Meta:        models.ModerationAudit(!d.Approved, reasonsOf(d.Note), "reviewer"),
	})
	return nil
}

// GetEvents returns the offer's audit trail, oldest first.
func (s *OfferService) GetEvents(ctx context.Context, offerID, actorID uuid.UUID) ([]models.AuditLog, error) {
	if _, err := s.Get(ctx, offerID, actorID); err != nil {
		return nil, err
	}
	return s.audit.GetByEntity(ctx, "offer", offerID, 100, 0)
}

func (s *OfferService) writeAudit(ctx context.Context, entry models.AuditLog) {
	if err := s.audit.Log(ctx, entry); err != nil {
		s.log.Warn("audit log write failed", zap.String("action", entry.Action), zap.Error(err))
	}
}

func transitionRule(from, to string) string {
	switch {
	case models.IsTerminalOfferStatus(from):
		return fmt.Sprintf("offer is %s and can no longer change", from)
	case to == models.OfferStatusCompleted:
		return "only accepted offers can be completed"
	case to == models.OfferStatusWithdrawn:
		return "only open offers can be withdrawn"
	case from == models.OfferStatusAccepted:
		return "accepted offers can only be completed"
	default:
		return fmt.Sprintf("%s offers cannot move to %s", from, to)
	}
}

func systemMessage(o *models.Offer, status, note string) string {
	subject := "Offer"
	if o.Kind == models.OfferKindApplication {
		subject = "Application"
	}
	if o.Title != "" {
		subject += " \"" + o.Title + "\""
	}

	var text string
	switch status {
	case models.OfferStatusAccepted:
		text = subject + " was accepted."
	case models.OfferStatusDeclined:
		text = subject + " was declined."
	case models.OfferStatusCounter:
		text = subject + " received a counter-proposal."
	case models.OfferStatusInfoRequested:
		text = "More information was requested on " + strings.ToLower(subject[:1]) + subject[1:] + "."
	case models.OfferStatusWithdrawn:
		text = subject + " was withdrawn."
	case models.OfferStatusCompleted:
		text = subject + " was marked completed."
	case models.OfferStatusPending:
		text = subject + " was revised."
	default:
		text = subject + " is now " + status + "."
	}
	if note = strings.TrimSpace(note); note != "" {
		text += " Note: " + note
	}
	return text
}

func reasonsOf(note string) []string {
	if note == "" {
		return nil
	}
	return []string{note}
}
