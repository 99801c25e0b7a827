package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Offer statuses
const (
	OfferStatusPending       = "pending"
	OfferStatusAccepted      = "accepted"
	OfferStatusDeclined      = "declined"
	OfferStatusCounter       = "counter"
	OfferStatusWithdrawn     = "withdrawn"
	OfferStatusInfoRequested = "info_requested"
	OfferStatusCompleted     = "completed"
)

// Valid state transitions: from -> []to
var ValidOfferTransitions = map[string][]string{
	OfferStatusPending: {
		OfferStatusAccepted, OfferStatusDeclined, OfferStatusCounter,
		OfferStatusInfoRequested, OfferStatusWithdrawn,
	},
	OfferStatusCounter: {
		OfferStatusPending, OfferStatusAccepted, OfferStatusDeclined, OfferStatusCounter,
		OfferStatusInfoRequested, OfferStatusWithdrawn,
	},
	OfferStatusInfoRequested: {
		OfferStatusPending, OfferStatusAccepted, OfferStatusDeclined, OfferStatusCounter,
		OfferStatusInfoRequested, OfferStatusWithdrawn,
	},
	OfferStatusAccepted:  {OfferStatusCompleted},
	OfferStatusDeclined:  {},
	OfferStatusWithdrawn: {},
	OfferStatusCompleted: {},
}

// RespondTargets are the statuses a counterparty may answer with.
var RespondTargets = []string{
	OfferStatusAccepted, OfferStatusDeclined, OfferStatusCounter, OfferStatusInfoRequested,
}

func IsValidOfferTransition(from, to string) bool {
	return slices.Contains(ValidOfferTransitions[from], to)
}

// IsOpenOfferStatus reports whether the offer is still under negotiation.
func IsOpenOfferStatus(s string) bool {
	return s == OfferStatusPending || s == OfferStatusCounter || s == OfferStatusInfoRequested
}

func IsTerminalOfferStatus(s string) bool {
	t, ok := ValidOfferTransitions[s]
	return ok && len(t) == 0
}

// Offer kinds
const (
	OfferKindOffer       = "offer"
	OfferKindApplication = "application"
)

// Participant sides
const (
	SideInfluencer = "influencer"
	SideAdvertiser = "advertiser"
)

type OfferDetails struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	ProposedRate float64  `json:"proposed_rate"`
	Currency     string   `json:"currency"`
	Deliverables []string `json:"deliverables"`
	Timeline     string   `json:"timeline"`
	Terms        string   `json:"terms,omitempty"`
}

type OfferTimeline struct {
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type OfferMetadata struct {
	ViewCount    int `json:"view_count"`
	MessageCount int `json:"message_count"`
}

// Offer covers both advertiser-initiated offers and applications from either side.
// Details and timeline are embedded so the JSON record stays flat.
type Offer struct {
	ID           uuid.UUID  `json:"id"`
	InfluencerID uuid.UUID  `json:"influencer_id"`
	AdvertiserID uuid.UUID  `json:"advertiser_id"`
	CampaignID   *uuid.UUID `json:"campaign_id,omitempty"`
	Kind         string     `json:"kind"`
	InitiatedBy  string     `json:"initiated_by"`
	Status       string     `json:"status"`
	OfferDetails
	OfferTimeline
	Metadata         OfferMetadata `json:"metadata"`
	ModerationStatus string        `json:"moderation_status"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Initiator returns the user id of the party that created the record.
func (o *Offer) Initiator() uuid.UUID {
	if o.InitiatedBy == SideInfluencer {
		return o.InfluencerID
	}
	return o.AdvertiserID
}

// Counterparty returns the other participant of userID.
func (o *Offer) Counterparty(userID uuid.UUID) uuid.UUID {
	if userID == o.InfluencerID {
		return o.AdvertiserID
	}
	return o.InfluencerID
}

func (o *Offer) IsParticipant(userID uuid.UUID) bool {
	return userID == o.InfluencerID || userID == o.AdvertiserID
}

// OfferTransition is a compare-and-set request against the stored offer.
type OfferTransition struct {
	OfferID     uuid.UUID
	From        string
	To          string
	At          time.Time
	SetResponse bool          // stamp responded_at if it is still empty
	SetComplete bool          // stamp completed_at
	Details     *OfferDetails // replace details (re-negotiation)
	CountAccept bool          // bump campaign metrics.accepted in the same write
}
