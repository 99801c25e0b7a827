package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Campaign statuses
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusCancelled = "cancelled"
)

var ValidCampaignTransitions = map[string][]string{
	CampaignStatusDraft:     {CampaignStatusActive, CampaignStatusCancelled},
	CampaignStatusActive:    {CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusCancelled},
	CampaignStatusPaused:    {CampaignStatusActive, CampaignStatusCancelled},
	CampaignStatusCompleted: {},
	CampaignStatusCancelled: {},
}

func IsValidCampaignTransition(from, to string) bool {
	return slices.Contains(ValidCampaignTransitions[from], to)
}

// Moderation states shared by campaigns and offers.
const (
	ModerationApproved      = "approved"
	ModerationPendingReview = "pending_review"
	ModerationRejected      = "rejected"
)

type Budget struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
}

// IntRange is an inclusive range; nil bounds are open.
type IntRange struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

func (r IntRange) Contains(v int) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

func (r IntRange) IsZero() bool {
	return r.Min == nil && r.Max == nil
}

type Demographics struct {
	AgeRange  IntRange `json:"age_range"`
	Genders   []string `json:"genders,omitempty"`
	Countries []string `json:"countries,omitempty"`
}

type TargetingPreferences struct {
	Platforms    []string     `json:"platforms,omitempty"`
	ContentTypes []string     `json:"content_types,omitempty"`
	AudienceSize IntRange     `json:"audience_size"`
	Demographics Demographics `json:"demographics"`
}

type Deliverable struct {
	Type      string     `json:"type"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Completed bool       `json:"completed"`
}

type CampaignTimeline struct {
	Start        *time.Time    `json:"start,omitempty"`
	End          *time.Time    `json:"end,omitempty"`
	Deliverables []Deliverable `json:"deliverables"`
}

// CampaignMetrics counters only grow and are written by the system, never by user edits.
type CampaignMetrics struct {
	Applicants  int `json:"applicants"`
	Accepted    int `json:"accepted"`
	Impressions int `json:"impressions"`
	Engagement  int `json:"engagement"`
}

type Campaign struct {
	ID               uuid.UUID            `json:"id"`
	AdvertiserUserID uuid.UUID            `json:"advertiser_user_id"`
	Title            string               `json:"title"`
	Brand            string               `json:"brand"`
	Description      string               `json:"description"`
	Budget           Budget               `json:"budget"`
	Preferences      TargetingPreferences `json:"preferences"`
	Status           string               `json:"status"`
	Timeline         CampaignTimeline     `json:"timeline"`
	Metrics          CampaignMetrics      `json:"metrics"`
	ModerationStatus string               `json:"moderation_status"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}
