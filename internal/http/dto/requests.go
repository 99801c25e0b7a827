package dto

import (
	"github.com/collab-market/backend/internal/models"
	"github.com/google/uuid"
)

// Campaigns

type CampaignRequest struct {
	Title       string                      `json:"title"`
	Brand       string                      `json:"brand"`
	Description string                      `json:"description"`
	Budget      models.Budget               `json:"budget"`
	Preferences models.TargetingPreferences `json:"preferences"`
	Timeline    models.CampaignTimeline     `json:"timeline"`
	Status      string                      `json:"status,omitempty"` // create only: draft or active
}

func (r CampaignRequest) Model() *models.Campaign {
	return &models.Campaign{
		Title:       r.Title,
		Brand:       r.Brand,
		Description: r.Description,
		Budget:      r.Budget,
		Preferences: r.Preferences,
		Timeline:    r.Timeline,
		Status:      r.Status,
	}
}

type ChangeStatusRequest struct {
	Status string `json:"status"`
}

// Offers

type OfferDetailsRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ProposedRate float64  `json:"proposed_rate"`
	Currency     string   `json:"currency"`
	Deliverables []string `json:"deliverables"`
	Timeline     string   `json:"timeline"`
	Terms        string   `json:"terms"`
}

func (r OfferDetailsRequest) Model() models.OfferDetails {
	return models.OfferDetails{
		Title:        r.Title,
		Description:  r.Description,
		ProposedRate: r.ProposedRate,
		Currency:     r.Currency,
		Deliverables: r.Deliverables,
		Timeline:     r.Timeline,
		Terms:        r.Terms,
	}
}

type CreateOfferRequest struct {
	InfluencerID uuid.UUID  `json:"influencer_id"`
	AdvertiserID uuid.UUID  `json:"advertiser_id"`
	CampaignID   *uuid.UUID `json:"campaign_id,omitempty"`
	Kind         string     `json:"kind,omitempty"`
	OfferDetailsRequest
}

type RespondOfferRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

type ReviseOfferRequest struct {
	OfferDetailsRequest
	Note string `json:"note,omitempty"`
}

type NoteRequest struct {
	Note string `json:"note,omitempty"`
}

// Messages

type SendMessageRequest struct {
	ReceiverID uuid.UUID  `json:"receiver_id"`
	Content    string     `json:"content"`
	ClientID   string     `json:"client_id,omitempty"`
	OfferID    *uuid.UUID `json:"offer_id,omitempty"`
}
