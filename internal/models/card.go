package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Platforms a card can be published on.
const (
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
	PlatformYouTube   = "youtube"
	PlatformTwitter   = "twitter"
	PlatformTwitch    = "twitch"
)

var AllPlatforms = []string{PlatformInstagram, PlatformTikTok, PlatformYouTube, PlatformTwitter, PlatformTwitch}

func IsValidPlatform(p string) bool {
	return slices.Contains(AllPlatforms, p)
}

type Reach struct {
	Followers      int     `json:"followers"`
	AverageViews   int     `json:"average_views"`
	EngagementRate float64 `json:"engagement_rate"`
}

type AudienceDemographics struct {
	AgeRange     IntRange `json:"age_range"`
	Genders      []string `json:"genders,omitempty"`
	TopCountries []string `json:"top_countries,omitempty"`
}

type ServicePrice struct {
	Service  string  `json:"service"`
	Rate     float64 `json:"rate"`
	Currency string  `json:"currency"`
}

// CandidateCard is a published profile fragment; the matching engine only reads it.
type CandidateCard struct {
	ID                   uuid.UUID            `json:"id"`
	InfluencerUserID     uuid.UUID            `json:"influencer_user_id"`
	Platform             string               `json:"platform"`
	Reach                Reach                `json:"reach"`
	AudienceDemographics AudienceDemographics `json:"audience_demographics"`
	Pricing              []ServicePrice       `json:"pricing"`
	Active               bool                 `json:"active"`
	CreatedAt            time.Time            `json:"created_at"`
}
