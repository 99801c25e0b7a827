package services

import (
	"strings"
	"unicode/utf8"

	"github.com/collab-market/backend/internal/apperrors"
	"github.com/collab-market/backend/internal/models"
)

const (
	minDescriptionLen = 20
	maxMessageLen     = 4000
)

// validateDetails records every violated offer-detail rule in v.
func validateDetails(v *apperrors.ValidationError, d models.OfferDetails) {
	if d.ProposedRate <= 0 {
		v.Add("proposed_rate must be greater than 0")
	}
	if !hasNonBlank(d.Deliverables) {
		v.Add("deliverables must list at least one item")
	}
	if strings.TrimSpace(d.Timeline) == "" {
		v.Add("timeline must not be empty")
	}
	if desc := strings.TrimSpace(d.Description); desc != "" && utf8.RuneCountInString(desc) < minDescriptionLen {
		v.Addf("description must be at least %d characters", minDescriptionLen)
	}
	if d.Currency != "" && len(d.Currency) != 3 {
		v.Add("currency must be a 3-letter code")
	}
}

func validateCampaign(v *apperrors.ValidationError, c *models.Campaign) {
	if strings.TrimSpace(c.Title) == "" {
		v.Add("title must not be empty")
	}
	if c.Budget.Min < 0 || c.Budget.Max < 0 {
		v.Add("budget must not be negative")
	}
	if c.Budget.Min > c.Budget.Max {
		v.Add("budget min must not exceed budget max")
	}
	for _, p := range c.Preferences.Platforms {
		if !models.IsValidPlatform(p) {
			v.Addf("unknown platform %q", p)
		}
	}
	if r := c.Preferences.AudienceSize; r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		v.Add("audience_size min must not exceed max")
	}
	if t := c.Timeline; t.Start != nil && t.End != nil && t.End.Before(*t.Start) {
		v.Add("timeline end must not be before start")
	}
}

func hasNonBlank(items []string) bool {
	for _, s := range items {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

// cleanList trims items and drops blanks.
func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
