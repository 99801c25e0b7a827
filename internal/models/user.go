package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the slice of the user profile this service reads.
type Profile struct {
	ID                   uuid.UUID `json:"id"`
	Role                 string    `json:"role"` // influencer / advertiser
	DisplayName          *string   `json:"display_name,omitempty"`
	BasicProfileComplete bool      `json:"basic_profile_complete"`
	CreatedAt            time.Time `json:"created_at"`
	LastActiveAt         time.Time `json:"last_active_at"`
}
