package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit meta kinds
const (
	AuditMetaTransition = "transition"
	AuditMetaModeration = "moderation"
	AuditMetaOpaque     = "opaque"
)

type TransitionMeta struct {
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Note      string `json:"note,omitempty"`
}

type ModerationMeta struct {
	Flagged bool     `json:"flagged"`
	Reasons []string `json:"reasons,omitempty"`
	Source  string   `json:"source"` // gate / reviewer
}

// AuditMeta is a tagged union: exactly the member named by Kind is set.
// Raw carries payloads of kinds this build does not know about.
type AuditMeta struct {
	Kind       string          `json:"kind"`
	Transition *TransitionMeta `json:"transition,omitempty"`
	Moderation *ModerationMeta `json:"moderation,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

func TransitionAudit(oldStatus, newStatus, note string) *AuditMeta {
	return &AuditMeta{
		Kind:       AuditMetaTransition,
		Transition: &TransitionMeta{OldStatus: oldStatus, NewStatus: newStatus, Note: note},
	}
}

func ModerationAudit(flagged bool, reasons []string, source string) *AuditMeta {
	return &AuditMeta{
		Kind:       AuditMetaModeration,
		Moderation: &ModerationMeta{Flagged: flagged, Reasons: reasons, Source: source},
	}
}

type AuditLog struct {
	ID          uuid.UUID  `json:"id"`
	ActorUserID *uuid.UUID `json:"actor_user_id,omitempty"`
	ActorType   string     `json:"actor_type"` // user/system/reviewer
	Action      string     `json:"action"`
	EntityType  string     `json:"entity_type"`
	EntityID    *uuid.UUID `json:"entity_id,omitempty"`
	Meta        *AuditMeta `json:"meta,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
