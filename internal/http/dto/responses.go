package dto

type ErrorResponse struct {
	Error        string   `json:"error"`
	Violations   []string `json:"violations,omitempty"`
	RetryAfterMS int64    `json:"retry_after_ms,omitempty"`
	WarningTTLMS int64    `json:"warning_ttl_ms,omitempty"`
	RequestID    string   `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// QueuedResponse is returned when a message was accepted but not yet persisted.
type QueuedResponse struct {
	OK      bool   `json:"ok"`
	Queued  bool   `json:"queued"`
	Pending int    `json:"pending"`
	Data    any    `json:"data"`
	Warning string `json:"warning"`
}

type ViewResponse struct {
	Counted bool `json:"counted"`
}
