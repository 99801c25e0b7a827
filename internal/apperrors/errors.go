// Package apperrors holds the error taxonomy shared by services, repositories and handlers.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// ValidationError aggregates every violated input rule so callers can show all of them at once.
type ValidationError struct {
	err error
}

// Add records a violated rule. Nil-safe on the receiver's zero value.
func (e *ValidationError) Add(rule string) {
	e.err = multierr.Append(e.err, errors.New(rule))
}

// Addf records a violated rule using a format string.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Add(fmt.Sprintf(format, args...))
}

// Violations lists the violated rules in the order they were recorded.
func (e *ValidationError) Violations() []string {
	errs := multierr.Errors(e.err)
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

// Empty reports whether no rule was violated.
func (e *ValidationError) Empty() bool {
	return e.err == nil
}

// Err returns nil when nothing was recorded, otherwise the ValidationError itself.
func (e *ValidationError) Err() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations(), "; ")
}

// InvalidTransitionError means a state-machine precondition did not hold.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
	Rule   string
}

func (e *InvalidTransitionError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("invalid %s transition from %s to %s: %s", e.Entity, e.From, e.To, e.Rule)
	}
	return fmt.Sprintf("invalid %s transition from %s to %s", e.Entity, e.From, e.To)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ForbiddenError means the actor is not allowed to perform the action.
type ForbiddenError struct {
	Rule string
}

func (e *ForbiddenError) Error() string {
	return e.Rule
}

// RateLimitExceededError is transient and local to one sender.
type RateLimitExceededError struct {
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: at most %d messages per %s", e.Limit, e.Window)
}

// DeliveryDelayedError signals a send that was queued for retry rather than failed.
type DeliveryDelayedError struct {
	ClientID string
	Pending  int
}

func (e *DeliveryDelayedError) Error() string {
	return "message queued due to delivery delay"
}

type MatchQueryFailedError struct {
	Err error
}

func (e *MatchQueryFailedError) Error() string {
	return "match query failed: " + e.Err.Error()
}

func (e *MatchQueryFailedError) Unwrap() error { return e.Err }

// StoreUnavailableError wraps infrastructure failures of the record store.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable (%s): %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsStoreUnavailable reports whether err is or wraps a StoreUnavailableError.
func IsStoreUnavailable(err error) bool {
	var su *StoreUnavailableError
	return errors.As(err, &su)
}
