package domain

import (
	"fmt"
	"strings"
	"time"
)

// AttemptStatus represents the outcome of a single channel attempt.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "PENDING"
	AttemptDelivered AttemptStatus = "DELIVERED"
	AttemptFailed    AttemptStatus = "FAILED"
	AttemptSkipped   AttemptStatus = "SKIPPED"
)

func (s AttemptStatus) String() string { return string(s) }

func (s AttemptStatus) IsValid() bool {
	switch s {
	case AttemptPending, AttemptDelivered, AttemptFailed, AttemptSkipped:
		return true
	}
	return false
}

// IsTerminal reports whether the attempt row may no longer be rewritten.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptDelivered || s == AttemptFailed || s == AttemptSkipped
}

func ParseAttemptStatusFromString(s string) (AttemptStatus, error) {
	st := AttemptStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid attempt status %q", ErrValidation, s)
	}
	return st, nil
}

// Skip reasons shared between adapters and the ledger.
const (
	ReasonNoActiveConnections = "no_active_connections"
	ReasonNoSubscriptions     = "no_subscriptions"
	ReasonNoPhoneOnFile       = "no_phone_on_file"
	ReasonNotEligible         = "not_eligible"
)

// DeliveryAttempt records a single channel-level attempt for a request.
// Rows are append-only: once a terminal status is written it is never mutated.
type DeliveryAttempt struct {
	ID            string
	RequestID     string
	Channel       Channel
	AttemptNumber int
	Status        AttemptStatus
	Reason        *string
	StartedAt     time.Time
	CompletedAt   *time.Time
}
