package domain

import (
	"fmt"
	"strings"
	"time"
)

// RequestState represents the lifecycle state of a notification request.
type RequestState string

const (
	StatePending         RequestState = "PENDING"
	StateAttemptRealtime RequestState = "ATTEMPT_REALTIME"
	StateAttemptPush     RequestState = "ATTEMPT_PUSH"
	StateAttemptSMS      RequestState = "ATTEMPT_SMS"
	StateDelivered       RequestState = "DELIVERED"
	StateExhausted       RequestState = "EXHAUSTED"
)

func (s RequestState) String() string { return string(s) }

func (s RequestState) IsValid() bool {
	switch s {
	case StatePending, StateAttemptRealtime, StateAttemptPush, StateAttemptSMS, StateDelivered, StateExhausted:
		return true
	}
	return false
}

// IsTerminal reports whether no further channel attempts may occur.
func (s RequestState) IsTerminal() bool {
	return s == StateDelivered || s == StateExhausted
}

func ParseRequestStateFromString(s string) (RequestState, error) {
	st := RequestState(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid state %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents one delivery transport.
type Channel string

const (
	ChannelRealtime Channel = "REALTIME"
	ChannelPush     Channel = "PUSH"
	ChannelSMS      Channel = "SMS"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelRealtime, ChannelPush, ChannelSMS:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// EscalationOrder is the fixed order channels are tried in: realtime is free
// and lowest-latency, SMS carries real-world cost and goes last.
var EscalationOrder = []Channel{ChannelRealtime, ChannelPush, ChannelSMS}

// ChannelSet is the set of channels a caller requested for one notification.
type ChannelSet []Channel

func (cs ChannelSet) Contains(c Channel) bool {
	for _, item := range cs {
		if item == c {
			return true
		}
	}
	return false
}

func (cs ChannelSet) Validate() error {
	if len(cs) == 0 {
		return fmt.Errorf("%w: at least one channel is required", ErrValidation)
	}
	seen := make(map[Channel]bool, len(cs))
	for _, c := range cs {
		if !c.IsValid() {
			return fmt.Errorf("%w: invalid channel %q", ErrValidation, c)
		}
		if seen[c] {
			return fmt.Errorf("%w: duplicate channel %q", ErrValidation, c)
		}
		seen[c] = true
	}
	return nil
}

func ParseChannelSetFromStrings(values []string) (ChannelSet, error) {
	cs := make(ChannelSet, 0, len(values))
	for _, v := range values {
		c, err := ParseChannelFromString(v)
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	return cs, nil
}

// Priority represents the message priority level.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

const maxPayloadBytes = 16 * 1024

// NotificationRequest is one logical notification to deliver to one user.
// The ID doubles as the caller's idempotency key; the request is immutable
// once accepted.
type NotificationRequest struct {
	ID        string
	FanoutID  *string
	UserID    string
	Channels  ChannelSet
	Priority  Priority
	Payload   string
	State     RequestState
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *NotificationRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(r.Payload) == "" {
		return fmt.Errorf("%w: payload is required", ErrValidation)
	}
	if len(r.Payload) > maxPayloadBytes {
		return fmt.Errorf("%w: payload exceeds %d bytes (got %d)", ErrValidation, maxPayloadBytes, len(r.Payload))
	}
	if err := r.Channels.Validate(); err != nil {
		return err
	}
	if !r.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, r.Priority)
	}
	return nil
}

// SMSEligible reports whether the SMS channel may be attempted at all for
// this request: it must be explicitly requested, and low-stakes traffic never
// escalates to SMS unless the priority is critical.
func (r *NotificationRequest) SMSEligible() bool {
	if !r.Channels.Contains(ChannelSMS) {
		return false
	}
	return r.Priority == PriorityCritical || len(r.Channels) == 1
}
