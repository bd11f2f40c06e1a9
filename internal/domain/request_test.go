package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestParseRequestStateFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    RequestState
		wantErr bool
	}{
		{name: "valid uppercase", input: "DELIVERED", want: StateDelivered},
		{name: "valid lowercase with spaces", input: " exhausted ", want: StateExhausted},
		{name: "invalid", input: "unknown", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseRequestStateFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseRequestStateFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseRequestStateFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseRequestStateFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRequestStateIsTerminal(t *testing.T) {
	t.Parallel()

	for _, state := range []RequestState{StateDelivered, StateExhausted} {
		if !state.IsTerminal() {
			t.Fatalf("state %s should be terminal", state)
		}
	}
	for _, state := range []RequestState{StatePending, StateAttemptRealtime, StateAttemptPush, StateAttemptSMS} {
		if state.IsTerminal() {
			t.Fatalf("state %s should not be terminal", state)
		}
	}
}

func TestParseChannelSetFromStrings(t *testing.T) {
	t.Parallel()

	cs, err := ParseChannelSetFromStrings([]string{" realtime ", "push", "sms"})
	if err != nil {
		t.Fatalf("ParseChannelSetFromStrings() unexpected error = %v", err)
	}
	if !cs.Contains(ChannelRealtime) || !cs.Contains(ChannelPush) || !cs.Contains(ChannelSMS) {
		t.Fatalf("channel set missing parsed members: %v", cs)
	}

	_, err = ParseChannelSetFromStrings([]string{"realtime", "realtime"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicate channel error = %v, want ErrValidation", err)
	}

	_, err = ParseChannelSetFromStrings(nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("empty channel set error = %v, want ErrValidation", err)
	}
}

func TestParsePriorityFromString(t *testing.T) {
	t.Parallel()

	got, err := ParsePriorityFromString(" critical ")
	if err != nil {
		t.Fatalf("ParsePriorityFromString() unexpected error = %v", err)
	}
	if got != PriorityCritical {
		t.Fatalf("ParsePriorityFromString() = %s, want %s", got, PriorityCritical)
	}

	_, err = ParsePriorityFromString("urgent")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ParsePriorityFromString() error = %v, want ErrValidation", err)
	}
}

func TestNotificationRequestValidate(t *testing.T) {
	t.Parallel()

	base := NotificationRequest{
		UserID:   "user-1",
		Channels: ChannelSet{ChannelRealtime, ChannelPush},
		Priority: PriorityNormal,
		Payload:  `{"kind":"reminder"}`,
	}

	tests := []struct {
		name   string
		mutate func(r *NotificationRequest)
		want   bool
	}{
		{name: "valid", mutate: func(r *NotificationRequest) {}, want: true},
		{name: "missing user", mutate: func(r *NotificationRequest) { r.UserID = " " }},
		{name: "missing payload", mutate: func(r *NotificationRequest) { r.Payload = "" }},
		{name: "oversized payload", mutate: func(r *NotificationRequest) { r.Payload = strings.Repeat("x", maxPayloadBytes+1) }},
		{name: "empty channel set", mutate: func(r *NotificationRequest) { r.Channels = nil }},
		{name: "bad priority", mutate: func(r *NotificationRequest) { r.Priority = "URGENT" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := base
			tt.mutate(&r)
			err := r.Validate()
			if tt.want {
				if err != nil {
					t.Fatalf("Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSMSEligible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		channels ChannelSet
		priority Priority
		want     bool
	}{
		{name: "critical with sms listed", channels: ChannelSet{ChannelRealtime, ChannelPush, ChannelSMS}, priority: PriorityCritical, want: true},
		{name: "low with sms listed defensively", channels: ChannelSet{ChannelRealtime, ChannelPush, ChannelSMS}, priority: PriorityLow, want: false},
		{name: "sms only request", channels: ChannelSet{ChannelSMS}, priority: PriorityLow, want: true},
		{name: "sms not in set", channels: ChannelSet{ChannelRealtime, ChannelPush}, priority: PriorityCritical, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NotificationRequest{Channels: tt.channels, Priority: tt.priority}
			if got := r.SMSEligible(); got != tt.want {
				t.Fatalf("SMSEligible() = %v, want %v", got, tt.want)
			}
		})
	}
}
