package domain

import "time"

// FanoutStatus represents the processing state of a multi-recipient fan-out.
type FanoutStatus string

const (
	FanoutStatusProcessing     FanoutStatus = "PROCESSING"
	FanoutStatusCompleted      FanoutStatus = "COMPLETED"
	FanoutStatusPartialFailure FanoutStatus = "PARTIAL_FAILURE"
)

func (s FanoutStatus) String() string { return string(s) }

func (s FanoutStatus) IsValid() bool {
	switch s {
	case FanoutStatusProcessing, FanoutStatusCompleted, FanoutStatusPartialFailure:
		return true
	}
	return false
}

// Fanout groups the per-user requests created from one multi-recipient
// submission.
type Fanout struct {
	ID         string
	TotalCount int
	Status     FanoutStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
