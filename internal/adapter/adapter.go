package adapter

import (
	"context"

	"github.com/artpromedia/aivo-sub003/internal/domain"
)

// Adapter is the uniform delivery port every channel implements. An attempt
// resolves to exactly one of delivered, failed, or skipped; transport errors
// surface as FAILED results with the error attached, never as panics.
type Adapter interface {
	Channel() domain.Channel
	Attempt(ctx context.Context, req domain.NotificationRequest) (Result, error)
}

// Result is the outcome of one channel attempt.
type Result struct {
	Status domain.AttemptStatus
	// Reason explains a skipped or failed outcome, e.g. no_active_connections.
	Reason string
	// Recipients counts connections or endpoints actually reached.
	Recipients int
	// Seq is the replay sequence number assigned on a realtime broadcast.
	Seq uint64
}

func delivered(recipients int) Result {
	return Result{Status: domain.AttemptDelivered, Recipients: recipients}
}

func skipped(reason string) Result {
	return Result{Status: domain.AttemptSkipped, Reason: reason}
}

func failed(reason string) Result {
	return Result{Status: domain.AttemptFailed, Reason: reason}
}
