package adapter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/artpromedia/aivo-sub003/internal/domain"
	"github.com/artpromedia/aivo-sub003/internal/observability"
	"github.com/artpromedia/aivo-sub003/internal/registry"
	"github.com/artpromedia/aivo-sub003/internal/replay"
)

// Sender pushes one sequenced payload frame down a live connection.
// Implemented by the realtime gateway.
type Sender interface {
	Send(ctx context.Context, connID string, seq uint64, payload string) error
}

// RealtimeAdapter fans a payload out to every ACTIVE connection of the target
// user. A user with no active connections is the expected offline condition
// and yields a skipped outcome, not a failure.
type RealtimeAdapter struct {
	registry *registry.Registry
	replay   *replay.Log
	sender   Sender
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewRealtimeAdapter(reg *registry.Registry, log *replay.Log, sender Sender, logger *zap.Logger) (*RealtimeAdapter, error) {
	if reg == nil {
		return nil, fmt.Errorf("connection registry is required")
	}
	if log == nil {
		return nil, fmt.Errorf("replay log is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RealtimeAdapter{
		registry: reg,
		replay:   log,
		sender:   sender,
		logger:   logger,
	}, nil
}

func (a *RealtimeAdapter) SetMetrics(metrics *observability.Metrics) {
	if a == nil {
		return
	}
	a.metrics = metrics
}

func (a *RealtimeAdapter) Channel() domain.Channel { return domain.ChannelRealtime }

// Attempt broadcasts to all active connections. The replay append happens
// only when at least one active connection exists: offline users get no
// replay entry, the escalation path covers them instead. The append is
// serialized per user by the log itself, so concurrent requests for the same
// user keep sequence numbers monotonic.
func (a *RealtimeAdapter) Attempt(ctx context.Context, req domain.NotificationRequest) (Result, error) {
	conns := a.registry.ActiveConnections(req.UserID)
	if len(conns) == 0 {
		return skipped(domain.ReasonNoActiveConnections), nil
	}

	seq, err := a.replay.Append(req.UserID, req.Payload)
	if err != nil {
		return failed("replay_append_failed"), fmt.Errorf("replay append: %w", err)
	}
	if a.metrics != nil {
		a.metrics.IncReplayAppend()
	}

	reached := 0
	for _, conn := range conns {
		if err := a.sender.Send(ctx, conn.ID, seq, req.Payload); err != nil {
			a.logger.Debug("realtime send failed",
				zap.String("requestId", req.ID),
				zap.String("connectionId", conn.ID),
				zap.Error(err),
			)
			continue
		}
		reached++
	}

	if reached == 0 {
		// Every socket died between the snapshot and the write. The entry
		// stays in the replay log; those clients pick it up on reconnect.
		return failed("broadcast_failed"), nil
	}

	result := delivered(reached)
	result.Seq = seq
	return result, nil
}
