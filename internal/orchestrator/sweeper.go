package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/artpromedia/aivo-sub003/internal/ledger"
	"github.com/artpromedia/aivo-sub003/internal/queue"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultSweepAge      = time.Minute
	defaultSweepLimit    = 100
)

// Sweeper periodically resets stalled non-terminal requests to PENDING and
// re-publishes them. That covers publish failures, broker message loss, and
// requests abandoned mid-chain by a crashed worker: every accepted request
// keeps moving until it reaches a terminal state. Re-publishing a request a
// worker is still processing is harmless because the claim is atomic.
type Sweeper struct {
	requests  ledger.RequestRepository
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	age       time.Duration
	limit     int
	now       func() time.Time
}

func NewSweeper(
	requests ledger.RequestRepository,
	publisher queue.Publisher,
	interval time.Duration,
	age time.Duration,
	limit int,
	logger *zap.Logger,
) (*Sweeper, error) {
	if requests == nil {
		return nil, fmt.Errorf("request repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if age <= 0 {
		age = defaultSweepAge
	}
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		requests:  requests,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		age:       age,
		limit:     limit,
		now:       time.Now,
	}, nil
}

func (s *Sweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial sweep so requests stranded across a restart do not wait
	// for the first ticker edge.
	if err := s.sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("redelivery sweeper initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("redelivery sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.age)
	stalled, err := s.requests.RequeueStalled(ctx, cutoff, s.limit)
	if err != nil {
		return fmt.Errorf("failed to requeue stalled requests: %w", err)
	}

	for i := range stalled {
		req := stalled[i]
		msg := queue.DeliveryMessage{
			RequestID: req.ID,
			UserID:    req.UserID,
			Priority:  req.Priority,
		}

		if err := s.publisher.Publish(ctx, queue.WorkQueueName, msg); err != nil {
			s.logger.Error("failed to re-publish stalled request",
				zap.String("requestId", req.ID),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("re-published stalled request",
			zap.String("requestId", req.ID),
			zap.Time("updatedAt", req.UpdatedAt),
		)
	}

	return nil
}
