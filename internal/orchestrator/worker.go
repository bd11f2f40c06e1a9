package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpromedia/aivo-sub003/internal/domain"
	"github.com/artpromedia/aivo-sub003/internal/ledger"
	"github.com/artpromedia/aivo-sub003/internal/observability"
	"github.com/artpromedia/aivo-sub003/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// Worker consumes the delivery queue and hands claimed requests to the
// orchestrator. All workers drain the same priority-ordered queue; the broker
// does the priority sorting.
type Worker struct {
	requests     ledger.RequestRepository
	consumer     queue.Consumer
	orchestrator *Orchestrator
	logger       *zap.Logger
	metrics      *observability.Metrics
	concurrency  int
}

func NewWorker(
	requests ledger.RequestRepository,
	consumer queue.Consumer,
	orchestrator *Orchestrator,
	concurrency int,
	logger *zap.Logger,
) (*Worker, error) {
	if requests == nil {
		return nil, fmt.Errorf("request repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		requests:     requests,
		consumer:     consumer,
		orchestrator: orchestrator,
		logger:       logger,
		concurrency:  concurrency,
	}, nil
}

func (w *Worker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start consumes the delivery queue until context cancellation.
func (w *Worker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("delivery worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.WorkQueueName),
			)

			err := w.consumer.Consume(groupCtx, queue.WorkQueueName, w.processMessage)
			if err != nil {
				w.logger.Error("delivery worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("delivery worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (w *Worker) processMessage(ctx context.Context, msg queue.DeliveryMessage) error {
	req, err := w.requests.ClaimForDelivery(ctx, msg.RequestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.logger.Warn("request not found during claim, skipping",
				zap.String("requestId", msg.RequestID),
			)
			return nil
		}
		return fmt.Errorf("failed to claim request for delivery: %w", err)
	}

	// Nil means another worker already claimed it or it is terminal; ack.
	if req == nil {
		return nil
	}

	if w.metrics != nil {
		w.metrics.IncWorkerInFlight()
		defer w.metrics.DecWorkerInFlight()
	}

	if err := w.orchestrator.Run(ctx, req); err != nil {
		return fmt.Errorf("failed to run escalation chain: %w", err)
	}
	return nil
}
