package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/artpromedia/aivo-sub003/internal/domain"
	"github.com/artpromedia/aivo-sub003/internal/ledger"
	"github.com/artpromedia/aivo-sub003/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxFanoutSize = 1000

// DeliveryService accepts notification requests, persists them to the ledger,
// and enqueues them for the worker pool. The request ID is the idempotency
// key: resubmitting an ID returns the original request untouched.
type DeliveryService struct {
	requests  ledger.RequestRepository
	attempts  ledger.AttemptRepository
	fanouts   ledger.FanoutRepository
	publisher queue.Publisher
	logger    *zap.Logger
}

// StatusView aggregates a request with its full attempt history.
type StatusView struct {
	Request  domain.NotificationRequest
	Attempts []domain.DeliveryAttempt
}

type FanoutSummary struct {
	FanoutID   string
	TotalCount int
	Status     domain.FanoutStatus
	Counts     []StateCount
}

type StateCount struct {
	State domain.RequestState
	Count int
}

func NewDeliveryService(
	requests ledger.RequestRepository,
	attempts ledger.AttemptRepository,
	fanouts ledger.FanoutRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*DeliveryService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryService{
		requests:  requests,
		attempts:  attempts,
		fanouts:   fanouts,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// Submit accepts one request. Duplicate IDs resolve to the already-stored
// request so retried submissions never create a second delivery.
func (s *DeliveryService) Submit(ctx context.Context, req *domain.NotificationRequest) (*domain.NotificationRequest, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := prepareRequestForCreate(req, nil); err != nil {
		return nil, err
	}

	if err := s.requests.Create(ctx, req); err != nil {
		existing, resolved, resolveErr := s.resolveDuplicateSubmission(ctx, err, req.ID)
		if resolveErr != nil {
			return nil, resolveErr
		}
		if resolved {
			return existing, nil
		}
		return nil, err
	}

	s.enqueue(ctx, req)
	return req, nil
}

// SubmitFanout accepts one payload for many recipients, creating a per-user
// request for each under a shared fan-out ID.
func (s *DeliveryService) SubmitFanout(
	ctx context.Context,
	requests []domain.NotificationRequest,
) (*domain.Fanout, []domain.NotificationRequest, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(requests) == 0 {
		return nil, nil, fmt.Errorf("%w: fan-out must include at least one recipient", domain.ErrValidation)
	}
	if len(requests) > maxFanoutSize {
		return nil, nil, fmt.Errorf("%w: fan-out size exceeds %d", domain.ErrValidation, maxFanoutSize)
	}

	fanoutID := uuid.NewString()

	created := make([]domain.NotificationRequest, len(requests))
	createdPtrs := make([]*domain.NotificationRequest, len(requests))
	for i := range requests {
		created[i] = requests[i]
		if err := prepareRequestForCreate(&created[i], &fanoutID); err != nil {
			return nil, nil, err
		}
		createdPtrs[i] = &created[i]
	}

	fanout := &domain.Fanout{
		ID:         fanoutID,
		TotalCount: len(requests),
		Status:     domain.FanoutStatusProcessing,
	}
	if err := s.fanouts.Create(ctx, fanout); err != nil {
		return nil, nil, err
	}

	if err := s.requests.CreateBatch(ctx, createdPtrs); err != nil {
		_ = s.fanouts.UpdateStatus(ctx, fanout.ID, domain.FanoutStatusPartialFailure)
		return nil, nil, err
	}

	failed := 0
	for i := range createdPtrs {
		if !s.enqueue(ctx, createdPtrs[i]) {
			failed++
		}
	}

	fanout.Status = domain.FanoutStatusCompleted
	if failed > 0 {
		fanout.Status = domain.FanoutStatusPartialFailure
	}
	if err := s.fanouts.UpdateStatus(ctx, fanout.ID, fanout.Status); err != nil {
		return nil, nil, err
	}

	if failed > 0 {
		s.logger.Warn("fan-out enqueued with partial failure, sweeper will recover",
			zap.String("fanoutId", fanout.ID),
			zap.Int("failed", failed),
			zap.Int("total", len(created)),
		)
	}

	return fanout, created, nil
}

func (s *DeliveryService) GetStatus(ctx context.Context, id string) (*StatusView, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: request id is required", domain.ErrValidation)
	}

	req, err := s.requests.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	attempts, err := s.attempts.GetByRequestID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	return &StatusView{
		Request:  *req,
		Attempts: attempts,
	}, nil
}

func (s *DeliveryService) GetFanoutSummary(ctx context.Context, fanoutID string) (*FanoutSummary, error) {
	if strings.TrimSpace(fanoutID) == "" {
		return nil, fmt.Errorf("%w: fan-out id is required", domain.ErrValidation)
	}

	fanout, err := s.fanouts.GetByID(ctx, strings.TrimSpace(fanoutID))
	if err != nil {
		return nil, err
	}

	states, err := s.requests.GetFanoutSummary(ctx, fanout.ID)
	if err != nil {
		return nil, err
	}

	counts := make([]StateCount, 0, len(states))
	for _, summary := range states {
		counts = append(counts, StateCount{
			State: summary.State,
			Count: summary.Count,
		})
	}

	return &FanoutSummary{
		FanoutID:   fanout.ID,
		TotalCount: fanout.TotalCount,
		Status:     fanout.Status,
		Counts:     counts,
	}, nil
}

func (s *DeliveryService) List(
	ctx context.Context,
	params ledger.ListParams,
) ([]domain.NotificationRequest, int64, error) {
	return s.requests.List(ctx, params)
}

// enqueue publishes the delivery message for a stored request. A publish
// failure is not fatal: the request stays PENDING in the ledger and the
// redelivery sweeper re-publishes it.
func (s *DeliveryService) enqueue(ctx context.Context, req *domain.NotificationRequest) bool {
	msg := queue.DeliveryMessage{
		RequestID: req.ID,
		UserID:    req.UserID,
		Priority:  req.Priority,
	}
	if err := s.publisher.Publish(ctx, queue.WorkQueueName, msg); err != nil {
		s.logger.Error("failed to publish delivery message",
			zap.String("requestId", req.ID),
			zap.String("userId", req.UserID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func prepareRequestForCreate(req *domain.NotificationRequest, fanoutID *string) error {
	if req == nil {
		return fmt.Errorf("%w: request is required", domain.ErrValidation)
	}

	req.UserID = strings.TrimSpace(req.UserID)
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if fanoutID != nil {
		req.FanoutID = fanoutID
	}

	req.State = domain.StatePending
	if req.Priority == "" {
		req.Priority = domain.PriorityNormal
	}

	return req.Validate()
}

func (s *DeliveryService) resolveDuplicateSubmission(
	ctx context.Context,
	createErr error,
	id string,
) (*domain.NotificationRequest, bool, error) {
	if !isUniqueViolationError(createErr) {
		return nil, false, nil
	}

	existing, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing request after duplicate submission: %w", err)
	}
	s.logger.Info("duplicate submission resolved to existing request",
		zap.String("requestId", existing.ID),
		zap.String("state", existing.State.String()),
	)
	return existing, true, nil
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
