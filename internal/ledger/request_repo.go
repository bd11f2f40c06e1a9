// Package ledger is the durable record of every notification request and its
// per-channel attempt history, backing idempotency checks and status queries.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/artpromedia/aivo-sub003/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListParams struct {
	State    *domain.RequestState
	UserID   *string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type StateCount struct {
	State domain.RequestState `gorm:"column:state"`
	Count int                 `gorm:"column:count"`
}

type RequestRepository interface {
	Create(ctx context.Context, r *domain.NotificationRequest) error
	CreateBatch(ctx context.Context, requests []*domain.NotificationRequest) error
	GetByID(ctx context.Context, id string) (*domain.NotificationRequest, error)
	List(ctx context.Context, params ListParams) ([]domain.NotificationRequest, int64, error)
	MarkState(ctx context.Context, id string, state domain.RequestState) error
	ClaimForDelivery(ctx context.Context, id string) (*domain.NotificationRequest, error)
	RequeueStalled(ctx context.Context, olderThan time.Time, limit int) ([]domain.NotificationRequest, error)
	GetFanoutSummary(ctx context.Context, fanoutID string) ([]StateCount, error)
}

var nonTerminalStates = []domain.RequestState{
	domain.StatePending,
	domain.StateAttemptRealtime,
	domain.StateAttemptPush,
	domain.StateAttemptSMS,
}

type GormRequestRepo struct {
	db *gorm.DB
}

func NewGormRequestRepo(db *gorm.DB) *GormRequestRepo {
	return &GormRequestRepo{db: db}
}

func (r *GormRequestRepo) Create(ctx context.Context, req *domain.NotificationRequest) error {
	model := requestModelFromDomain(req)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if req != nil {
		*req = *requestModelToDomain(model)
	}
	return nil
}

func (r *GormRequestRepo) CreateBatch(ctx context.Context, requests []*domain.NotificationRequest) error {
	models := make([]RequestModel, 0, len(requests))
	modelIndexes := make([]int, 0, len(requests))
	for i, req := range requests {
		model := requestModelFromDomain(req)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(requests) && requests[idx] != nil {
			*requests[idx] = *requestModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormRequestRepo) GetByID(ctx context.Context, id string) (*domain.NotificationRequest, error) {
	var model RequestModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return requestModelToDomain(&model), nil
}

func (r *GormRequestRepo) List(ctx context.Context, params ListParams) ([]domain.NotificationRequest, int64, error) {
	query := r.db.WithContext(ctx).Model(&RequestModel{})

	if params.State != nil {
		query = query.Where("state = ?", *params.State)
	}
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []RequestModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	requests := make([]domain.NotificationRequest, 0, len(models))
	for i := range models {
		requests = append(requests, *requestModelToDomain(&models[i]))
	}

	return requests, total, nil
}

// MarkState advances a request's state. Terminal states are sticky: once a
// request is DELIVERED or EXHAUSTED no transition touches it again.
func (r *GormRequestRepo) MarkState(ctx context.Context, id string, state domain.RequestState) error {
	result := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("id = ? AND state NOT IN ?", id, []domain.RequestState{domain.StateDelivered, domain.StateExhausted}).
		Update("state", state)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// ClaimForDelivery atomically moves a PENDING request into the state machine
// and returns it. The state guard on the update is the claim: only one
// worker flips PENDING to ATTEMPT_REALTIME, so duplicate queue deliveries
// resolve to (nil, nil) no-ops even when they race.
func (r *GormRequestRepo) ClaimForDelivery(ctx context.Context, id string) (*domain.NotificationRequest, error) {
	result := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("id = ? AND state = ?", id, domain.StatePending).
		Update("state", domain.StateAttemptRealtime)
	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		var count int64
		err := r.db.WithContext(ctx).
			Model(&RequestModel{}).
			Where("id = ?", id).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, domain.ErrNotFound
		}
		// Another worker holds the claim, or the request is terminal.
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

// RequeueStalled resets every non-terminal request that has not moved past
// the cutoff back to PENDING and returns the reset rows for re-publication.
// That covers both lost publishes (still PENDING) and requests abandoned
// mid-chain by a crashed worker (stuck in an ATTEMPT state). The update
// refreshes updated_at, so a row is picked up at most once per sweep age.
// Terminal requests are never touched.
func (r *GormRequestRepo) RequeueStalled(ctx context.Context, olderThan time.Time, limit int) ([]domain.NotificationRequest, error) {
	stalled := r.db.
		Model(&RequestModel{}).
		Select("id").
		Where("state IN ? AND updated_at <= ?", nonTerminalStates, olderThan).
		Order("updated_at ASC").
		Limit(limit)

	var models []RequestModel
	err := r.db.WithContext(ctx).
		Model(&models).
		Clauses(clause.Returning{}).
		Where("id IN (?)", stalled).
		Update("state", domain.StatePending).Error
	if err != nil {
		return nil, err
	}

	requests := make([]domain.NotificationRequest, 0, len(models))
	for i := range models {
		requests = append(requests, *requestModelToDomain(&models[i]))
	}

	return requests, nil
}

func (r *GormRequestRepo) GetFanoutSummary(ctx context.Context, fanoutID string) ([]StateCount, error) {
	var summaries []StateCount
	err := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Select("state, COUNT(*) as count").
		Where("fanout_id = ?", fanoutID).
		Group("state").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
