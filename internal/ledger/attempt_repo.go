package ledger

import (
	"context"
	"time"

	"github.com/artpromedia/aivo-sub003/internal/domain"
	"gorm.io/gorm"
)

type AttemptRepository interface {
	Record(ctx context.Context, a *domain.DeliveryAttempt) error
	Finalize(ctx context.Context, id string, status domain.AttemptStatus, reason *string, completedAt time.Time) error
	GetByRequestID(ctx context.Context, requestID string) ([]domain.DeliveryAttempt, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Record(ctx context.Context, a *domain.DeliveryAttempt) error {
	model := attemptModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *attemptModelToDomain(model)
	}
	return nil
}

// Finalize completes a PENDING attempt row. Rows already holding a terminal
// status are never rewritten.
func (r *GormAttemptRepo) Finalize(ctx context.Context, id string, status domain.AttemptStatus, reason *string, completedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&AttemptModel{}).
		Where("id = ? AND status = ?", id, domain.AttemptPending).
		Updates(map[string]any{
			"status":       status,
			"reason":       reason,
			"completed_at": completedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormAttemptRepo) GetByRequestID(ctx context.Context, requestID string) ([]domain.DeliveryAttempt, error) {
	var models []AttemptModel
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.DeliveryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}
