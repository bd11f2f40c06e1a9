package ledger

import (
	"context"
	"errors"

	"github.com/artpromedia/aivo-sub003/internal/domain"
	"gorm.io/gorm"
)

type FanoutRepository interface {
	Create(ctx context.Context, f *domain.Fanout) error
	GetByID(ctx context.Context, id string) (*domain.Fanout, error)
	UpdateStatus(ctx context.Context, id string, status domain.FanoutStatus) error
}

type GormFanoutRepo struct {
	db *gorm.DB
}

func NewGormFanoutRepo(db *gorm.DB) *GormFanoutRepo {
	return &GormFanoutRepo{db: db}
}

func (r *GormFanoutRepo) Create(ctx context.Context, f *domain.Fanout) error {
	model := fanoutModelFromDomain(f)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if f != nil {
		*f = *fanoutModelToDomain(model)
	}
	return nil
}

func (r *GormFanoutRepo) GetByID(ctx context.Context, id string) (*domain.Fanout, error) {
	var model FanoutModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fanoutModelToDomain(&model), nil
}

func (r *GormFanoutRepo) UpdateStatus(ctx context.Context, id string, status domain.FanoutStatus) error {
	result := r.db.WithContext(ctx).
		Model(&FanoutModel{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
