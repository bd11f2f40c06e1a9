package ledger

import (
	"strings"
	"time"

	"github.com/artpromedia/aivo-sub003/internal/domain"
)

// RequestModel is the persistence model for the delivery_requests table.
type RequestModel struct {
	ID        string              `gorm:"type:uuid;primaryKey"`
	FanoutID  *string             `gorm:"type:uuid"`
	UserID    string              `gorm:"type:varchar(64);not null"`
	Channels  string              `gorm:"type:varchar(32);not null"`
	Priority  domain.Priority     `gorm:"type:varchar(10);not null"`
	Payload   string              `gorm:"type:text;not null"`
	State     domain.RequestState `gorm:"type:varchar(20);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RequestModel) TableName() string {
	return "delivery_requests"
}

// AttemptModel is the persistence model for delivery_attempts.
type AttemptModel struct {
	ID            string               `gorm:"type:uuid;primaryKey"`
	RequestID     string               `gorm:"type:uuid;not null"`
	Channel       domain.Channel       `gorm:"type:varchar(10);not null"`
	AttemptNumber int                  `gorm:"not null"`
	Status        domain.AttemptStatus `gorm:"type:varchar(10);not null"`
	Reason        *string              `gorm:"type:varchar(255)"`
	StartedAt     time.Time            `gorm:"not null"`
	CompletedAt   *time.Time
}

func (AttemptModel) TableName() string {
	return "delivery_attempts"
}

// FanoutModel is the persistence model for fanouts.
type FanoutModel struct {
	ID         string              `gorm:"type:uuid;primaryKey"`
	TotalCount int                 `gorm:"not null"`
	Status     domain.FanoutStatus `gorm:"type:varchar(20);not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (FanoutModel) TableName() string {
	return "fanouts"
}

func requestModelFromDomain(r *domain.NotificationRequest) *RequestModel {
	if r == nil {
		return nil
	}

	return &RequestModel{
		ID:        r.ID,
		FanoutID:  r.FanoutID,
		UserID:    r.UserID,
		Channels:  encodeChannels(r.Channels),
		Priority:  r.Priority,
		Payload:   r.Payload,
		State:     r.State,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func requestModelToDomain(m *RequestModel) *domain.NotificationRequest {
	if m == nil {
		return nil
	}

	return &domain.NotificationRequest{
		ID:        m.ID,
		FanoutID:  m.FanoutID,
		UserID:    m.UserID,
		Channels:  decodeChannels(m.Channels),
		Priority:  m.Priority,
		Payload:   m.Payload,
		State:     m.State,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *AttemptModel {
	if a == nil {
		return nil
	}

	return &AttemptModel{
		ID:            a.ID,
		RequestID:     a.RequestID,
		Channel:       a.Channel,
		AttemptNumber: a.AttemptNumber,
		Status:        a.Status,
		Reason:        a.Reason,
		StartedAt:     a.StartedAt,
		CompletedAt:   a.CompletedAt,
	}
}

func attemptModelToDomain(m *AttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:            m.ID,
		RequestID:     m.RequestID,
		Channel:       m.Channel,
		AttemptNumber: m.AttemptNumber,
		Status:        m.Status,
		Reason:        m.Reason,
		StartedAt:     m.StartedAt,
		CompletedAt:   m.CompletedAt,
	}
}

func fanoutModelFromDomain(f *domain.Fanout) *FanoutModel {
	if f == nil {
		return nil
	}

	return &FanoutModel{
		ID:         f.ID,
		TotalCount: f.TotalCount,
		Status:     f.Status,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

func fanoutModelToDomain(m *FanoutModel) *domain.Fanout {
	if m == nil {
		return nil
	}

	return &domain.Fanout{
		ID:         m.ID,
		TotalCount: m.TotalCount,
		Status:     m.Status,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func encodeChannels(cs domain.ChannelSet) string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ",")
}

func decodeChannels(encoded string) domain.ChannelSet {
	if strings.TrimSpace(encoded) == "" {
		return nil
	}
	parts := strings.Split(encoded, ",")
	cs := make(domain.ChannelSet, 0, len(parts))
	for _, p := range parts {
		cs = append(cs, domain.Channel(strings.TrimSpace(p)))
	}
	return cs
}
