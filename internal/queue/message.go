package queue

import (
	"fmt"
	"strings"

	"github.com/artpromedia/aivo-sub003/internal/domain"
)

// DeliveryMessage is the broker payload for delivery processing. The full
// request lives in the ledger; the queue only carries the pointer plus what
// the broker needs for priority ordering.
type DeliveryMessage struct {
	RequestID string          `json:"requestId"`
	UserID    string          `json:"userId"`
	Priority  domain.Priority `json:"priority"`
}

func (m DeliveryMessage) Validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return fmt.Errorf("requestId is required")
	}
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("userId is required")
	}
	if !m.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", m.Priority)
	}
	return nil
}
