package queue

import (
	"context"
	"fmt"

	"github.com/artpromedia/aivo-sub003/internal/domain"
)

// Publisher publishes delivery messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DeliveryMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg DeliveryMessage) error

// Consumer consumes delivery messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// WorkQueueName is the single priority-ordered delivery work queue.
	// Channel escalation happens inside one worker, so there is no
	// per-channel queue split.
	WorkQueueName = "deliveries"

	// queueMaxPriority is the RabbitMQ x-max-priority value for the work queue.
	queueMaxPriority int32 = 4
)

// DLQName returns the dead-letter queue name for the work queue.
func DLQName() string {
	return fmt.Sprintf("dlq.%s", WorkQueueName)
}

// PriorityValue maps domain priority to RabbitMQ message priority.
func PriorityValue(priority domain.Priority) uint8 {
	switch priority {
	case domain.PriorityCritical:
		return 4
	case domain.PriorityHigh:
		return 3
	case domain.PriorityNormal:
		return 2
	case domain.PriorityLow:
		return 1
	default:
		return 0
	}
}
