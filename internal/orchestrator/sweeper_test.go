package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpromedia/aivo-sub003/internal/domain"
	"github.com/artpromedia/aivo-sub003/internal/queue"
	"go.uber.org/zap"
)

func TestSweeperRepublishesStalledRequests(t *testing.T) {
	t.Parallel()

	base := time.Unix(1_700_000_000, 0).UTC()
	repo := &fakeRequestRepo{
		requeueStalledFn: func(ctx context.Context, olderThan time.Time, limit int) ([]domain.NotificationRequest, error) {
			wantCutoff := base.Add(-time.Minute)
			if !olderThan.Equal(wantCutoff) {
				t.Fatalf("cutoff = %v, want %v", olderThan, wantCutoff)
			}
			// A lost publish and a request abandoned mid-chain both come
			// back reset to PENDING.
			return []domain.NotificationRequest{
				{ID: "r1", UserID: "u1", Priority: domain.PriorityHigh, State: domain.StatePending},
				{ID: "r2", UserID: "u2", Priority: domain.PriorityLow, State: domain.StatePending},
			}, nil
		},
	}

	var published []queue.DeliveryMessage
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
			if queueName != queue.WorkQueueName {
				t.Fatalf("queue = %s, want %s", queueName, queue.WorkQueueName)
			}
			published = append(published, msg)
			return nil
		},
	}

	sweeper, err := NewSweeper(repo, publisher, time.Second, time.Minute, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}
	sweeper.now = func() time.Time { return base }

	if err := sweeper.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}

	if len(published) != 2 {
		t.Fatalf("published = %d, want 2", len(published))
	}
	if published[0].RequestID != "r1" || published[1].RequestID != "r2" {
		t.Fatalf("published ids = %s,%s, want r1,r2", published[0].RequestID, published[1].RequestID)
	}
	if published[0].Priority != domain.PriorityHigh {
		t.Fatalf("priority = %s, want HIGH", published[0].Priority)
	}
}

func TestSweeperContinuesPastPublishFailure(t *testing.T) {
	t.Parallel()

	repo := &fakeRequestRepo{
		requeueStalledFn: func(ctx context.Context, olderThan time.Time, limit int) ([]domain.NotificationRequest, error) {
			return []domain.NotificationRequest{
				{ID: "r1", UserID: "u1", Priority: domain.PriorityNormal, State: domain.StatePending},
				{ID: "r2", UserID: "u2", Priority: domain.PriorityNormal, State: domain.StatePending},
			}, nil
		},
	}

	var published []string
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
			if msg.RequestID == "r1" {
				return errors.New("broker hiccup")
			}
			published = append(published, msg.RequestID)
			return nil
		},
	}

	sweeper, err := NewSweeper(repo, publisher, time.Second, time.Minute, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}

	if err := sweeper.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}

	if len(published) != 1 || published[0] != "r2" {
		t.Fatalf("published = %v, want [r2]", published)
	}
}

func TestSweeperStartStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	swept := make(chan struct{}, 4)
	repo := &fakeRequestRepo{
		requeueStalledFn: func(ctx context.Context, olderThan time.Time, limit int) ([]domain.NotificationRequest, error) {
			select {
			case swept <- struct{}{}:
			default:
			}
			return nil, nil
		},
	}

	sweeper, err := NewSweeper(repo, &fakePublisher{}, 10*time.Millisecond, time.Minute, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Start(ctx) }()

	<-swept
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after context cancel")
	}
}
