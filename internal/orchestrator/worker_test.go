package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/artpromedia/aivo-sub003/internal/adapter"
	"github.com/artpromedia/aivo-sub003/internal/domain"
	"github.com/artpromedia/aivo-sub003/internal/queue"
	"go.uber.org/zap"
)

func newTestOrchestrator(t *testing.T, repo *fakeRequestRepo, realtimeResult adapter.Result) *Orchestrator {
	t.Helper()

	realtime := &fakeAdapter{
		channel: domain.ChannelRealtime,
		attemptFn: func(ctx context.Context, req domain.NotificationRequest) (adapter.Result, error) {
			return realtimeResult, nil
		},
	}
	orch, err := NewOrchestrator(repo, &fakeAttemptRepo{}, []adapter.Adapter{realtime}, &fakeRateLimiter{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	return orch
}

func TestWorkerProcessMessageRunsClaimedRequest(t *testing.T) {
	t.Parallel()

	var markedStates []domain.RequestState
	repo := &fakeRequestRepo{
		claimFn: func(ctx context.Context, id string) (*domain.NotificationRequest, error) {
			if id != "r1" {
				t.Fatalf("claim id = %s, want r1", id)
			}
			return &domain.NotificationRequest{
				ID:       "r1",
				UserID:   "u1",
				Channels: domain.ChannelSet{domain.ChannelRealtime},
				Priority: domain.PriorityNormal,
				Payload:  "x",
				State:    domain.StateAttemptRealtime,
			}, nil
		},
		markStateFn: func(ctx context.Context, id string, state domain.RequestState) error {
			markedStates = append(markedStates, state)
			return nil
		},
	}

	orch := newTestOrchestrator(t, repo, adapter.Result{Status: domain.AttemptDelivered, Recipients: 1})
	worker, err := NewWorker(repo, &fakeConsumer{}, orch, 4, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}

	err = worker.processMessage(context.Background(), queue.DeliveryMessage{
		RequestID: "r1",
		UserID:    "u1",
		Priority:  domain.PriorityNormal,
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if len(markedStates) != 1 || markedStates[0] != domain.StateDelivered {
		t.Fatalf("state transitions = %v, want [DELIVERED]", markedStates)
	}
}

func TestWorkerProcessMessageAlreadyClaimedIsAck(t *testing.T) {
	t.Parallel()

	repo := &fakeRequestRepo{
		claimFn: func(ctx context.Context, id string) (*domain.NotificationRequest, error) {
			return nil, nil
		},
		markStateFn: func(ctx context.Context, id string, state domain.RequestState) error {
			t.Fatal("MarkState should not run for an already-claimed request")
			return nil
		},
	}

	orch := newTestOrchestrator(t, repo, adapter.Result{Status: domain.AttemptDelivered})
	worker, err := NewWorker(repo, &fakeConsumer{}, orch, 1, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}

	err = worker.processMessage(context.Background(), queue.DeliveryMessage{
		RequestID: "r1",
		UserID:    "u1",
		Priority:  domain.PriorityNormal,
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v, duplicate deliveries must ack", err)
	}
}

func TestWorkerProcessMessageMissingRequestIsAck(t *testing.T) {
	t.Parallel()

	repo := &fakeRequestRepo{
		claimFn: func(ctx context.Context, id string) (*domain.NotificationRequest, error) {
			return nil, domain.ErrNotFound
		},
	}

	orch := newTestOrchestrator(t, repo, adapter.Result{Status: domain.AttemptDelivered})
	worker, err := NewWorker(repo, &fakeConsumer{}, orch, 1, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}

	err = worker.processMessage(context.Background(), queue.DeliveryMessage{
		RequestID: "ghost",
		UserID:    "u1",
		Priority:  domain.PriorityNormal,
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v, missing requests must ack", err)
	}
}

func TestWorkerProcessMessageClaimErrorIsRetried(t *testing.T) {
	t.Parallel()

	repo := &fakeRequestRepo{
		claimFn: func(ctx context.Context, id string) (*domain.NotificationRequest, error) {
			return nil, errors.New("database unavailable")
		},
	}

	orch := newTestOrchestrator(t, repo, adapter.Result{Status: domain.AttemptDelivered})
	worker, err := NewWorker(repo, &fakeConsumer{}, orch, 1, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}

	err = worker.processMessage(context.Background(), queue.DeliveryMessage{
		RequestID: "r1",
		UserID:    "u1",
		Priority:  domain.PriorityNormal,
	})
	if err == nil {
		t.Fatal("processMessage() expected error so the broker redelivers")
	}
}

func TestWorkerStartStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &fakeRequestRepo{}
	orch := newTestOrchestrator(t, repo, adapter.Result{Status: domain.AttemptDelivered})

	consumed := make(chan string, 8)
	consumer := &fakeConsumer{
		consumeFn: func(ctx context.Context, queueName string, handler queue.MessageHandler) error {
			consumed <- queueName
			<-ctx.Done()
			return nil
		},
	}

	worker, err := NewWorker(repo, consumer, orch, 3, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Start(ctx) }()

	for i := 0; i < 3; i++ {
		if name := <-consumed; name != queue.WorkQueueName {
			t.Fatalf("consumed queue = %s, want %s", name, queue.WorkQueueName)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}
