// Package orchestrator drives a notification request through the channel
// escalation chain and records every attempt in the ledger.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/artpromedia/aivo-sub003/internal/adapter"
	"github.com/artpromedia/aivo-sub003/internal/domain"
	"github.com/artpromedia/aivo-sub003/internal/ledger"
	"github.com/artpromedia/aivo-sub003/internal/observability"
	"github.com/artpromedia/aivo-sub003/internal/ratelimit"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator walks one request through realtime, push, and SMS in order.
// Each requested channel is tried exactly once; skipped and failed both
// escalate to the next channel, and a request with no delivered channel ends
// exhausted.
type Orchestrator struct {
	requests ledger.RequestRepository
	attempts ledger.AttemptRepository
	adapters map[domain.Channel]adapter.Adapter
	limiter  ratelimit.RateLimiter
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewOrchestrator(
	requests ledger.RequestRepository,
	attempts ledger.AttemptRepository,
	adapters []adapter.Adapter,
	limiter ratelimit.RateLimiter,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if requests == nil {
		return nil, fmt.Errorf("request repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one channel adapter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	byChannel := make(map[domain.Channel]adapter.Adapter, len(adapters))
	for _, a := range adapters {
		if a == nil {
			continue
		}
		if _, exists := byChannel[a.Channel()]; exists {
			return nil, fmt.Errorf("duplicate adapter for channel %s", a.Channel())
		}
		byChannel[a.Channel()] = a
	}

	return &Orchestrator{
		requests: requests,
		attempts: attempts,
		adapters: byChannel,
		limiter:  limiter,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

// Run executes the escalation chain for an already-claimed request. The
// request must be out of PENDING before Run is called; the claim is what
// makes duplicate queue deliveries harmless.
func (o *Orchestrator) Run(ctx context.Context, req *domain.NotificationRequest) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return fmt.Errorf("%w: request is required", domain.ErrValidation)
	}
	if req.State.IsTerminal() {
		return nil
	}

	if _, ok := observability.DeliveryIDFromContext(ctx); !ok {
		ctx = observability.WithDeliveryID(ctx, req.ID)
	}
	logger := observability.WithContextLogger(o.logger, ctx)

	attemptNumber := 0
	for i, channel := range domain.EscalationOrder {
		if !req.Channels.Contains(channel) {
			continue
		}
		attemptNumber++

		result, err := o.tryChannel(ctx, req, channel, attemptNumber)
		if err != nil {
			return err
		}

		if result.Status == domain.AttemptDelivered {
			if err := o.requests.MarkState(ctx, req.ID, domain.StateDelivered); err != nil {
				return fmt.Errorf("failed to mark request delivered: %w", err)
			}
			req.State = domain.StateDelivered
			logger.Info("request delivered",
				zap.String("channel", channel.String()),
				zap.Int("recipients", result.Recipients),
			)
			return nil
		}

		if next, ok := nextRequestedChannel(req.Channels, i); ok {
			if o.metrics != nil {
				o.metrics.IncEscalation(channel.String(), next.String())
			}
			logger.Info("escalating to next channel",
				zap.String("from", channel.String()),
				zap.String("to", next.String()),
				zap.String("outcome", result.Status.String()),
				zap.String("reason", result.Reason),
			)
		}
	}

	if err := o.requests.MarkState(ctx, req.ID, domain.StateExhausted); err != nil {
		return fmt.Errorf("failed to mark request exhausted: %w", err)
	}
	req.State = domain.StateExhausted
	if o.metrics != nil {
		o.metrics.IncExhausted()
	}
	logger.Warn("request exhausted, no channel delivered",
		zap.String("userId", req.UserID),
	)
	return nil
}

// tryChannel records one attempt row for the channel and finalizes it with
// the adapter outcome. The SMS eligibility gate short-circuits before the
// adapter is ever invoked.
func (o *Orchestrator) tryChannel(
	ctx context.Context,
	req *domain.NotificationRequest,
	channel domain.Channel,
	attemptNumber int,
) (adapter.Result, error) {
	state := stateForChannel(channel)
	if req.State != state {
		if err := o.requests.MarkState(ctx, req.ID, state); err != nil {
			return adapter.Result{}, fmt.Errorf("failed to mark request state %s: %w", state, err)
		}
		req.State = state
	}

	startedAt := o.now().UTC()
	row := &domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		RequestID:     req.ID,
		Channel:       channel,
		AttemptNumber: attemptNumber,
		Status:        domain.AttemptPending,
		StartedAt:     startedAt,
	}
	if err := o.attempts.Record(ctx, row); err != nil {
		return adapter.Result{}, fmt.Errorf("failed to record attempt: %w", err)
	}

	result, attemptErr := o.executeAttempt(ctx, req, channel)
	if attemptErr != nil {
		observability.WithContextLogger(o.logger, ctx).Error("channel attempt errored",
			zap.String("channel", channel.String()),
			zap.Error(attemptErr),
		)
	}
	if o.metrics != nil {
		o.metrics.ObserveAttemptDuration(channel.String(), o.now().Sub(startedAt))
		o.metrics.IncDelivery(channel.String(), result.Status.String())
	}

	var reason *string
	if trimmed := strings.TrimSpace(result.Reason); trimmed != "" {
		reason = &trimmed
	}
	if err := o.attempts.Finalize(ctx, row.ID, result.Status, reason, o.now().UTC()); err != nil {
		return adapter.Result{}, fmt.Errorf("failed to finalize attempt: %w", err)
	}

	return result, nil
}

func (o *Orchestrator) executeAttempt(
	ctx context.Context,
	req *domain.NotificationRequest,
	channel domain.Channel,
) (adapter.Result, error) {
	if channel == domain.ChannelSMS && !req.SMSEligible() {
		return adapter.Result{Status: domain.AttemptSkipped, Reason: domain.ReasonNotEligible}, nil
	}

	// Realtime delivery is in-process; only outbound gateways are throttled.
	if o.limiter != nil && channel != domain.ChannelRealtime {
		if err := o.limiter.Wait(ctx, strings.ToLower(channel.String())); err != nil {
			return adapter.Result{Status: domain.AttemptFailed, Reason: "rate_limited"},
				fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	a, ok := o.adapters[channel]
	if !ok {
		return adapter.Result{Status: domain.AttemptFailed, Reason: "adapter_unavailable"},
			fmt.Errorf("no adapter registered for channel %s", channel)
	}

	return a.Attempt(ctx, *req)
}

func stateForChannel(channel domain.Channel) domain.RequestState {
	switch channel {
	case domain.ChannelRealtime:
		return domain.StateAttemptRealtime
	case domain.ChannelPush:
		return domain.StateAttemptPush
	case domain.ChannelSMS:
		return domain.StateAttemptSMS
	}
	return domain.StatePending
}

func nextRequestedChannel(channels domain.ChannelSet, afterIndex int) (domain.Channel, bool) {
	for i := afterIndex + 1; i < len(domain.EscalationOrder); i++ {
		if channels.Contains(domain.EscalationOrder[i]) {
			return domain.EscalationOrder[i], true
		}
	}
	return "", false
}
