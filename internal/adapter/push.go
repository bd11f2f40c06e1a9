package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/artpromedia/aivo-sub003/internal/domain"
)

const defaultPushTimeout = 10 * time.Second

type pushRequest struct {
	Endpoint string `json:"endpoint"`
	UserID   string `json:"userId"`
	Priority string `json:"priority"`
	Payload  string `json:"payload"`
}

// PushAdapter delivers to every registered background-push endpoint of the
// user through the push gateway collaborator.
type PushAdapter struct {
	client        *resty.Client
	gatewayURL    string
	subscriptions SubscriptionSource
	logger        *zap.Logger
}

func NewPushAdapter(gatewayURL string, subscriptions SubscriptionSource, logger *zap.Logger) (*PushAdapter, error) {
	client := resty.New()
	client.SetTimeout(defaultPushTimeout)
	client.SetRetryCount(0)

	return NewPushAdapterWithClient(gatewayURL, subscriptions, client, logger)
}

func NewPushAdapterWithClient(gatewayURL string, subscriptions SubscriptionSource, client *resty.Client, logger *zap.Logger) (*PushAdapter, error) {
	trimmed := strings.TrimSpace(gatewayURL)
	if trimmed == "" {
		return nil, fmt.Errorf("push gateway url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid push gateway url: %w", err)
	}
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription source is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultPushTimeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PushAdapter{
		client:        client,
		gatewayURL:    trimmed,
		subscriptions: subscriptions,
		logger:        logger,
	}, nil
}

func (a *PushAdapter) Channel() domain.Channel { return domain.ChannelPush }

func (a *PushAdapter) Attempt(ctx context.Context, req domain.NotificationRequest) (Result, error) {
	endpoints, err := a.subscriptions.PushEndpoints(ctx, req.UserID)
	if err != nil {
		return failed("subscription_lookup_failed"), err
	}
	if len(endpoints) == 0 {
		return skipped(domain.ReasonNoSubscriptions), nil
	}

	reached := 0
	var lastErr error
	for _, endpoint := range endpoints {
		if err := a.deliverOne(ctx, endpoint, req); err != nil {
			lastErr = err
			a.logger.Debug("push endpoint delivery failed",
				zap.String("requestId", req.ID),
				zap.Error(err),
			)
			continue
		}
		reached++
	}

	if reached == 0 {
		return failed("push_gateway_error"), lastErr
	}
	return delivered(reached), nil
}

func (a *PushAdapter) deliverOne(ctx context.Context, endpoint string, req domain.NotificationRequest) error {
	body := pushRequest{
		Endpoint: endpoint,
		UserID:   req.UserID,
		Priority: strings.ToLower(req.Priority.String()),
		Payload:  req.Payload,
	}

	response, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(a.gatewayURL)
	if err != nil {
		return &GatewayError{
			Message:   "push gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response.IsError() {
		return &GatewayError{
			StatusCode: response.StatusCode(),
			Message:    fmt.Sprintf("push gateway returned status %d", response.StatusCode()),
			Transient:  isTransientHTTPStatus(response.StatusCode()),
		}
	}
	return nil
}
