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

const defaultSMSTimeout = 15 * time.Second

type smsRequest struct {
	To      string `json:"to"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// SMSAdapter delivers to the user's verified phone number through the SMS
// gateway collaborator. The orchestrator reserves this channel for critical
// priority or explicit SMS-only requests; the adapter itself only knows how
// to send.
type SMSAdapter struct {
	client     *resty.Client
	gatewayURL string
	phones     PhoneSource
	logger     *zap.Logger
}

func NewSMSAdapter(gatewayURL string, phones PhoneSource, logger *zap.Logger) (*SMSAdapter, error) {
	client := resty.New()
	client.SetTimeout(defaultSMSTimeout)
	client.SetRetryCount(0)

	return NewSMSAdapterWithClient(gatewayURL, phones, client, logger)
}

func NewSMSAdapterWithClient(gatewayURL string, phones PhoneSource, client *resty.Client, logger *zap.Logger) (*SMSAdapter, error) {
	trimmed := strings.TrimSpace(gatewayURL)
	if trimmed == "" {
		return nil, fmt.Errorf("sms gateway url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid sms gateway url: %w", err)
	}
	if phones == nil {
		return nil, fmt.Errorf("phone source is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSMSTimeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SMSAdapter{
		client:     client,
		gatewayURL: trimmed,
		phones:     phones,
		logger:     logger,
	}, nil
}

func (a *SMSAdapter) Channel() domain.Channel { return domain.ChannelSMS }

func (a *SMSAdapter) Attempt(ctx context.Context, req domain.NotificationRequest) (Result, error) {
	phone, err := a.phones.PhoneNumber(ctx, req.UserID)
	if err != nil {
		return failed("phone_lookup_failed"), err
	}
	if phone == "" {
		return skipped(domain.ReasonNoPhoneOnFile), nil
	}

	body := smsRequest{
		To:      phone,
		UserID:  req.UserID,
		Message: req.Payload,
	}

	response, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(a.gatewayURL)
	if err != nil {
		return failed("sms_gateway_error"), &GatewayError{
			Message:   "sms gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response.IsError() {
		return failed("sms_gateway_error"), &GatewayError{
			StatusCode: response.StatusCode(),
			Message:    fmt.Sprintf("sms gateway returned status %d", response.StatusCode()),
			Transient:  isTransientHTTPStatus(response.StatusCode()),
		}
	}

	return delivered(1), nil
}
