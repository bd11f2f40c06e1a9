package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultDirectoryTimeout = 5 * time.Second

// SubscriptionSource resolves the registered push endpoints for a user.
// Registration itself lives in an external collaborator.
type SubscriptionSource interface {
	PushEndpoints(ctx context.Context, userID string) ([]string, error)
}

// PhoneSource resolves a user's verified phone number. An empty string means
// no number on file.
type PhoneSource interface {
	PhoneNumber(ctx context.Context, userID string) (string, error)
}

// HTTPDirectory is a resty client for the user-directory collaborator that
// backs both lookups.
type HTTPDirectory struct {
	client  *resty.Client
	baseURL string
}

type pushEndpointsResponse struct {
	Endpoints []string `json:"endpoints"`
}

type phoneResponse struct {
	PhoneNumber string `json:"phoneNumber"`
	Verified    bool   `json:"verified"`
}

func NewHTTPDirectory(baseURL string) (*HTTPDirectory, error) {
	client := resty.New()
	client.SetTimeout(defaultDirectoryTimeout)
	client.SetRetryCount(0)

	return NewHTTPDirectoryWithClient(baseURL, client)
}

func NewHTTPDirectoryWithClient(baseURL string, client *resty.Client) (*HTTPDirectory, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("directory base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid directory base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	return &HTTPDirectory{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (d *HTTPDirectory) PushEndpoints(ctx context.Context, userID string) ([]string, error) {
	var body pushEndpointsResponse
	response, err := d.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get(fmt.Sprintf("%s/v1/users/%s/push-endpoints", d.baseURL, url.PathEscape(userID)))
	if err != nil {
		return nil, &GatewayError{
			Message:   "directory request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	if response.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if response.IsError() {
		return nil, &GatewayError{
			StatusCode: response.StatusCode(),
			Message:    "directory lookup failed",
			Transient:  isTransientHTTPStatus(response.StatusCode()),
		}
	}

	return body.Endpoints, nil
}

func (d *HTTPDirectory) PhoneNumber(ctx context.Context, userID string) (string, error) {
	var body phoneResponse
	response, err := d.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get(fmt.Sprintf("%s/v1/users/%s/phone", d.baseURL, url.PathEscape(userID)))
	if err != nil {
		return "", &GatewayError{
			Message:   "directory request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	if response.StatusCode() == http.StatusNotFound {
		return "", nil
	}
	if response.IsError() {
		return "", &GatewayError{
			StatusCode: response.StatusCode(),
			Message:    "directory lookup failed",
			Transient:  isTransientHTTPStatus(response.StatusCode()),
		}
	}

	if !body.Verified {
		return "", nil
	}
	return strings.TrimSpace(body.PhoneNumber), nil
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
