package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/artpromedia/aivo-sub003/internal/domain"
	"github.com/artpromedia/aivo-sub003/internal/ledger"
	"github.com/artpromedia/aivo-sub003/internal/orchestrator"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type DeliveryService interface {
	Submit(ctx context.Context, req *domain.NotificationRequest) (*domain.NotificationRequest, error)
	SubmitFanout(ctx context.Context, requests []domain.NotificationRequest) (*domain.Fanout, []domain.NotificationRequest, error)
	GetStatus(ctx context.Context, id string) (*orchestrator.StatusView, error)
	GetFanoutSummary(ctx context.Context, fanoutID string) (*orchestrator.FanoutSummary, error)
	List(ctx context.Context, params ledger.ListParams) ([]domain.NotificationRequest, int64, error)
}

// TokenIssuer mints handshake tokens for the realtime gateway. The API tier
// is the only place allowed to assert a user's identity.
type TokenIssuer interface {
	MintToken(userID string) (string, error)
}

type DeliveryHandler struct {
	service DeliveryService
	tokens  TokenIssuer
}

func NewDeliveryHandler(service DeliveryService, tokens TokenIssuer) (*DeliveryHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("delivery service is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	return &DeliveryHandler{service: service, tokens: tokens}, nil
}

func RegisterDeliveryRoutes(router fiber.Router, service DeliveryService, tokens TokenIssuer) error {
	h, err := NewDeliveryHandler(service, tokens)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.SubmitNotification)
	v1.Post("/notifications/fanout", h.SubmitFanout)
	v1.Get("/notifications/:id", h.GetNotificationStatus)
	v1.Get("/notifications", h.ListNotifications)
	v1.Get("/fanouts/:fanoutId", h.GetFanoutSummary)
	v1.Post("/realtime/tokens", h.MintRealtimeToken)

	return nil
}

type submitRequest struct {
	ID       string   `json:"id"`
	UserID   string   `json:"userId"`
	Channels []string `json:"channels"`
	Priority string   `json:"priority"`
	Payload  string   `json:"payload"`
}

type fanoutRequest struct {
	UserIDs  []string `json:"userIds"`
	Channels []string `json:"channels"`
	Priority string   `json:"priority"`
	Payload  string   `json:"payload"`
}

type requestResponse struct {
	ID        string    `json:"id"`
	FanoutID  *string   `json:"fanoutId,omitempty"`
	UserID    string    `json:"userId"`
	Channels  []string  `json:"channels"`
	Priority  string    `json:"priority"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

type attemptItem struct {
	Channel       string     `json:"channel"`
	AttemptNumber int        `json:"attemptNumber"`
	Status        string     `json:"status"`
	Reason        *string    `json:"reason,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

type statusResponse struct {
	requestResponse
	Attempts []attemptItem `json:"attempts"`
}

type fanoutResponse struct {
	FanoutID   string            `json:"fanoutId"`
	Status     string            `json:"status"`
	TotalCount int               `json:"totalCount"`
	Requests   []requestResponse `json:"requests,omitempty"`
}

type fanoutSummaryResponse struct {
	FanoutID   string           `json:"fanoutId"`
	TotalCount int              `json:"totalCount"`
	Status     string           `json:"status"`
	Counts     []stateCountItem `json:"counts"`
}

type stateCountItem struct {
	State string `json:"state"`
	Count int    `json:"count"`
}

type listResponse struct {
	Data []requestResponse `json:"data"`
	Meta listMeta          `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *DeliveryHandler) SubmitNotification(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	request, err := requestToDomain(req)
	if err != nil {
		return toHTTPError(err)
	}

	accepted, err := h.service.Submit(c.Context(), &request)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toRequestResponse(accepted))
}

func (h *DeliveryHandler) SubmitFanout(c *fiber.Ctx) error {
	var req fanoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.UserIDs) == 0 {
		return toHTTPError(fmt.Errorf("%w: userIds is required", domain.ErrValidation))
	}

	requests := make([]domain.NotificationRequest, 0, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		request, err := requestToDomain(submitRequest{
			UserID:   userID,
			Channels: req.Channels,
			Priority: req.Priority,
			Payload:  req.Payload,
		})
		if err != nil {
			return toHTTPError(err)
		}
		requests = append(requests, request)
	}

	fanout, created, err := h.service.SubmitFanout(c.Context(), requests)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fanoutResponse{
		FanoutID:   fanout.ID,
		Status:     fanout.Status.String(),
		TotalCount: fanout.TotalCount,
		Requests:   toRequestResponses(created),
	})
}

func (h *DeliveryHandler) GetNotificationStatus(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	view, err := h.service.GetStatus(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	attempts := make([]attemptItem, 0, len(view.Attempts))
	for _, attempt := range view.Attempts {
		attempts = append(attempts, attemptItem{
			Channel:       attempt.Channel.String(),
			AttemptNumber: attempt.AttemptNumber,
			Status:        attempt.Status.String(),
			Reason:        attempt.Reason,
			StartedAt:     attempt.StartedAt,
			CompletedAt:   attempt.CompletedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(statusResponse{
		requestResponse: toRequestResponse(&view.Request),
		Attempts:        attempts,
	})
}

func (h *DeliveryHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	requests, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listResponse{
		Data: toRequestResponses(requests),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *DeliveryHandler) GetFanoutSummary(c *fiber.Ctx) error {
	fanoutID := strings.TrimSpace(c.Params("fanoutId"))
	summary, err := h.service.GetFanoutSummary(c.Context(), fanoutID)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]stateCountItem, 0, len(summary.Counts))
	for _, count := range summary.Counts {
		items = append(items, stateCountItem{
			State: count.State.String(),
			Count: count.Count,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fanoutSummaryResponse{
		FanoutID:   summary.FanoutID,
		TotalCount: summary.TotalCount,
		Status:     summary.Status.String(),
		Counts:     items,
	})
}

type mintTokenRequest struct {
	UserID string `json:"userId"`
}

func (h *DeliveryHandler) MintRealtimeToken(c *fiber.Ctx) error {
	var req mintTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.UserID) == "" {
		return toHTTPError(fmt.Errorf("%w: userId is required", domain.ErrValidation))
	}

	token, err := h.tokens.MintToken(strings.TrimSpace(req.UserID))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"userId": strings.TrimSpace(req.UserID),
		"token":  token,
	})
}

func parseListParams(c *fiber.Ctx) (ledger.ListParams, error) {
	params := ledger.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return ledger.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return ledger.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawState := strings.TrimSpace(c.Query("state")); rawState != "" {
		state, err := domain.ParseRequestStateFromString(rawState)
		if err != nil {
			return ledger.ListParams{}, err
		}
		params.State = &state
	}

	if rawUser := strings.TrimSpace(c.Query("userId")); rawUser != "" {
		params.UserID = &rawUser
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return ledger.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return ledger.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func requestToDomain(req submitRequest) (domain.NotificationRequest, error) {
	channels, err := domain.ParseChannelSetFromStrings(req.Channels)
	if err != nil {
		return domain.NotificationRequest{}, err
	}

	priority := domain.PriorityNormal
	if strings.TrimSpace(req.Priority) != "" {
		priority, err = domain.ParsePriorityFromString(req.Priority)
		if err != nil {
			return domain.NotificationRequest{}, err
		}
	}

	// A caller-supplied id must be a UUID; the ledger column rejects anything
	// else and that failure must not surface as a server error.
	id := strings.TrimSpace(req.ID)
	if id != "" {
		if _, err := uuid.Parse(id); err != nil {
			return domain.NotificationRequest{}, fmt.Errorf("%w: id must be a UUID", domain.ErrValidation)
		}
	}

	return domain.NotificationRequest{
		ID:       id,
		UserID:   strings.TrimSpace(req.UserID),
		Channels: channels,
		Priority: priority,
		Payload:  req.Payload,
	}, nil
}

func toRequestResponses(requests []domain.NotificationRequest) []requestResponse {
	responses := make([]requestResponse, 0, len(requests))
	for _, request := range requests {
		r := request
		responses = append(responses, toRequestResponse(&r))
	}
	return responses
}

func toRequestResponse(r *domain.NotificationRequest) requestResponse {
	if r == nil {
		return requestResponse{}
	}

	channels := make([]string, 0, len(r.Channels))
	for _, channel := range r.Channels {
		channels = append(channels, channel.String())
	}

	return requestResponse{
		ID:        r.ID,
		FanoutID:  r.FanoutID,
		UserID:    r.UserID,
		Channels:  channels,
		Priority:  r.Priority.String(),
		State:     r.State.String(),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	default:
		return err
	}
}
