package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/deppfellow/tenantflow/internal/errs"
	"github.com/deppfellow/tenantflow/internal/lib/fees"
	"github.com/deppfellow/tenantflow/internal/middleware"
	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/deppfellow/tenantflow/internal/server"
	"github.com/deppfellow/tenantflow/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const maxIdempotencyKeyLength = 255

type paymentService interface {
	QuoteFees(ctx context.Context, actorID, leaseID string, amount decimal.Decimal, unit fees.AmountUnit, method model.PaymentMethodType) (*fees.Breakdown, error)
	CreateOneTimePayment(ctx context.Context, actorID, leaseID string, in service.OneTimePaymentInput) (*service.PaymentResult, error)
	ListPayments(ctx context.Context, actorID, leaseID string) ([]model.RentPayment, error)
	CreateSubscription(ctx context.Context, actorID, leaseID string, in service.SubscriptionInput) (*service.SubscriptionResult, error)
	CancelSubscription(ctx context.Context, actorID, leaseID string) (*model.RentSubscription, error)
}

type statusService interface {
	GetStatus(ctx context.Context, actorID, leaseID string) (*model.RentStatusReport, error)
	ReconcilePayment(ctx context.Context, actorID, paymentID string) (*model.RentPayment, error)
}

type exportService interface {
	Summary(ctx context.Context, actorID, leaseID string) (*model.PaymentSummary, error)
	ExportCSV(ctx context.Context, actorID, leaseID string, w io.Writer) (string, error)
}

// PaymentHandler serves rent collection, autopay and payment history.
type PaymentHandler struct {
	Handler
	payments paymentService
	status   statusService
	exports  exportService
}

func NewPaymentHandler(s *server.Server, services *service.Services) *PaymentHandler {
	return &PaymentHandler{
		Handler:  NewHandler(s),
		payments: services.Payment,
		status:   services.Status,
		exports:  services.Export,
	}
}

type paymentListResponse struct {
	Payments []model.RentPayment `json:"payments"`
}

// paymentResponse is 201 for a new payment and 200 for a replay.
type paymentResponse struct {
	*service.PaymentResult
}

func (r paymentResponse) HTTPStatus() int {
	if r.Replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}

type subscriptionResponse struct {
	*service.SubscriptionResult
}

func (r subscriptionResponse) HTTPStatus() int {
	if r.Replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}

func (h *PaymentHandler) QuoteFees(c echo.Context, req *QuoteFeesRequest) (*fees.Breakdown, error) {
	return h.payments.QuoteFees(
		c.Request().Context(),
		middleware.GetUserID(c),
		req.LeaseID,
		req.Amount,
		fees.AmountUnit(req.Unit),
		model.PaymentMethodType(req.PaymentMethodType),
	)
}

func (h *PaymentHandler) ListPayments(c echo.Context, req *LeaseRequest) (*paymentListResponse, error) {
	history, err := h.payments.ListPayments(c.Request().Context(), middleware.GetUserID(c), req.LeaseID)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []model.RentPayment{}
	}
	return &paymentListResponse{Payments: history}, nil
}

func (h *PaymentHandler) GetStatus(c echo.Context, req *LeaseRequest) (*model.RentStatusReport, error) {
	return h.status.GetStatus(c.Request().Context(), middleware.GetUserID(c), req.LeaseID)
}

func (h *PaymentHandler) GetSummary(c echo.Context, req *LeaseRequest) (*model.PaymentSummary, error) {
	return h.exports.Summary(c.Request().Context(), middleware.GetUserID(c), req.LeaseID)
}

func (h *PaymentHandler) ExportCSV(c echo.Context, req *LeaseRequest) (*File, error) {
	var buf bytes.Buffer
	name, err := h.exports.ExportCSV(c.Request().Context(), middleware.GetUserID(c), req.LeaseID, &buf)
	if err != nil {
		return nil, err
	}
	return &File{Name: name, ContentType: "text/csv; charset=utf-8", Data: buf.Bytes()}, nil
}

func (h *PaymentHandler) CreatePayment(c echo.Context, req *CreatePaymentRequest) (*paymentResponse, error) {
	key := c.Request().Header.Get(middleware.IdempotencyKeyHeader)
	if len(key) > maxIdempotencyKeyLength {
		return nil, errs.NewBadRequestError("Idempotency-Key is too long", true, nil, []errs.FieldError{
			{Field: middleware.IdempotencyKeyHeader, Error: "must not exceed " + strconv.Itoa(maxIdempotencyKeyLength) + " characters"},
		}, nil)
	}

	result, err := h.payments.CreateOneTimePayment(c.Request().Context(), middleware.GetUserID(c), req.LeaseID, service.OneTimePaymentInput{
		Amount:            req.Amount,
		Unit:              fees.AmountUnit(req.Unit),
		PaymentMethodID:   req.PaymentMethodID,
		PaymentMethodType: model.PaymentMethodType(req.PaymentMethodType),
		IdempotencyKey:    key,
	})
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		c.Response().Header().Set(middleware.IdempotencyReplayedHeader, "true")
	}
	return &paymentResponse{PaymentResult: result}, nil
}

func (h *PaymentHandler) CreateSubscription(c echo.Context, req *CreateSubscriptionRequest) (*subscriptionResponse, error) {
	result, err := h.payments.CreateSubscription(c.Request().Context(), middleware.GetUserID(c), req.LeaseID, service.SubscriptionInput{
		PaymentMethodID:   req.PaymentMethodID,
		PaymentMethodType: model.PaymentMethodType(req.PaymentMethodType),
	})
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		c.Response().Header().Set(middleware.IdempotencyReplayedHeader, "true")
	}
	return &subscriptionResponse{SubscriptionResult: result}, nil
}

func (h *PaymentHandler) CancelSubscription(c echo.Context, req *LeaseRequest) (*model.RentSubscription, error) {
	return h.payments.CancelSubscription(c.Request().Context(), middleware.GetUserID(c), req.LeaseID)
}

func (h *PaymentHandler) ReconcilePayment(c echo.Context, req *PaymentRequest) (*model.RentPayment, error) {
	return h.status.ReconcilePayment(c.Request().Context(), middleware.GetUserID(c), req.PaymentID)
}
