package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/deppfellow/tenantflow/internal/config"
	"github.com/deppfellow/tenantflow/internal/errs"
	"github.com/deppfellow/tenantflow/internal/lib/fees"
	"github.com/deppfellow/tenantflow/internal/middleware"
	"github.com/deppfellow/tenantflow/internal/model"
	"github.com/deppfellow/tenantflow/internal/server"
	"github.com/deppfellow/tenantflow/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	actorID   = "user_tenant"
	leaseID   = "4f1d6a2e-8c1b-4b7a-9a43-2d6f0c1e5b10"
	paymentID = "7b9e2c44-1f3a-4d5e-8a6b-0c2d4e6f8a1b"
)

type fakePayments struct {
	quoteAmount decimal.Decimal
	quoteUnit   fees.AmountUnit
	created     []service.OneTimePaymentInput
	createErr   error
	replay      bool
	history     []model.RentPayment
	subInputs   []service.SubscriptionInput
	subReplay   bool
	canceled    []string
}

func (f *fakePayments) QuoteFees(ctx context.Context, actor, lease string, amount decimal.Decimal, unit fees.AmountUnit, method model.PaymentMethodType) (*fees.Breakdown, error) {
	f.quoteAmount = amount
	f.quoteUnit = unit
	b, err := fees.Calculate(125000, method, model.PlanStarter)
	return &b, err
}

func (f *fakePayments) CreateOneTimePayment(ctx context.Context, actor, lease string, in service.OneTimePaymentInput) (*service.PaymentResult, error) {
	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &service.PaymentResult{
		Payment:  &model.RentPayment{ID: "pay-1", LeaseID: lease, Status: model.PaymentStatusSucceeded, AmountCents: 125000},
		Replayed: f.replay,
	}, nil
}

func (f *fakePayments) ListPayments(ctx context.Context, actor, lease string) ([]model.RentPayment, error) {
	return f.history, nil
}

func (f *fakePayments) CreateSubscription(ctx context.Context, actor, lease string, in service.SubscriptionInput) (*service.SubscriptionResult, error) {
	f.subInputs = append(f.subInputs, in)
	return &service.SubscriptionResult{
		Subscription: &model.RentSubscription{ID: "sub-1", LeaseID: lease, Status: model.SubscriptionStatusActive},
		Replayed:     f.subReplay,
	}, nil
}

func (f *fakePayments) CancelSubscription(ctx context.Context, actor, lease string) (*model.RentSubscription, error) {
	f.canceled = append(f.canceled, lease)
	return &model.RentSubscription{ID: "sub-1", LeaseID: lease, Status: model.SubscriptionStatusCanceled}, nil
}

type fakeStatus struct {
	reconciled []string
}

func (f *fakeStatus) GetStatus(ctx context.Context, actor, lease string) (*model.RentStatusReport, error) {
	if actor != actorID {
		return nil, errs.NewForbiddenError("You do not have access to this lease", true)
	}
	return &model.RentStatusReport{LeaseID: lease, Status: model.RentStatusPending, AmountCents: 125000}, nil
}

func (f *fakeStatus) ReconcilePayment(ctx context.Context, actor, id string) (*model.RentPayment, error) {
	f.reconciled = append(f.reconciled, id)
	return &model.RentPayment{ID: id, Status: model.PaymentStatusSucceeded}, nil
}

type fakeExports struct{}

func (fakeExports) Summary(ctx context.Context, actor, lease string) (*model.PaymentSummary, error) {
	return &model.PaymentSummary{LeaseID: lease, CollectedCents: 250000}, nil
}

func (fakeExports) ExportCSV(ctx context.Context, actor, lease string, w io.Writer) (string, error) {
	_, err := io.WriteString(w, "payment_id,status\npay-1,succeeded\n")
	return fmt.Sprintf("rent-payments-%s.csv", lease), err
}

type testAPI struct {
	echo     *echo.Echo
	payments *fakePayments
	status   *fakeStatus
}

func newTestAPI(t *testing.T, actor string) *testAPI {
	t.Helper()

	logger := zerolog.Nop()
	s := &server.Server{
		Logger: &logger,
		Config: &config.Config{Primary: config.Primary{Env: "test"}},
	}

	api := &testAPI{
		echo:     echo.New(),
		payments: &fakePayments{},
		status:   &fakeStatus{},
	}
	api.echo.HTTPErrorHandler = middleware.NewGlobalMiddlewares(s).GlobalErrorHandler

	p := &PaymentHandler{
		Handler:  NewHandler(s),
		payments: api.payments,
		status:   api.status,
		exports:  fakeExports{},
	}

	g := api.echo.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(middleware.UserIDKey, actor)
			return next(c)
		}
	})
	g.POST("/fees/quote", Handle(p.Handler, p.QuoteFees, http.StatusOK, &QuoteFeesRequest{}))
	g.GET("/leases/:leaseId/payments", Handle(p.Handler, p.ListPayments, http.StatusOK, &LeaseRequest{}))
	g.GET("/leases/:leaseId/payments/status", Handle(p.Handler, p.GetStatus, http.StatusOK, &LeaseRequest{}))
	g.GET("/leases/:leaseId/payments/summary", Handle(p.Handler, p.GetSummary, http.StatusOK, &LeaseRequest{}))
	g.GET("/leases/:leaseId/payments/export", HandleFile(p.Handler, p.ExportCSV, http.StatusOK, &LeaseRequest{}))
	g.POST("/leases/:leaseId/payments", Handle(p.Handler, p.CreatePayment, http.StatusCreated, &CreatePaymentRequest{}))
	g.POST("/leases/:leaseId/subscription", Handle(p.Handler, p.CreateSubscription, http.StatusCreated, &CreateSubscriptionRequest{}))
	g.DELETE("/leases/:leaseId/subscription", Handle(p.Handler, p.CancelSubscription, http.StatusOK, &LeaseRequest{}))
	g.POST("/payments/:paymentId/reconcile", Handle(p.Handler, p.ReconcilePayment, http.StatusOK, &PaymentRequest{}))

	return api
}

func (api *testAPI) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	api.echo.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errs.HTTPError {
	t.Helper()

	var body errs.HTTPError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreatePayment(t *testing.T) {
	t.Run("new payment is created", func(t *testing.T) {
		api := newTestAPI(t, actorID)

		rec := api.do(http.MethodPost, "/api/v1/leases/"+leaseID+"/payments",
			`{"amount":"1250.50","unit":"dollars","paymentMethodId":"pm_123","paymentMethodType":"card"}`,
			map[string]string{middleware.IdempotencyKeyHeader: "key-1"})

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Empty(t, rec.Header().Get(middleware.IdempotencyReplayedHeader))

		require.Len(t, api.payments.created, 1)
		in := api.payments.created[0]
		assert.Equal(t, "key-1", in.IdempotencyKey)
		assert.True(t, in.Amount.Equal(decimal.RequireFromString("1250.50")))
		assert.Equal(t, fees.AmountUnitDollars, in.Unit)
		assert.Equal(t, "pm_123", in.PaymentMethodID)
		assert.Equal(t, model.PaymentMethodCard, in.PaymentMethodType)

		var body service.PaymentResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "pay-1", body.Payment.ID)
		assert.False(t, body.Replayed)
	})

	t.Run("replay answers 200 with the replay header", func(t *testing.T) {
		api := newTestAPI(t, actorID)
		api.payments.replay = true

		rec := api.do(http.MethodPost, "/api/v1/leases/"+leaseID+"/payments", `{}`, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "true", rec.Header().Get(middleware.IdempotencyReplayedHeader))
		assert.True(t, api.payments.created[0].Amount.IsZero())
	})

	t.Run("numeric amounts are accepted", func(t *testing.T) {
		api := newTestAPI(t, actorID)

		rec := api.do(http.MethodPost, "/api/v1/leases/"+leaseID+"/payments", `{"amount":125000}`, nil)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.True(t, api.payments.created[0].Amount.Equal(decimal.NewFromInt(125000)))
		assert.Equal(t, fees.AmountUnitAuto, api.payments.created[0].Unit)
	})

	t.Run("service errors keep status and action", func(t *testing.T) {
		api := newTestAPI(t, actorID)
		api.payments.createErr = errs.NewPaymentRequiredError("Your card was declined", "CARD_DECLINED").
			WithAction(&errs.Action{Type: errs.ActionTypeUpdatePaymentMethod, Message: "Use another card"})

		rec := api.do(http.MethodPost, "/api/v1/leases/"+leaseID+"/payments", `{}`, nil)

		require.Equal(t, http.StatusPaymentRequired, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "CARD_DECLINED", body.Code)
		require.NotNil(t, body.Action)
		assert.Equal(t, errs.ActionTypeUpdatePaymentMethod, body.Action.Type)
	})

	t.Run("requests do not share bound fields", func(t *testing.T) {
		api := newTestAPI(t, actorID)

		api.do(http.MethodPost, "/api/v1/leases/"+leaseID+"/payments",
			`{"paymentMethodId":"pm_123","paymentMethodType":"card"}`, nil)
		api.do(http.MethodPost, "/api/v1/leases/"+leaseID+"/payments", `{}`, nil)

		require.Len(t, api.payments.created, 2)
		assert.Empty(t, api.payments.created[1].PaymentMethodID)
	})
}

func TestCreatePaymentValidation(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		body    string
		headers map[string]string
		field   string
	}{
		{
			name:  "lease id must be a uuid",
			path:  "/api/v1/leases/not-a-uuid/payments",
			body:  `{}`,
			field: "leaseId",
		},
		{
			name:  "negative amount",
			path:  "/api/v1/leases/" + leaseID + "/payments",
			body:  `{"amount":"-5"}`,
			field: "amount",
		},
		{
			name:  "unknown unit",
			path:  "/api/v1/leases/" + leaseID + "/payments",
			body:  `{"unit":"euros"}`,
			field: "unit",
		},
		{
			name:  "method id without type",
			path:  "/api/v1/leases/" + leaseID + "/payments",
			body:  `{"paymentMethodId":"pm_123"}`,
			field: "paymentMethodType",
		},
		{
			name:  "unsupported method type",
			path:  "/api/v1/leases/" + leaseID + "/payments",
			body:  `{"paymentMethodId":"pm_123","paymentMethodType":"paypal"}`,
			field: "paymentMethodType",
		},
		{
			name:    "idempotency key too long",
			path:    "/api/v1/leases/" + leaseID + "/payments",
			body:    `{}`,
			headers: map[string]string{middleware.IdempotencyKeyHeader: strings.Repeat("k", 256)},
			field:   middleware.IdempotencyKeyHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, actorID)

			rec := api.do(http.MethodPost, tt.path, tt.body, tt.headers)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decodeError(t, rec)
			require.NotEmpty(t, body.Errors)
			assert.Equal(t, tt.field, body.Errors[0].Field)
			assert.Empty(t, api.payments.created)
		})
	}
}

func TestCreatePaymentMalformedBody(t *testing.T) {
	api := newTestAPI(t, actorID)

	rec := api.do(http.MethodPost, "/api/v1/leases/"+leaseID+"/payments", `{"amount":`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, api.payments.created)
}

func TestQuoteFees(t *testing.T) {
	api := newTestAPI(t, actorID)

	rec := api.do(http.MethodPost, "/api/v1/fees/quote",
		`{"leaseId":"`+leaseID+`","amount":"1250","unit":"dollars","paymentMethodType":"card"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, api.payments.quoteAmount.Equal(decimal.NewFromInt(1250)))
	assert.Equal(t, fees.AmountUnitDollars, api.payments.quoteUnit)

	var body fees.Breakdown
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3750), body.PlatformFeeCents)
	assert.Equal(t, int64(3655), body.ProcessorFeeCents)
}

func TestQuoteFeesRequiresMethod(t *testing.T) {
	api := newTestAPI(t, actorID)

	rec := api.do(http.MethodPost, "/api/v1/fees/quote", `{"leaseId":"`+leaseID+`"}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "paymentMethodType", decodeError(t, rec).Errors[0].Field)
}

func TestListPaymentsEmpty(t *testing.T) {
	api := newTestAPI(t, actorID)

	rec := api.do(http.MethodGet, "/api/v1/leases/"+leaseID+"/payments", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"payments":[]}`, rec.Body.String())
}

func TestGetStatus(t *testing.T) {
	t.Run("actor with access", func(t *testing.T) {
		api := newTestAPI(t, actorID)

		rec := api.do(http.MethodGet, "/api/v1/leases/"+leaseID+"/payments/status", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var body model.RentStatusReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, model.RentStatusPending, body.Status)
		assert.Equal(t, leaseID, body.LeaseID)
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		api := newTestAPI(t, "user_stranger")

		rec := api.do(http.MethodGet, "/api/v1/leases/"+leaseID+"/payments/status", "", nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestExportCSV(t *testing.T) {
	api := newTestAPI(t, actorID)

	rec := api.do(http.MethodGet, "/api/v1/leases/"+leaseID+"/payments/export", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, `attachment; filename="rent-payments-`+leaseID+`.csv"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.Equal(t, "payment_id,status\npay-1,succeeded\n", rec.Body.String())
}

func TestSummary(t *testing.T) {
	api := newTestAPI(t, actorID)

	rec := api.do(http.MethodGet, "/api/v1/leases/"+leaseID+"/payments/summary", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body model.PaymentSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(250000), body.CollectedCents)
}

func TestSubscriptionRoutes(t *testing.T) {
	t.Run("enroll", func(t *testing.T) {
		api := newTestAPI(t, actorID)

		rec := api.do(http.MethodPost, "/api/v1/leases/"+leaseID+"/subscription",
			`{"paymentMethodId":"pm_bank","paymentMethodType":"us_bank_account"}`, nil)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.Len(t, api.payments.subInputs, 1)
		assert.Equal(t, model.PaymentMethodACH, api.payments.subInputs[0].PaymentMethodType)
	})

	t.Run("existing subscription is replayed", func(t *testing.T) {
		api := newTestAPI(t, actorID)
		api.payments.subReplay = true

		rec := api.do(http.MethodPost, "/api/v1/leases/"+leaseID+"/subscription", `{}`, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "true", rec.Header().Get(middleware.IdempotencyReplayedHeader))
	})

	t.Run("cancel", func(t *testing.T) {
		api := newTestAPI(t, actorID)

		rec := api.do(http.MethodDelete, "/api/v1/leases/"+leaseID+"/subscription", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{leaseID}, api.payments.canceled)

		var body model.RentSubscription
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, model.SubscriptionStatusCanceled, body.Status)
	})
}

func TestReconcilePayment(t *testing.T) {
	api := newTestAPI(t, actorID)

	rec := api.do(http.MethodPost, "/api/v1/payments/"+paymentID+"/reconcile", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{paymentID}, api.status.reconciled)

	rec = api.do(http.MethodPost, "/api/v1/payments/nope/reconcile", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
