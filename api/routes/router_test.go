package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/farmcart/farmcart-backend/internal/delivery"
	"github.com/farmcart/farmcart-backend/internal/orders"
	"github.com/farmcart/farmcart-backend/internal/refunds"
	"github.com/farmcart/farmcart-backend/internal/settlement"
	"github.com/farmcart/farmcart-backend/pkg/config"
	"github.com/farmcart/farmcart-backend/pkg/enums"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
	"github.com/farmcart/farmcart-backend/pkg/pagination"
)

type stubOrders struct{}

func (stubOrders) Create(ctx context.Context, input orders.CreateOrderInput) (*orders.OrderDetail, error) {
	return &orders.OrderDetail{}, nil
}

func (stubOrders) Get(ctx context.Context, orderID, userID uuid.UUID) (*orders.OrderDetail, error) {
	return &orders.OrderDetail{}, nil
}

func (stubOrders) List(ctx context.Context, userID uuid.UUID, params pagination.Params, filters orders.ListFilters) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

func (stubOrders) Transition(ctx context.Context, input orders.TransitionInput) error { return nil }

func (stubOrders) TransitionTx(ctx context.Context, tx *gorm.DB, input orders.TransitionInput) error {
	return nil
}

type stubRefunds struct{}

func (stubRefunds) Cancel(ctx context.Context, input refunds.CancelInput) (*refunds.CancelOutput, error) {
	return &refunds.CancelOutput{OrderID: input.OrderID, Status: enums.OrderStatusCanceled}, nil
}

type stubSettlement struct{}

func (stubSettlement) Prepare(ctx context.Context, input settlement.PrepareInput) (*settlement.PrepareOutput, error) {
	return &settlement.PrepareOutput{Provider: input.Provider}, nil
}

func (stubSettlement) Approve(ctx context.Context, input settlement.ApproveInput) (*settlement.ApproveOutput, error) {
	return &settlement.ApproveOutput{OrderID: input.OrderID}, nil
}

type stubDelivery struct{}

func (stubDelivery) Reconcile(ctx context.Context, carrierID, trackingNumber string) (*delivery.ReconcileOutput, error) {
	return &delivery.ReconcileOutput{Status: enums.DeliveryStatusShipping, Changed: true}, nil
}

type stubIdentity struct{ userID uuid.UUID }

func (s stubIdentity) Resolve(ctx context.Context, token string) (uuid.UUID, error) {
	if token != "good" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "bad token")
	}
	return s.userID, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(Deps{
		Config:     &config.Config{App: config.AppConfig{Env: "test"}},
		Resolver:   stubIdentity{userID: uuid.New()},
		Orders:     stubOrders{},
		Settlement: stubSettlement{},
		Refunds:    stubRefunds{},
		Delivery:   stubDelivery{},
	})
}

func TestRouter_healthLive(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-FarmCart-Env"))
}

func TestRouter_ordersRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_callbackIsPublic(t *testing.T) {
	router := newTestRouter(t)

	orderID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/kakaopay/approve?order_id="+orderID.String()+"&pg_token=tok", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_webhookIsPublic(t *testing.T) {
	router := newTestRouter(t)

	body := `{"carrierId":"kr.cjlogistics","trackingNumber":"123456789"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/delivery", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_unknownProviderRejected(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/paypal/approve?order_id="+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
