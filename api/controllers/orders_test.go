package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/farmcart/farmcart-backend/api/middleware"
	"github.com/farmcart/farmcart-backend/internal/orders"
	"github.com/farmcart/farmcart-backend/internal/refunds"
	"github.com/farmcart/farmcart-backend/pkg/enums"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
	"github.com/farmcart/farmcart-backend/pkg/pagination"
)

type fakeOrdersService struct {
	createInput     *orders.CreateOrderInput
	transitionInput *orders.TransitionInput
	err             error
}

func (f *fakeOrdersService) Create(ctx context.Context, input orders.CreateOrderInput) (*orders.OrderDetail, error) {
	f.createInput = &input
	if f.err != nil {
		return nil, f.err
	}
	return &orders.OrderDetail{}, nil
}

func (f *fakeOrdersService) Get(ctx context.Context, orderID, userID uuid.UUID) (*orders.OrderDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &orders.OrderDetail{}, nil
}

func (f *fakeOrdersService) List(ctx context.Context, userID uuid.UUID, params pagination.Params, filters orders.ListFilters) (*orders.OrderList, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &orders.OrderList{}, nil
}

func (f *fakeOrdersService) Transition(ctx context.Context, input orders.TransitionInput) error {
	f.transitionInput = &input
	return f.err
}

func (f *fakeOrdersService) TransitionTx(ctx context.Context, tx *gorm.DB, input orders.TransitionInput) error {
	return f.err
}

type fakeRefundsService struct {
	input *refunds.CancelInput
	err   error
}

func (f *fakeRefundsService) Cancel(ctx context.Context, input refunds.CancelInput) (*refunds.CancelOutput, error) {
	f.input = &input
	if f.err != nil {
		return nil, f.err
	}
	return &refunds.CancelOutput{OrderID: input.OrderID, Status: enums.OrderStatusCanceled}, nil
}

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateOrder_mapsRequest(t *testing.T) {
	svc := &fakeOrdersService{}
	userID := uuid.New()
	productID := uuid.New()
	optionID := uuid.New()

	body := `{"currency":"krw","items":[` +
		`{"product_id":"` + productID.String() + `","quantity":2},` +
		`{"product_id":"` + productID.String() + `","option_id":"` + optionID.String() + `","quantity":1}]}`

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), userID)
	rec := httptest.NewRecorder()
	CreateOrder(svc, nil)(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.createInput)
	assert.Equal(t, userID, svc.createInput.UserID)
	assert.Equal(t, enums.Currency("KRW"), svc.createInput.Currency)
	require.Len(t, svc.createInput.Items, 2)
	assert.Equal(t, 2, svc.createInput.Items[0].Quantity)
	assert.Nil(t, svc.createInput.Items[0].OptionID)
	require.NotNil(t, svc.createInput.Items[1].OptionID)
	assert.Equal(t, optionID, *svc.createInput.Items[1].OptionID)
}

func TestCreateOrder_rejectsEmptyItems(t *testing.T) {
	svc := &fakeOrdersService{}
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"items":[]}`)), uuid.New())
	rec := httptest.NewRecorder()
	CreateOrder(svc, nil)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.createInput)
}

func TestTransitionOrder_blocksVoidStatuses(t *testing.T) {
	svc := &fakeOrdersService{}
	orderID := uuid.New()

	req := authed(httptest.NewRequest(http.MethodPatch, "/api/v1/orders/"+orderID.String()+"/status",
		strings.NewReader(`{"status":"canceled"}`)), uuid.New())
	req = withURLParam(req, "orderID", orderID.String())
	rec := httptest.NewRecorder()
	TransitionOrder(svc, nil)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.transitionInput)
}

func TestTransitionOrder_forwardsTarget(t *testing.T) {
	svc := &fakeOrdersService{}
	orderID := uuid.New()
	userID := uuid.New()

	req := authed(httptest.NewRequest(http.MethodPatch, "/api/v1/orders/"+orderID.String()+"/status",
		strings.NewReader(`{"status":"preparing"}`)), userID)
	req = withURLParam(req, "orderID", orderID.String())
	rec := httptest.NewRecorder()
	TransitionOrder(svc, nil)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.transitionInput)
	assert.Equal(t, enums.OrderStatusPreparing, svc.transitionInput.Target)
	assert.Equal(t, userID, svc.transitionInput.ActorID)
}

func TestCancelOrder_mapsReasonAndRefundFlag(t *testing.T) {
	svc := &fakeRefundsService{}
	orderID := uuid.New()
	userID := uuid.New()

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel",
		strings.NewReader(`{"reason":"  damaged box  ","refund":true}`)), userID)
	req = withURLParam(req, "orderID", orderID.String())
	rec := httptest.NewRecorder()
	CancelOrder(svc, nil)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.input)
	assert.Equal(t, orderID, svc.input.OrderID)
	assert.Equal(t, userID, svc.input.ActorID)
	assert.Equal(t, "damaged box", svc.input.Reason)
	assert.True(t, svc.input.Refund)
}

func TestCancelOrder_propagatesTransitionErrors(t *testing.T) {
	svc := &fakeRefundsService{err: pkgerrors.New(pkgerrors.CodeInvalidTransition, "order in status delivered cannot be voided")}
	orderID := uuid.New()

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel",
		strings.NewReader(`{}`)), uuid.New())
	req = withURLParam(req, "orderID", orderID.String())
	rec := httptest.NewRecorder()
	CancelOrder(svc, nil)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
