package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	pkgdb "github.com/farmcart/farmcart-backend/pkg/db"
	"github.com/farmcart/farmcart-backend/pkg/db/models"
	"github.com/farmcart/farmcart-backend/pkg/enums"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
	"github.com/farmcart/farmcart-backend/pkg/outbox"
)

type stubSessionChecker struct {
	completed bool
	err       error
}

func (s *stubSessionChecker) HasCompleted(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	return s.completed, s.err
}

func newTestService(t *testing.T, db *gorm.DB, sessions *stubSessionChecker) Service {
	t.Helper()
	if sessions == nil {
		sessions = &stubSessionChecker{}
	}
	client := pkgdb.NewWithConn(db)
	outboxSvc := outbox.NewService(outbox.NewRepository(db), nil)
	svc, err := NewService(NewRepository(db), client, outboxSvc, sessions)
	require.NoError(t, err)
	return svc
}

func seedProduct(t *testing.T, db *gorm.DB, name string, priceCents int64, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		Name:       name,
		PriceCents: priceCents,
		Stock:      stock,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func seedOption(t *testing.T, db *gorm.DB, productID uuid.UUID, name string, priceCents int64, stock int) *models.ProductOption {
	t.Helper()
	option := &models.ProductOption{
		ID:         uuid.New(),
		ProductID:  productID,
		Name:       name,
		PriceCents: priceCents,
		Stock:      stock,
	}
	require.NoError(t, db.Create(option).Error)
	return option
}

func TestServiceCreate_snapshotsCatalogPrices(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db, nil)

	apples := seedProduct(t, db, "Chungju Apples", 4000, 10)
	rice := seedProduct(t, db, "Icheon Rice", 30000, 5)
	halfSack := seedOption(t, db, rice.ID, "10kg", 18000, 3)

	userID := uuid.New()
	detail, err := svc.Create(context.Background(), CreateOrderInput{
		UserID: userID,
		Items: []OrderItemInput{
			{ProductID: apples.ID, Quantity: 2},
			{ProductID: rice.ID, OptionID: &halfSack.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, detail.Status)
	assert.Equal(t, enums.CurrencyKRW, detail.Currency)
	assert.Equal(t, int64(2*4000+18000), detail.TotalCents)
	require.Len(t, detail.Items, 2)
	assert.Equal(t, "Icheon Rice (10kg)", detail.Items[1].Name)
	assert.Equal(t, int64(18000), detail.Items[1].UnitPriceCents)

	// Catalog edits after checkout never change the placed order.
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", apples.ID).Update("price_cents", 9999).Error)
	stored, err := svc.Get(context.Background(), detail.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), stored.Items[0].UnitPriceCents)

	logs := []models.OrderLog{}
	require.NoError(t, db.Where("order_id = ?", detail.ID).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, enums.OrderLogActionCreate, logs[0].Action)

	events := []models.OutboxEvent{}
	require.NoError(t, db.Where("aggregate_id = ?", detail.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)
}

func TestServiceCreate_rejectsBadInput(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db, nil)

	_, err := svc.Create(context.Background(), CreateOrderInput{UserID: uuid.New()})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	product := seedProduct(t, db, "Gochugaru 500g", 12000, 4)
	_, err = svc.Create(context.Background(), CreateOrderInput{
		UserID: uuid.New(),
		Items:  []OrderItemInput{{ProductID: product.ID, Quantity: 0}},
	})
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	_, err = svc.Create(context.Background(), CreateOrderInput{
		UserID: uuid.New(),
		Items:  []OrderItemInput{{ProductID: uuid.New(), Quantity: 1}},
	})
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestServiceCreate_rejectsForeignOption(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db, nil)

	pears := seedProduct(t, db, "Naju Pears", 15000, 5)
	garlic := seedProduct(t, db, "Uiseong Garlic", 8000, 5)
	garlicOption := seedOption(t, db, garlic.ID, "1kg net", 8000, 5)

	_, err := svc.Create(context.Background(), CreateOrderInput{
		UserID: uuid.New(),
		Items:  []OrderItemInput{{ProductID: pears.ID, OptionID: &garlicOption.ID, Quantity: 1}},
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestServiceGet_enforcesOwnership(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db, nil)

	owner := uuid.New()
	order := newTestOrder(t, db, owner, enums.OrderStatusPending, 3000, time.Now().UTC())

	_, err := svc.Get(context.Background(), order.ID, uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())

	_, err = svc.Get(context.Background(), uuid.New(), owner)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestServiceTransition_followsLifecycle(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db, nil)

	owner := uuid.New()
	order := newTestOrder(t, db, owner, enums.OrderStatusPending, 3000, time.Now().UTC())

	err := svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusPaymentPending,
		ActorID: owner,
	})
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, db.Where("id = ?", order.ID).First(&stored).Error)
	assert.Equal(t, enums.OrderStatusPaymentPending, stored.Status)

	logs := []models.OrderLog{}
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, enums.OrderLogActionTransition, logs[0].Action)
}

func TestServiceTransition_enforcesOwnership(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db, nil)

	owner := uuid.New()
	order := newTestOrder(t, db, owner, enums.OrderStatusPaid, 3000, time.Now().UTC())

	// A different authenticated buyer must not be able to move this order.
	err := svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusPreparing,
		ActorID: uuid.New(),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())

	var stored models.Order
	require.NoError(t, db.Where("id = ?", order.ID).First(&stored).Error)
	assert.Equal(t, enums.OrderStatusPaid, stored.Status)

	// Automation bypasses the ownership check.
	err = svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusPreparing,
		ActorID: SystemActorID,
	})
	require.NoError(t, err)
}

func TestServiceTransition_sameStatusIsNoOp(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db, nil)

	owner := uuid.New()
	order := newTestOrder(t, db, owner, enums.OrderStatusShipping, 3000, time.Now().UTC())

	err := svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusShipping,
		ActorID: owner,
	})
	require.NoError(t, err)

	// The replay must not add audit rows.
	logs := []models.OrderLog{}
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&logs).Error)
	assert.Empty(t, logs)
}

func TestServiceTransition_rejectsIllegalMoves(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db, nil)

	cases := []struct {
		name   string
		from   enums.OrderStatus
		target enums.OrderStatus
	}{
		{"pending cannot skip to paid", enums.OrderStatusPending, enums.OrderStatusPaid},
		{"pending cannot skip to shipping", enums.OrderStatusPending, enums.OrderStatusShipping},
		{"delivered is immutable", enums.OrderStatusDelivered, enums.OrderStatusCanceled},
		{"canceled is terminal", enums.OrderStatusCanceled, enums.OrderStatusPending},
		{"refunded is terminal", enums.OrderStatusRefunded, enums.OrderStatusPaid},
		{"paid cannot regress", enums.OrderStatusPaid, enums.OrderStatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			owner := uuid.New()
			order := newTestOrder(t, db, owner, tc.from, 3000, time.Now().UTC())

			err := svc.Transition(context.Background(), TransitionInput{
				OrderID: order.ID,
				Target:  tc.target,
				ActorID: owner,
			})
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeInvalidTransition, typed.Code())

			var stored models.Order
			require.NoError(t, db.Where("id = ?", order.ID).First(&stored).Error)
			assert.Equal(t, tc.from, stored.Status)
		})
	}
}

func TestServiceTransition_paidRequiresCompletedSession(t *testing.T) {
	db := setupOrdersTestDB(t)
	sessions := &stubSessionChecker{completed: false}
	svc := newTestService(t, db, sessions)

	owner := uuid.New()
	order := newTestOrder(t, db, owner, enums.OrderStatusPaymentPending, 3000, time.Now().UTC())

	err := svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusPaid,
		ActorID: owner,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInvalidTransition, typed.Code())

	sessions.completed = true
	err = svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusPaid,
		ActorID: owner,
	})
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, db.Where("id = ?", order.ID).First(&stored).Error)
	assert.Equal(t, enums.OrderStatusPaid, stored.Status)
}

func TestServiceTransition_cancelStampsReasonAndTime(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db, nil)

	owner := uuid.New()
	order := newTestOrder(t, db, owner, enums.OrderStatusPaid, 3000, time.Now().UTC())

	reason := "buyer request"
	err := svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusCanceled,
		ActorID: owner,
		Reason:  &reason,
		Action:  enums.OrderLogActionCancel,
	})
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, db.Where("id = ?", order.ID).First(&stored).Error)
	assert.Equal(t, enums.OrderStatusCanceled, stored.Status)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, reason, *stored.CancelReason)
	require.NotNil(t, stored.CanceledAt)

	logs := []models.OrderLog{}
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, enums.OrderLogActionCancel, logs[0].Action)
}

func TestServiceTransition_deliveredEmitsEventOnce(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db, nil)

	order := newTestOrder(t, db, uuid.New(), enums.OrderStatusShipping, 3000, time.Now().UTC())

	input := TransitionInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusDelivered,
		ActorID: SystemActorID,
		Action:  enums.OrderLogActionDelivery,
	}
	require.NoError(t, svc.Transition(context.Background(), input))
	// Replayed webhook lands on the same status and must stay silent.
	require.NoError(t, svc.Transition(context.Background(), input))

	var stored models.Order
	require.NoError(t, db.Where("id = ?", order.ID).First(&stored).Error)
	assert.Equal(t, enums.OrderStatusDelivered, stored.Status)
	require.NotNil(t, stored.DeliveredAt)

	events := []models.OutboxEvent{}
	require.NoError(t, db.Where("aggregate_id = ?", order.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderDelivered, events[0].EventType)
}
