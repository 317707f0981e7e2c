package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/farmcart/farmcart-backend/pkg/db/models"
	"github.com/farmcart/farmcart-backend/pkg/enums"
	"github.com/farmcart/farmcart-backend/pkg/pagination"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  stock INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS product_options (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  stock INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  currency TEXT NOT NULL DEFAULT 'KRW',
  total_cents INTEGER NOT NULL,
  payment_provider TEXT,
  provider_tid TEXT,
  cancel_reason TEXT,
  canceled_at DATETIME,
  delivered_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  option_id TEXT,
  name TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  total_cents INTEGER NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_logs (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  action TEXT NOT NULL,
  payload TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	for _, table := range []string{"products", "product_options", "orders", "order_items", "order_logs", "outbox_events"} {
		require.NoError(t, db.Exec("DELETE FROM "+table).Error)
	}
	return db
}

func newTestOrder(t *testing.T, db *gorm.DB, userID uuid.UUID, status enums.OrderStatus, total int64, createdAt time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:         uuid.New(),
		UserID:     userID,
		Status:     status,
		Currency:   enums.CurrencyKRW,
		TotalCents: total,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestRepositoryUpdateOrderStatus_guarded(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	order := newTestOrder(t, db, uuid.New(), enums.OrderStatusPending, 5000, time.Now().UTC())

	updated, err := repo.UpdateOrderStatus(context.Background(), order.ID, enums.OrderStatusPending, enums.OrderStatusPaymentPending, nil)
	require.NoError(t, err)
	assert.True(t, updated)

	// Second writer raced on the same expected status and must lose.
	updated, err = repo.UpdateOrderStatus(context.Background(), order.ID, enums.OrderStatusPending, enums.OrderStatusCanceled, nil)
	require.NoError(t, err)
	assert.False(t, updated)

	var stored models.Order
	require.NoError(t, db.Where("id = ?", order.ID).First(&stored).Error)
	assert.Equal(t, enums.OrderStatusPaymentPending, stored.Status)
}

func TestRepositoryUpdateOrderStatus_extraColumns(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	order := newTestOrder(t, db, uuid.New(), enums.OrderStatusPaid, 5000, time.Now().UTC())

	now := time.Now().UTC()
	updated, err := repo.UpdateOrderStatus(context.Background(), order.ID, enums.OrderStatusPaid, enums.OrderStatusCanceled, map[string]any{
		"canceled_at":   now,
		"cancel_reason": "changed my mind",
	})
	require.NoError(t, err)
	require.True(t, updated)

	var stored models.Order
	require.NoError(t, db.Where("id = ?", order.ID).First(&stored).Error)
	assert.Equal(t, enums.OrderStatusCanceled, stored.Status)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, "changed my mind", *stored.CancelReason)
	require.NotNil(t, stored.CanceledAt)
}

func TestRepositoryFindOrder_preloadsItems(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	order := newTestOrder(t, db, uuid.New(), enums.OrderStatusPending, 6000, time.Now().UTC())
	item := models.OrderItem{
		ID:             uuid.New(),
		OrderID:        order.ID,
		ProductID:      uuid.New(),
		Name:           "Jeju Hallabong 3kg",
		Quantity:       2,
		UnitPriceCents: 3000,
		TotalCents:     6000,
	}
	require.NoError(t, db.Create(&item).Error)

	found, err := repo.FindOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "Jeju Hallabong 3kg", found.Items[0].Name)
	assert.Equal(t, int64(6000), found.Items[0].TotalCents)
}

func TestRepositoryListUserOrders_pagination(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	otherUser := uuid.New()
	now := time.Now().UTC()

	older := newTestOrder(t, db, userID, enums.OrderStatusDelivered, 12000, now.Add(-time.Hour))
	newer := newTestOrder(t, db, userID, enums.OrderStatusPending, 4500, now)
	newTestOrder(t, db, otherUser, enums.OrderStatusPending, 9999, now)

	list, err := repo.ListUserOrders(context.Background(), userID, pagination.Params{Limit: 1}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, newer.ID, list.Orders[0].ID)
	assert.NotEmpty(t, list.NextCursor)

	second, err := repo.ListUserOrders(context.Background(), userID, pagination.Params{Limit: 1, Cursor: list.NextCursor}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.Equal(t, older.ID, second.Orders[0].ID)
	assert.Empty(t, second.NextCursor)
}

func TestRepositoryListUserOrders_statusFilter(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	now := time.Now().UTC()
	newTestOrder(t, db, userID, enums.OrderStatusPending, 1000, now.Add(-time.Minute))
	delivered := newTestOrder(t, db, userID, enums.OrderStatusDelivered, 2000, now)

	status := enums.OrderStatusDelivered
	list, err := repo.ListUserOrders(context.Background(), userID, pagination.Params{Limit: 10}, ListFilters{Status: &status})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, delivered.ID, list.Orders[0].ID)
}

func TestRepositoryAppendLog_appendOnly(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	orderID := uuid.New()
	actorID := uuid.New()
	require.NoError(t, repo.AppendLog(context.Background(), &models.OrderLog{
		ID:      uuid.New(),
		OrderID: orderID,
		ActorID: actorID,
		Action:  enums.OrderLogActionCreate,
	}))
	require.NoError(t, repo.AppendLog(context.Background(), &models.OrderLog{
		ID:      uuid.New(),
		OrderID: orderID,
		ActorID: actorID,
		Action:  enums.OrderLogActionTransition,
	}))

	logs, err := repo.FindLogsByOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, enums.OrderLogActionCreate, logs[0].Action)
	assert.Equal(t, enums.OrderLogActionTransition, logs[1].Action)
}

func TestRepositoryFindUnpaidBefore(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	now := time.Now().UTC()
	stalePending := newTestOrder(t, db, uuid.New(), enums.OrderStatusPending, 5000, now.Add(-48*time.Hour))
	staleWaiting := newTestOrder(t, db, uuid.New(), enums.OrderStatusPaymentPending, 9000, now.Add(-30*time.Hour))
	newTestOrder(t, db, uuid.New(), enums.OrderStatusPending, 3000, now.Add(-time.Hour))
	newTestOrder(t, db, uuid.New(), enums.OrderStatusPaid, 7000, now.Add(-72*time.Hour))

	rows, err := repo.FindUnpaidBefore(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// oldest first
	assert.Equal(t, stalePending.ID, rows[0].ID)
	assert.Equal(t, staleWaiting.ID, rows[1].ID)
}
