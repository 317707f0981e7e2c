package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmcart/farmcart-backend/pkg/db/models"
	"github.com/farmcart/farmcart-backend/pkg/enums"
	"github.com/farmcart/farmcart-backend/pkg/pagination"
)

// Repository defines persistence operations for the order tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	FindOptionsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ProductOption, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	FindUnpaidBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	// UpdateOrderStatus performs a guarded write: the row is touched only
	// when its status still equals expected. It reports whether a row
	// changed, which is how callers detect a lost race.
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, expected, next enums.OrderStatus, extra map[string]any) (bool, error)
	SetPaymentReference(ctx context.Context, orderID uuid.UUID, provider enums.PaymentProvider, providerTID string) error
	AppendLog(ctx context.Context, log *models.OrderLog) error
	FindLogsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderLog, error)
}
