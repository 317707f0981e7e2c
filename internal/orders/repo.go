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

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repository) FindOptionsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ProductOption, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var options []models.ProductOption
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&options).Error
	if err != nil {
		return nil, err
	}
	return options, nil
}

type orderSummaryRecord struct {
	ID         uuid.UUID
	Status     enums.OrderStatus
	Currency   enums.Currency
	TotalCents int64
	TotalItems int
	CreatedAt  time.Time
}

func (r *repository) ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	pageSize := pagination.NormalizeLimit(params.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	qb := r.db.WithContext(ctx).
		Table("orders o").
		Select("o.id, o.status, o.currency, o.total_cents, o.created_at, " +
			"(SELECT COALESCE(SUM(i.quantity), 0) FROM order_items i WHERE i.order_id = o.id) AS total_items").
		Where("o.user_id = ?", userID)

	if filters.Status != nil {
		qb = qb.Where("o.status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		qb = qb.Where("o.created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		qb = qb.Where("o.created_at <= ?", *filters.DateTo)
	}
	if cursor != nil {
		qb = qb.Where("(o.created_at < ?) OR (o.created_at = ? AND o.id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	qb = qb.Order("o.created_at DESC").Order("o.id DESC").Limit(limitWithBuffer)

	var records []orderSummaryRecord
	if err := qb.Scan(&records).Error; err != nil {
		return nil, err
	}

	resultRows := records
	nextCursor := ""
	if len(records) > pageSize {
		resultRows = records[:pageSize]
		last := resultRows[len(resultRows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	summaries := make([]OrderSummary, 0, len(resultRows))
	for _, record := range resultRows {
		summaries = append(summaries, OrderSummary{
			ID:         record.ID,
			Status:     record.Status,
			Currency:   record.Currency,
			TotalCents: record.TotalCents,
			TotalItems: record.TotalItems,
			CreatedAt:  record.CreatedAt,
		})
	}

	return &OrderList{Orders: summaries, NextCursor: nextCursor}, nil
}

// FindUnpaidBefore returns orders still waiting on payment that were created
// before the cutoff, oldest first.
func (r *repository) FindUnpaidBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPaymentPending}, cutoff).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, expected, next enums.OrderStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     next,
		"updated_at": time.Now().UTC(),
	}
	for column, value := range extra {
		updates[column] = value
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, expected).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetPaymentReference(ctx context.Context, orderID uuid.UUID, provider enums.PaymentProvider, providerTID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"payment_provider": provider,
			"provider_tid":     providerTID,
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (r *repository) AppendLog(ctx context.Context, log *models.OrderLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *repository) FindLogsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderLog, error) {
	var logs []models.OrderLog
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
