package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmcart/farmcart-backend/pkg/db/models"
	"github.com/farmcart/farmcart-backend/pkg/enums"
)

// Repository persists shipments and their carrier progress.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, shipment *models.Shipment) error {
	return r.db.WithContext(ctx).Create(shipment).Error
}

// FindByTracking looks up the shipment a carrier webhook refers to.
func (r *Repository) FindByTracking(ctx context.Context, carrierID, trackingNumber string) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).
		Where("carrier_id = ? AND tracking_number = ?", carrierID, trackingNumber).
		First(&shipment).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *Repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&shipment).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

// UpdateProgress records the latest carrier state on the shipment row.
func (r *Repository) UpdateProgress(ctx context.Context, shipmentID uuid.UUID, status enums.DeliveryStatus, carrierLevel int, carrierStatus string, eventAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", shipmentID).
		Updates(map[string]any{
			"status":         status,
			"carrier_level":  carrierLevel,
			"carrier_status": carrierStatus,
			"last_event_at":  eventAt,
			"updated_at":     time.Now().UTC(),
		}).Error
}
