package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/farmcart/farmcart-backend/pkg/enums"
)

// Shipment tracks one parcel for an order. Mutated only by the delivery
// reconciler once dispatched.
type Shipment struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID            `gorm:"column:order_id;type:uuid;not null"`
	CarrierID      string               `gorm:"column:carrier_id;not null"`
	TrackingNumber string               `gorm:"column:tracking_number;not null"`
	Status         enums.DeliveryStatus `gorm:"column:status;type:delivery_status;not null;default:'preparing'"`
	CarrierLevel   int                  `gorm:"column:carrier_level;not null;default:0"`
	CarrierStatus  string               `gorm:"column:carrier_status"`
	LastEventAt    *time.Time           `gorm:"column:last_event_at"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
