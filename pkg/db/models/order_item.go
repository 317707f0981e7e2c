package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is one purchased line. UnitPriceCents is a snapshot taken at
// checkout; catalog price changes never alter a placed order.
type OrderItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	OptionID       *uuid.UUID `gorm:"column:option_id;type:uuid"`
	Name           string     `gorm:"column:name;not null"`
	Quantity       int        `gorm:"column:quantity;not null"`
	UnitPriceCents int64      `gorm:"column:unit_price_cents;not null"`
	TotalCents     int64      `gorm:"column:total_cents;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}
