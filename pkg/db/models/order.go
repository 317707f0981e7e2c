package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/farmcart/farmcart-backend/pkg/enums"
)

// Order is the canonical order row. Status is written only through the order
// state machine; every other component requests mutation through it.
type Order struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	Status          enums.OrderStatus      `gorm:"column:status;type:order_status;not null;default:'pending'"`
	Currency        enums.Currency         `gorm:"column:currency;type:text;not null;default:'KRW'"`
	TotalCents      int64                  `gorm:"column:total_cents;not null"`
	PaymentProvider *enums.PaymentProvider `gorm:"column:payment_provider;type:payment_provider"`
	ProviderTID     *string                `gorm:"column:provider_tid"`
	CancelReason    *string                `gorm:"column:cancel_reason"`
	CanceledAt      *time.Time             `gorm:"column:canceled_at"`
	DeliveredAt     *time.Time             `gorm:"column:delivered_at"`
	Items           []OrderItem            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
