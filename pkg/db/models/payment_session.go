package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/farmcart/farmcart-backend/pkg/enums"
)

// PaymentSession is one attempt to charge an order through a provider. Raw
// provider responses are kept verbatim for later reconciliation.
type PaymentSession struct {
	ID              uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID                  `gorm:"column:order_id;type:uuid;not null"`
	Provider        enums.PaymentProvider      `gorm:"column:provider;type:payment_provider;not null"`
	ProviderTID     string                     `gorm:"column:provider_tid;not null"`
	Status          enums.PaymentSessionStatus `gorm:"column:status;type:payment_session_status;not null;default:'ready'"`
	AmountCents     int64                      `gorm:"column:amount_cents;not null"`
	PrepareResponse json.RawMessage            `gorm:"column:prepare_response;type:jsonb"`
	ApproveResponse json.RawMessage            `gorm:"column:approve_response;type:jsonb"`
	CancelResponse  json.RawMessage            `gorm:"column:cancel_response;type:jsonb"`
	CompletedAt     *time.Time                 `gorm:"column:completed_at"`
	CanceledAt      *time.Time                 `gorm:"column:canceled_at"`
	CreatedAt       time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
