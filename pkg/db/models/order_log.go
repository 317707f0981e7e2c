package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/farmcart/farmcart-backend/pkg/enums"
)

// OrderLog is an append-only audit record. Rows are never updated or deleted.
type OrderLog struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID            `gorm:"column:order_id;type:uuid;not null"`
	ActorID   uuid.UUID            `gorm:"column:actor_id;type:uuid;not null"`
	Action    enums.OrderLogAction `gorm:"column:action;type:order_log_action;not null"`
	Payload   json.RawMessage      `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
}
