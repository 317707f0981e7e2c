package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/farmcart/farmcart-backend/pkg/enums"
)

// SystemActorID attributes lifecycle changes made by automation, such as
// the delivery reconciler, rather than a signed-in user.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// OrderItemInput selects one product (or product option) and a quantity.
type OrderItemInput struct {
	ProductID uuid.UUID
	OptionID  *uuid.UUID
	Quantity  int
}

// CreateOrderInput captures everything needed to open a pending order.
// Prices are never accepted from the caller; they are snapshotted from the
// catalog at creation time.
type CreateOrderInput struct {
	UserID   uuid.UUID
	Currency enums.Currency
	Items    []OrderItemInput
}

// TransitionInput asks the state machine to move an order to a new status.
type TransitionInput struct {
	OrderID uuid.UUID
	Target  enums.OrderStatus
	ActorID uuid.UUID
	Reason  *string
	// Action overrides the order log action; status_transition when empty.
	Action enums.OrderLogAction
}

// ListFilters describe the optional filters on the user order listing.
type ListFilters struct {
	Status   *enums.OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time
}

// OrderSummary is the shape returned by the order listing.
type OrderSummary struct {
	ID         uuid.UUID         `json:"id"`
	Status     enums.OrderStatus `json:"status"`
	Currency   enums.Currency    `json:"currency"`
	TotalCents int64             `json:"total_cents"`
	TotalItems int               `json:"total_items"`
	CreatedAt  time.Time         `json:"created_at"`
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// OrderItemDetail is one purchased line in the order detail view.
type OrderItemDetail struct {
	ID             uuid.UUID  `json:"id"`
	ProductID      uuid.UUID  `json:"product_id"`
	OptionID       *uuid.UUID `json:"option_id,omitempty"`
	Name           string     `json:"name"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	TotalCents     int64      `json:"total_cents"`
}

// OrderDetail is the full order view returned to its owner.
type OrderDetail struct {
	ID              uuid.UUID              `json:"id"`
	Status          enums.OrderStatus      `json:"status"`
	Currency        enums.Currency         `json:"currency"`
	TotalCents      int64                  `json:"total_cents"`
	PaymentProvider *enums.PaymentProvider `json:"payment_provider,omitempty"`
	CancelReason    *string                `json:"cancel_reason,omitempty"`
	CanceledAt      *time.Time             `json:"canceled_at,omitempty"`
	DeliveredAt     *time.Time             `json:"delivered_at,omitempty"`
	Items           []OrderItemDetail      `json:"items"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// OrderCreatedEvent is emitted when a pending order is opened.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	UserID     uuid.UUID         `json:"user_id"`
	Status     enums.OrderStatus `json:"status"`
	Currency   enums.Currency    `json:"currency"`
	TotalCents int64             `json:"total_cents"`
	ItemCount  int               `json:"item_count"`
}

// OrderDeliveredEvent is emitted once when an order reaches delivered.
type OrderDeliveredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// transitionLogPayload is the order log payload written on each transition.
type transitionLogPayload struct {
	From   enums.OrderStatus `json:"from"`
	To     enums.OrderStatus `json:"to"`
	Reason *string           `json:"reason,omitempty"`
}
