package refunds

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmcart/farmcart-backend/internal/inventory"
	"github.com/farmcart/farmcart-backend/internal/orders"
	"github.com/farmcart/farmcart-backend/internal/payments"
	"github.com/farmcart/farmcart-backend/pkg/db/models"
	"github.com/farmcart/farmcart-backend/pkg/enums"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
	"github.com/farmcart/farmcart-backend/pkg/logger"
	"github.com/farmcart/farmcart-backend/pkg/metrics"
	"github.com/farmcart/farmcart-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type providerResolver interface {
	Get(name enums.PaymentProvider) (payments.Provider, error)
}

type orderMachine interface {
	TransitionTx(ctx context.Context, tx *gorm.DB, input orders.TransitionInput) error
}

// CancelInput voids an order. Refund selects the refunded terminal status
// instead of canceled; it requires a settled payment to give back.
type CancelInput struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	Reason  string
	Refund  bool
}

// CancelOutput reports the voided order.
type CancelOutput struct {
	OrderID       uuid.UUID         `json:"order_id"`
	Status        enums.OrderStatus `json:"status"`
	RefundedCents int64             `json:"refunded_cents,omitempty"`
}

// OrderVoidedEvent is emitted when an order is canceled or refunded.
type OrderVoidedEvent struct {
	OrderID       uuid.UUID             `json:"order_id"`
	UserID        uuid.UUID             `json:"user_id"`
	Status        enums.OrderStatus     `json:"status"`
	Reason        string                `json:"reason,omitempty"`
	Provider      enums.PaymentProvider `json:"provider,omitempty"`
	RefundedCents int64                 `json:"refunded_cents,omitempty"`
}

// Service voids orders, refunding through the payment gateway when money
// already moved.
type Service interface {
	Cancel(ctx context.Context, input CancelInput) (*CancelOutput, error)
}

type service struct {
	orders    orders.Repository
	machine   orderMachine
	sessions  *payments.Repository
	registry  providerResolver
	inventory inventory.Service
	tx        txRunner
	outbox    outboxPublisher

	settlementMetrics *metrics.SettlementMetrics
	logg              *logger.Logger
}

// Options carries the optional observability dependencies.
type Options struct {
	SettlementMetrics *metrics.SettlementMetrics
	Logger            *logger.Logger
}

// NewService builds the refund service.
func NewService(
	ordersRepo orders.Repository,
	machine orderMachine,
	sessions *payments.Repository,
	registry providerResolver,
	inventorySvc inventory.Service,
	tx txRunner,
	outboxSvc outboxPublisher,
	opts Options,
) (Service, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if machine == nil {
		return nil, fmt.Errorf("order state machine required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("payment session repository required")
	}
	if registry == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	if inventorySvc == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		orders:            ordersRepo,
		machine:           machine,
		sessions:          sessions,
		registry:          registry,
		inventory:         inventorySvc,
		tx:                tx,
		outbox:            outboxSvc,
		settlementMetrics: opts.SettlementMetrics,
		logg:              opts.Logger,
	}, nil
}

// Cancel voids an order. When a settled session exists the gateway refund
// runs inside the transaction, after the session claim; the claim is the
// mutex that makes two concurrent cancels produce exactly one refund. Stock
// is given back after commit, best-effort, so a catalog hiccup cannot undo a
// refund that already happened.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*CancelOutput, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}

	var (
		output       *CancelOutput
		restoreItems []inventory.Adjustment
		providerName enums.PaymentProvider
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersTx := s.orders.WithTx(tx)
		sessionsTx := s.sessions.WithTx(tx)

		order, err := ordersTx.FindOrder(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		// The gateway refund below moves money, so ownership is settled
		// here and not left to the state machine.
		if input.ActorID != orders.SystemActorID && order.UserID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if order.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition,
				fmt.Sprintf("order in status %s cannot be voided", order.Status))
		}

		target := enums.OrderStatusCanceled
		action := enums.OrderLogActionCancel

		var refundedCents int64
		settled, err := sessionsTx.FindCompletedByOrder(ctx, order.ID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment session")
		}

		switch {
		case settled != nil:
			if input.Refund {
				target = enums.OrderStatusRefunded
				action = enums.OrderLogActionRefund
			}
			claimed, err := sessionsTx.ClaimCanceled(ctx, settled.ID, enums.PaymentSessionStatusCompleted, nil)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim payment session")
			}
			if !claimed {
				return pkgerrors.New(pkgerrors.CodeConflict, "refund already processed")
			}

			provider, err := s.registry.Get(settled.Provider)
			if err != nil {
				return err
			}
			providerName = settled.Provider

			receipt, err := provider.Cancel(ctx, payments.CancelRequest{
				ProviderTID: settled.ProviderTID,
				AmountCents: settled.AmountCents,
				Reason:      input.Reason,
				// Fresh per attempt: a retried cancel after a timeout gets a
				// new key, the same logical attempt never repeats a charge.
				IdempotencyKey: uuid.NewString(),
			})
			if err != nil {
				return err
			}
			if err := sessionsTx.SetCancelResponse(ctx, settled.ID, receipt.Raw); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refund receipt")
			}
			refundedCents = settled.AmountCents

			payload, err := json.Marshal(map[string]any{
				"provider":       settled.Provider,
				"refunded_cents": settled.AmountCents,
				"receipt":        json.RawMessage(receipt.Raw),
			})
			if err != nil {
				return err
			}
			if err := ordersTx.AppendLog(ctx, &models.OrderLog{
				ID:      uuid.New(),
				OrderID: order.ID,
				ActorID: input.ActorID,
				Action:  enums.OrderLogActionRefund,
				Payload: payload,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append refund log")
			}
		default:
			if input.Refund {
				return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order has no settled payment to refund")
			}
			// An open session never captured money; it is closed quietly.
			if open, err := sessionsTx.FindAnyReadyByOrder(ctx, order.ID); err == nil {
				if _, err := sessionsTx.ClaimCanceled(ctx, open.ID, enums.PaymentSessionStatusReady, nil); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close open session")
				}
			} else if err != gorm.ErrRecordNotFound {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open session")
			}
		}

		reason := input.Reason
		if err := s.machine.TransitionTx(ctx, tx, orders.TransitionInput{
			OrderID: order.ID,
			Target:  target,
			ActorID: input.ActorID,
			Reason:  &reason,
			Action:  action,
		}); err != nil {
			return err
		}

		eventType := enums.EventOrderCanceled
		if target == enums.OrderStatusRefunded {
			eventType = enums.EventOrderRefunded
		}
		event := outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ActorID},
			Data: OrderVoidedEvent{
				OrderID:       order.ID,
				UserID:        order.UserID,
				Status:        target,
				Reason:        input.Reason,
				Provider:      providerName,
				RefundedCents: refundedCents,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		// Stock was only taken at settlement.
		if stockWasTaken(order.Status) {
			restoreItems = stockAdjustments(order.Items)
		}

		output = &CancelOutput{OrderID: order.ID, Status: target, RefundedCents: refundedCents}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.restoreStock(ctx, input.OrderID, restoreItems)

	if s.settlementMetrics != nil {
		s.settlementMetrics.IncCanceled(providerName.String())
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, input.OrderID.String())
		s.logg.Info(logCtx, "order voided")
	}
	return output, nil
}

// restoreStock gives units back in their own transaction after the void
// committed. A failure is logged and left for the operations queue; it never
// unwinds the refund.
func (s *service) restoreStock(ctx context.Context, orderID uuid.UUID, adjustments []inventory.Adjustment) {
	if len(adjustments) == 0 {
		return
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.inventory.Restore(ctx, tx, adjustments)
	})
	if err != nil && s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		s.logg.Error(logCtx, "stock restore failed after void", err)
	}
}

func stockWasTaken(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusPaid, enums.OrderStatusPreparing, enums.OrderStatusShipping:
		return true
	}
	return false
}

func stockAdjustments(items []models.OrderItem) []inventory.Adjustment {
	adjustments := make([]inventory.Adjustment, 0, len(items))
	for _, item := range items {
		adjustments = append(adjustments, inventory.Adjustment{
			ProductID: item.ProductID,
			OptionID:  item.OptionID,
			Quantity:  item.Quantity,
		})
	}
	return adjustments
}
