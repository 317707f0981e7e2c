package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmcart/farmcart-backend/pkg/db/models"
	"github.com/farmcart/farmcart-backend/pkg/enums"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
	"github.com/farmcart/farmcart-backend/pkg/outbox"
	"github.com/farmcart/farmcart-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CompletedSessionChecker reports whether an order has a completed payment
// session. The state machine refuses to mark an order paid without one.
type CompletedSessionChecker interface {
	HasCompleted(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error)
}

// Service owns the order lifecycle. Every status write in the system goes
// through Transition or TransitionTx; nothing else updates orders.status.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*OrderDetail, error)
	Get(ctx context.Context, orderID, userID uuid.UUID) (*OrderDetail, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	Transition(ctx context.Context, input TransitionInput) error
	TransitionTx(ctx context.Context, tx *gorm.DB, input TransitionInput) error
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	sessions CompletedSessionChecker
}

// NewService builds the order lifecycle service with the required dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher, sessions CompletedSessionChecker) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session checker required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   outboxSvc,
		sessions: sessions,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*OrderDetail, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyKRW
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	var detail *OrderDetail
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		items, total, err := s.snapshotItems(ctx, repo, input.Items)
		if err != nil {
			return err
		}

		order := &models.Order{
			ID:         uuid.New(),
			UserID:     input.UserID,
			Status:     enums.OrderStatusPending,
			Currency:   currency,
			TotalCents: total,
		}
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		payload, err := json.Marshal(map[string]any{
			"total_cents": total,
			"item_count":  len(items),
		})
		if err != nil {
			return err
		}
		if err := repo.AppendLog(ctx, &models.OrderLog{
			ID:      uuid.New(),
			OrderID: order.ID,
			ActorID: input.UserID,
			Action:  enums.OrderLogActionCreate,
			Payload: payload,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order log")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.UserID},
			Data: OrderCreatedEvent{
				OrderID:    order.ID,
				UserID:     input.UserID,
				Status:     order.Status,
				Currency:   currency,
				TotalCents: total,
				ItemCount:  len(items),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		order.Items = items
		detail = toDetail(order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// snapshotItems resolves catalog prices for the requested products and
// options. The snapshot is taken once; later catalog edits never change a
// placed order.
func (s *service) snapshotItems(ctx context.Context, repo Repository, inputs []OrderItemInput) ([]models.OrderItem, int64, error) {
	productIDs := make([]uuid.UUID, 0, len(inputs))
	optionIDs := make([]uuid.UUID, 0, len(inputs))
	for _, item := range inputs {
		productIDs = append(productIDs, item.ProductID)
		if item.OptionID != nil {
			optionIDs = append(optionIDs, *item.OptionID)
		}
	}

	products, err := repo.FindProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	productsByID := make(map[uuid.UUID]models.Product, len(products))
	for _, product := range products {
		productsByID[product.ID] = product
	}

	options, err := repo.FindOptionsByIDs(ctx, optionIDs)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product options")
	}
	optionsByID := make(map[uuid.UUID]models.ProductOption, len(options))
	for _, option := range options {
		optionsByID[option.ID] = option
	}

	items := make([]models.OrderItem, 0, len(inputs))
	var total int64
	for _, input := range inputs {
		product, ok := productsByID[input.ProductID]
		if !ok {
			return nil, 0, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		name := product.Name
		unitPrice := product.PriceCents
		if input.OptionID != nil {
			option, ok := optionsByID[*input.OptionID]
			if !ok {
				return nil, 0, pkgerrors.New(pkgerrors.CodeNotFound, "product option not found")
			}
			if option.ProductID != product.ID {
				return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "option does not belong to product")
			}
			name = fmt.Sprintf("%s (%s)", product.Name, option.Name)
			unitPrice = option.PriceCents
		}
		lineTotal := unitPrice * int64(input.Quantity)
		items = append(items, models.OrderItem{
			ID:             uuid.New(),
			ProductID:      input.ProductID,
			OptionID:       input.OptionID,
			Name:           name,
			Quantity:       input.Quantity,
			UnitPriceCents: unitPrice,
			TotalCents:     lineTotal,
		})
		total += lineTotal
	}
	return items, total, nil
}

func (s *service) Get(ctx context.Context, orderID, userID uuid.UUID) (*OrderDetail, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if userID != uuid.Nil && order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return toDetail(order), nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	list, err := s.repo.ListUserOrders(ctx, userID, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.TransitionTx(ctx, tx, input)
	})
}

// TransitionTx applies one lifecycle transition inside the caller's
// transaction. Re-applying the current status is a no-op so retried
// callbacks and webhook replays converge instead of failing.
func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, input TransitionInput) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if !input.Target.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	repo := s.repo.WithTx(tx)
	order, err := repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if input.ActorID != SystemActorID && order.UserID != input.ActorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}

	if order.Status == input.Target {
		return nil
	}
	if !order.Status.CanTransitionTo(input.Target) {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, input.Target))
	}
	if input.Target == enums.OrderStatusPaid {
		completed, err := s.sessions.HasCompleted(ctx, tx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check payment session")
		}
		if !completed {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order has no completed payment session")
		}
	}

	now := time.Now().UTC()
	extra := map[string]any{}
	switch input.Target {
	case enums.OrderStatusCanceled, enums.OrderStatusRefunded:
		extra["canceled_at"] = now
		if input.Reason != nil {
			extra["cancel_reason"] = *input.Reason
		}
	case enums.OrderStatusDelivered:
		extra["delivered_at"] = now
	}

	updated, err := repo.UpdateOrderStatus(ctx, order.ID, order.Status, input.Target, extra)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently")
	}

	action := input.Action
	if action == "" {
		action = enums.OrderLogActionTransition
	}
	payload, err := json.Marshal(transitionLogPayload{
		From:   order.Status,
		To:     input.Target,
		Reason: input.Reason,
	})
	if err != nil {
		return err
	}
	if err := repo.AppendLog(ctx, &models.OrderLog{
		ID:      uuid.New(),
		OrderID: order.ID,
		ActorID: input.ActorID,
		Action:  action,
		Payload: payload,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order log")
	}

	// Delivered is announced here so the event fires exactly once no matter
	// which path moved the order; richer settlement and cancel events belong
	// to the services that own those flows.
	if input.Target == enums.OrderStatusDelivered {
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ActorID},
			Data: OrderDeliveredEvent{
				OrderID:     order.ID,
				UserID:      order.UserID,
				DeliveredAt: now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
	}
	return nil
}

func toDetail(order *models.Order) *OrderDetail {
	items := make([]OrderItemDetail, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDetail{
			ID:             item.ID,
			ProductID:      item.ProductID,
			OptionID:       item.OptionID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.TotalCents,
		})
	}
	return &OrderDetail{
		ID:              order.ID,
		Status:          order.Status,
		Currency:        order.Currency,
		TotalCents:      order.TotalCents,
		PaymentProvider: order.PaymentProvider,
		CancelReason:    order.CancelReason,
		CanceledAt:      order.CanceledAt,
		DeliveredAt:     order.DeliveredAt,
		Items:           items,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}
