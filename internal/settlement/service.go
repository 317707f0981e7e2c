package settlement

import (
	"context"
	"fmt"
	"time"

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

// PrepareInput opens a payment session for an order the caller owns.
type PrepareInput struct {
	OrderID  uuid.UUID
	UserID   uuid.UUID
	Provider enums.PaymentProvider
}

// PrepareOutput is returned to the storefront so it can send the buyer to
// the gateway.
type PrepareOutput struct {
	SessionID   uuid.UUID             `json:"session_id"`
	Provider    enums.PaymentProvider `json:"provider"`
	ProviderTID string                `json:"provider_tid"`
	RedirectURL string                `json:"redirect_url,omitempty"`
	AmountCents int64                 `json:"amount_cents"`
}

// ApproveInput finalizes a charge from the gateway's return leg. The actor
// is resolved from the order because the return leg is not authenticated.
type ApproveInput struct {
	OrderID     uuid.UUID
	Provider    enums.PaymentProvider
	CallbackRef string
}

// ApproveOutput reports the settled order.
type ApproveOutput struct {
	OrderID     uuid.UUID             `json:"order_id"`
	Status      enums.OrderStatus     `json:"status"`
	Provider    enums.PaymentProvider `json:"provider"`
	ProviderTID string                `json:"provider_tid"`
	AmountCents int64                 `json:"amount_cents"`
}

// OrderSettledEvent is emitted once per settled order.
type OrderSettledEvent struct {
	OrderID     uuid.UUID             `json:"order_id"`
	UserID      uuid.UUID             `json:"user_id"`
	Provider    enums.PaymentProvider `json:"provider"`
	ProviderTID string                `json:"provider_tid"`
	AmountCents int64                 `json:"amount_cents"`
}

// Service orchestrates the prepare and approve legs of a payment.
type Service interface {
	Prepare(ctx context.Context, input PrepareInput) (*PrepareOutput, error)
	Approve(ctx context.Context, input ApproveInput) (*ApproveOutput, error)
}

type service struct {
	orders        orders.Repository
	machine       orderMachine
	sessions      *payments.Repository
	registry      providerResolver
	inventory     inventory.Service
	tx            txRunner
	outbox        outboxPublisher
	returnBaseURL string

	providerMetrics   *metrics.ProviderMetrics
	settlementMetrics *metrics.SettlementMetrics
	logg              *logger.Logger
}

// Options carries the optional observability dependencies.
type Options struct {
	ProviderMetrics   *metrics.ProviderMetrics
	SettlementMetrics *metrics.SettlementMetrics
	Logger            *logger.Logger
}

// NewService builds the settlement orchestrator.
func NewService(
	ordersRepo orders.Repository,
	machine orderMachine,
	sessions *payments.Repository,
	registry providerResolver,
	inventorySvc inventory.Service,
	tx txRunner,
	outboxSvc outboxPublisher,
	returnBaseURL string,
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
		returnBaseURL:     returnBaseURL,
		providerMetrics:   opts.ProviderMetrics,
		settlementMetrics: opts.SettlementMetrics,
		logg:              opts.Logger,
	}, nil
}

func (s *service) Prepare(ctx context.Context, input PrepareInput) (*PrepareOutput, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment provider")
	}
	provider, err := s.registry.Get(input.Provider)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.FindOrder(ctx, input.OrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	if order.Status != enums.OrderStatusPending && order.Status != enums.OrderStatusPaymentPending {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("order in status %s is not payable", order.Status))
	}

	prepared, err := callTimed(s, input.Provider, "prepare", func() (*payments.PrepareResult, error) {
		return provider.Prepare(ctx, payments.PrepareRequest{
			OrderID:     order.ID,
			UserID:      order.UserID,
			OrderName:   orderDisplayName(order),
			AmountCents: order.TotalCents,
			ItemCount:   len(order.Items),
			ReturnURLs:  s.returnURLs(input.Provider, order.ID),
		})
	})
	if err != nil {
		return nil, err
	}

	session := &models.PaymentSession{
		ID:              uuid.New(),
		OrderID:         order.ID,
		Provider:        input.Provider,
		ProviderTID:     prepared.ProviderTID,
		Status:          enums.PaymentSessionStatusReady,
		AmountCents:     order.TotalCents,
		PrepareResponse: prepared.Raw,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessionsTx := s.sessions.WithTx(tx)

		// A re-prepare supersedes the previous open session; the stale one is
		// closed so the active-session index stays satisfied.
		stale, err := sessionsTx.FindReadyByOrder(ctx, order.ID, input.Provider)
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open session")
		}
		if stale != nil {
			if _, err := sessionsTx.ClaimCanceled(ctx, stale.ID, enums.PaymentSessionStatusReady, nil); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "supersede open session")
			}
		}

		if err := sessionsTx.Create(ctx, session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment session")
		}

		if order.Status == enums.OrderStatusPending {
			return s.machine.TransitionTx(ctx, tx, orders.TransitionInput{
				OrderID: order.ID,
				Target:  enums.OrderStatusPaymentPending,
				ActorID: input.UserID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(s.logg.WithProvider(ctx, input.Provider.String()), order.ID.String())
		s.logg.Info(logCtx, "payment session prepared")
	}

	return &PrepareOutput{
		SessionID:   session.ID,
		Provider:    input.Provider,
		ProviderTID: session.ProviderTID,
		RedirectURL: prepared.RedirectURL,
		AmountCents: session.AmountCents,
	}, nil
}

// Approve settles an order. The session claim is the mutex: of two
// concurrent callbacks for the same session exactly one flips it to
// completed, and the loser returns a conflict without touching the provider,
// stock, or the order. Stock and the paid transition run before the gateway
// capture so that their failures roll back while the buyer's money has not
// moved; a failure after the capture refunds the charge and persists the
// receipts in their own transaction.
func (s *service) Approve(ctx context.Context, input ApproveInput) (*ApproveOutput, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	provider, err := s.registry.Get(input.Provider)
	if err != nil {
		return nil, err
	}

	var (
		output   *ApproveOutput
		approved *payments.ApproveResult
		captured capturedSession
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessionsTx := s.sessions.WithTx(tx)
		ordersTx := s.orders.WithTx(tx)

		order, err := ordersTx.FindOrder(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		session, err := sessionsTx.FindReadyByOrder(ctx, order.ID, input.Provider)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				if _, cerr := sessionsTx.FindCompletedByOrder(ctx, order.ID); cerr == nil {
					s.incConflict()
					return pkgerrors.New(pkgerrors.CodeConflict, "payment already settled")
				}
				return pkgerrors.New(pkgerrors.CodeNotFound, "no open payment session")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment session")
		}

		claimed, err := sessionsTx.ClaimCompleted(ctx, session.ID, session.ProviderTID, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim payment session")
		}
		if !claimed {
			s.incConflict()
			return pkgerrors.New(pkgerrors.CodeConflict, "payment already being settled")
		}

		// Every step that can fail for local reasons runs before the
		// capture: a sold-out line or an illegal transition rolls back
		// while the buyer has not yet been charged.
		if err := s.inventory.Decrement(ctx, tx, stockAdjustments(order.Items)); err != nil {
			return err
		}

		if err := s.machine.TransitionTx(ctx, tx, orders.TransitionInput{
			OrderID: order.ID,
			Target:  enums.OrderStatusPaid,
			ActorID: order.UserID,
			Action:  enums.OrderLogActionSettle,
		}); err != nil {
			return err
		}

		result, err := callTimed(s, input.Provider, "approve", func() (*payments.ApproveResult, error) {
			return provider.Approve(ctx, payments.ApproveRequest{
				OrderID:     order.ID,
				UserID:      order.UserID,
				ProviderTID: session.ProviderTID,
				CallbackRef: input.CallbackRef,
				AmountCents: session.AmountCents,
			})
		})
		if err != nil {
			return err
		}
		approved = result
		captured = capturedSession{ID: session.ID, AmountCents: session.AmountCents}

		if approved.AmountCents != 0 && approved.AmountCents != session.AmountCents {
			return pkgerrors.New(pkgerrors.CodeProviderRejected,
				fmt.Sprintf("settled amount %d does not match session amount %d", approved.AmountCents, session.AmountCents))
		}

		if err := sessionsTx.SetApproveReceipt(ctx, session.ID, approved.ProviderTID, approved.Raw); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store approve receipt")
		}
		if err := ordersTx.SetPaymentReference(ctx, order.ID, input.Provider, approved.ProviderTID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment reference")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: order.UserID},
			Data: OrderSettledEvent{
				OrderID:     order.ID,
				UserID:      order.UserID,
				Provider:    input.Provider,
				ProviderTID: approved.ProviderTID,
				AmountCents: session.AmountCents,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		output = &ApproveOutput{
			OrderID:     order.ID,
			Status:      enums.OrderStatusPaid,
			Provider:    input.Provider,
			ProviderTID: approved.ProviderTID,
			AmountCents: session.AmountCents,
		}
		return nil
	})
	if err != nil {
		if approved != nil {
			s.compensateCapture(ctx, input.Provider, provider, captured, approved, err)
		}
		return nil, err
	}

	if s.settlementMetrics != nil {
		s.settlementMetrics.IncSettled(input.Provider.String())
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(s.logg.WithProvider(ctx, input.Provider.String()), input.OrderID.String())
		s.logg.Info(logCtx, "order settled")
	}
	return output, nil
}

// capturedSession carries the session identity across the transaction
// boundary so a rolled-back settlement can still unwind its capture.
type capturedSession struct {
	ID          uuid.UUID
	AmountCents int64
}

// compensateCapture unwinds a gateway capture whose settlement transaction
// rolled back. The charge is refunded and both receipts are written in a
// fresh transaction: the rollback put the session back to ready, and money
// that moved must never be without evidence.
func (s *service) compensateCapture(
	ctx context.Context,
	providerName enums.PaymentProvider,
	provider payments.Provider,
	captured capturedSession,
	approved *payments.ApproveResult,
	cause error,
) {
	receipt, cancelErr := callTimed(s, providerName, "cancel", func() (*payments.CancelResult, error) {
		return provider.Cancel(ctx, payments.CancelRequest{
			ProviderTID:    approved.ProviderTID,
			AmountCents:    captured.AmountCents,
			Reason:         "settlement failed after capture",
			IdempotencyKey: uuid.NewString(),
		})
	})

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessionsTx := s.sessions.WithTx(tx)
		if err := sessionsTx.SetApproveReceipt(ctx, captured.ID, approved.ProviderTID, approved.Raw); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store approve receipt")
		}
		if cancelErr != nil {
			return nil
		}
		if _, err := sessionsTx.ClaimCanceled(ctx, captured.ID, enums.PaymentSessionStatusReady, receipt.Raw); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close captured session")
		}
		return nil
	})

	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithProvider(ctx, providerName.String())
	logCtx = s.logg.WithField(logCtx, "session_id", captured.ID.String())
	if cancelErr != nil {
		// The charge is still live. Operations follows up with the raw
		// approve receipt that was just persisted.
		s.logg.Error(logCtx, "compensating refund failed after settlement rollback", cancelErr)
	} else {
		s.logg.Warn(logCtx, "capture refunded after settlement rollback: "+cause.Error())
	}
	if err != nil {
		s.logg.Error(logCtx, "persisting capture evidence failed", err)
	}
}

func (s *service) incConflict() {
	if s.settlementMetrics != nil {
		s.settlementMetrics.IncConflict()
	}
}

func callTimed[T any](s *service, provider enums.PaymentProvider, operation string, fn func() (T, error)) (T, error) {
	start := time.Now()
	result, err := fn()
	if s.providerMetrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.providerMetrics.ObserveCall(provider.String(), operation, outcome, time.Since(start))
	}
	return result, err
}

func orderDisplayName(order *models.Order) string {
	if len(order.Items) == 0 {
		return "order " + order.ID.String()
	}
	if len(order.Items) == 1 {
		return order.Items[0].Name
	}
	return fmt.Sprintf("%s and %d more", order.Items[0].Name, len(order.Items)-1)
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

func (s *service) returnURLs(provider enums.PaymentProvider, orderID uuid.UUID) payments.ReturnURLs {
	base := fmt.Sprintf("%s/api/v1/payments/%s", s.returnBaseURL, provider)
	query := "?order_id=" + orderID.String()
	return payments.ReturnURLs{
		Approve: base + "/approve" + query,
		Cancel:  base + "/cancel" + query,
		Fail:    base + "/fail" + query,
	}
}
