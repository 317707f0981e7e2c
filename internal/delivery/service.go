package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmcart/farmcart-backend/internal/orders"
	"github.com/farmcart/farmcart-backend/pkg/enums"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
	"github.com/farmcart/farmcart-backend/pkg/logger"
	"github.com/farmcart/farmcart-backend/pkg/outbox"
	"github.com/farmcart/farmcart-backend/pkg/tracking"
)

// dedupTTL keeps webhook replay keys long enough to swallow carrier
// retry storms without holding them forever.
const dedupTTL = 6 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type orderMachine interface {
	TransitionTx(ctx context.Context, tx *gorm.DB, input orders.TransitionInput) error
}

type trackingQuerier interface {
	Query(ctx context.Context, carrierID, trackingNumber string) (*tracking.Info, error)
}

// replayGuard is the slice of the redis client used to drop duplicate
// carrier webhooks before they reach the database.
type replayGuard interface {
	WebhookDedupKey(carrierID, trackingNumber, status string) string
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// ReconcileOutput reports where a shipment landed after a webhook.
type ReconcileOutput struct {
	ShipmentID uuid.UUID            `json:"shipment_id"`
	OrderID    uuid.UUID            `json:"order_id"`
	Status     enums.DeliveryStatus `json:"status"`
	Changed    bool                 `json:"changed"`
}

// ShipmentUpdatedEvent is emitted whenever carrier progress moves a shipment.
type ShipmentUpdatedEvent struct {
	ShipmentID     uuid.UUID            `json:"shipment_id"`
	OrderID        uuid.UUID            `json:"order_id"`
	CarrierID      string               `json:"carrier_id"`
	TrackingNumber string               `json:"tracking_number"`
	Status         enums.DeliveryStatus `json:"status"`
	CarrierLevel   int                  `json:"carrier_level"`
	CarrierStatus  string               `json:"carrier_status,omitempty"`
}

// Service reconciles carrier state into shipments and order statuses.
type Service interface {
	Reconcile(ctx context.Context, carrierID, trackingNumber string) (*ReconcileOutput, error)
}

type service struct {
	shipments *Repository
	machine   orderMachine
	tracker   trackingQuerier
	tx        txRunner
	outbox    outboxPublisher
	guard     replayGuard
	logg      *logger.Logger
}

// Options carry the optional delivery service collaborators.
type Options struct {
	// Guard drops duplicate webhooks early. Reconcile stays idempotent
	// without it, so a missing or unreachable redis never loses events.
	Guard  replayGuard
	Logger *logger.Logger
}

// NewService builds the delivery reconciler.
func NewService(
	shipments *Repository,
	machine orderMachine,
	tracker trackingQuerier,
	tx txRunner,
	outboxSvc outboxPublisher,
	opts Options,
) (Service, error) {
	if shipments == nil {
		return nil, fmt.Errorf("shipment repository required")
	}
	if machine == nil {
		return nil, fmt.Errorf("order state machine required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("tracking client required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		shipments: shipments,
		machine:   machine,
		tracker:   tracker,
		tx:        tx,
		outbox:    outboxSvc,
		guard:     opts.Guard,
		logg:      opts.Logger,
	}, nil
}

// Reconcile pulls the carrier's current view of a parcel and folds it into
// the shipment row and the order lifecycle. The carrier is the source of
// truth: webhooks only tell us to look, the aggregator query decides what
// changed. Replays of the same state converge to a no-op.
func (s *service) Reconcile(ctx context.Context, carrierID, trackingNumber string) (*ReconcileOutput, error) {
	if carrierID == "" || trackingNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "carrier id and tracking number are required")
	}

	info, err := s.tracker.Query(ctx, carrierID, trackingNumber)
	if err != nil {
		return nil, err
	}
	status, err := info.Status()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderRejected, err, "carrier reported an unknown tracking state")
	}

	guardKey, seenBefore := s.claimWebhook(ctx, carrierID, trackingNumber, status)
	if seenBefore {
		shipment, err := s.shipments.FindByTracking(ctx, carrierID, trackingNumber)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
		}
		return &ReconcileOutput{
			ShipmentID: shipment.ID,
			OrderID:    shipment.OrderID,
			Status:     shipment.Status,
			Changed:    false,
		}, nil
	}

	var output *ReconcileOutput
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		shipmentsTx := s.shipments.WithTx(tx)

		shipment, err := shipmentsTx.FindByTracking(ctx, carrierID, trackingNumber)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
		}

		if shipment.Status == status && shipment.CarrierLevel == info.Level {
			output = &ReconcileOutput{
				ShipmentID: shipment.ID,
				OrderID:    shipment.OrderID,
				Status:     status,
				Changed:    false,
			}
			return nil
		}

		now := time.Now().UTC()
		if err := shipmentsTx.UpdateProgress(ctx, shipment.ID, status, info.Level, info.StatusText, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shipment")
		}

		reason := info.StatusText
		input := orders.TransitionInput{
			OrderID: shipment.OrderID,
			Target:  status.OrderStatus(),
			ActorID: orders.SystemActorID,
			Action:  enums.OrderLogActionDelivery,
		}
		if reason != "" {
			input.Reason = &reason
		}
		if err := s.machine.TransitionTx(ctx, tx, input); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventShipmentUpdated,
			AggregateType: enums.AggregateShipment,
			AggregateID:   shipment.ID,
			Version:       1,
			Data: ShipmentUpdatedEvent{
				ShipmentID:     shipment.ID,
				OrderID:        shipment.OrderID,
				CarrierID:      carrierID,
				TrackingNumber: trackingNumber,
				Status:         status,
				CarrierLevel:   info.Level,
				CarrierStatus:  info.StatusText,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		output = &ReconcileOutput{
			ShipmentID: shipment.ID,
			OrderID:    shipment.OrderID,
			Status:     status,
			Changed:    true,
		}
		return nil
	})
	if err != nil {
		// An unapplied update must stay claimable, or the carrier's retry
		// of the same status would short-circuit and the event be lost.
		s.releaseWebhook(ctx, guardKey)
		return nil, err
	}

	if output.Changed && s.logg != nil {
		logCtx := s.logg.WithOrderID(s.logg.WithField(ctx, "tracking_number", trackingNumber), output.OrderID.String())
		s.logg.Info(logCtx, "shipment reconciled")
	}
	return output, nil
}

// claimWebhook marks a (carrier, tracking, status) event as in flight and
// returns the key so a failed apply can surrender the claim. Guard failures
// count as unseen; the transactional path handles duplicates anyway.
func (s *service) claimWebhook(ctx context.Context, carrierID, trackingNumber string, status enums.DeliveryStatus) (string, bool) {
	if s.guard == nil {
		return "", false
	}
	key := s.guard.WebhookDedupKey(carrierID, trackingNumber, status.String())
	first, err := s.guard.SetNX(ctx, key, 1, dedupTTL)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "webhook dedup unavailable, reconciling anyway")
		}
		return "", false
	}
	return key, !first
}

func (s *service) releaseWebhook(ctx context.Context, key string) {
	if s.guard == nil || key == "" {
		return
	}
	if err := s.guard.Del(ctx, key); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "webhook dedup release failed; duplicate suppression may outlive the retry window")
	}
}
