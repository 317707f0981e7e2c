package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/farmcart/farmcart-backend/internal/orders"
	"github.com/farmcart/farmcart-backend/internal/refunds"
	"github.com/farmcart/farmcart-backend/pkg/db/models"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
	"github.com/farmcart/farmcart-backend/pkg/logger"
)

const defaultUnpaidTTL = 24 * time.Hour

// OrderExpirationJobParams configure the unpaid order sweeper.
type OrderExpirationJobParams struct {
	Logger  *logger.Logger
	Reader  unpaidOrderReader
	Refunds refunds.Service
	TTL     time.Duration
}

type unpaidOrderReader interface {
	FindUnpaidBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
}

// NewOrderExpirationJob builds the cron job that voids orders whose payment
// window lapsed. Going through the refund orchestrator closes any checkout
// session the buyer abandoned mid-gateway.
func NewOrderExpirationJob(params OrderExpirationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refunds service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultUnpaidTTL
	}
	return &orderExpirationJob{
		logg:    params.Logger,
		reader:  params.Reader,
		refunds: params.Refunds,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

type orderExpirationJob struct {
	logg    *logger.Logger
	reader  unpaidOrderReader
	refunds refunds.Service
	ttl     time.Duration
	now     func() time.Time
}

func (j *orderExpirationJob) Name() string { return "order-expiration" }

func (j *orderExpirationJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.reader.FindUnpaidBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query unpaid orders: %w", err)
	}

	var errs []error
	expired := 0
	for _, order := range stale {
		_, err := j.refunds.Cancel(ctx, refunds.CancelInput{
			OrderID: order.ID,
			ActorID: orders.SystemActorID,
			Reason:  "payment window expired",
		})
		if err != nil {
			// A lost race means a buyer or settlement got there first;
			// the order is no longer stale.
			if typed := pkgerrors.As(err); typed != nil &&
				(typed.Code() == pkgerrors.CodeInvalidTransition || typed.Code() == pkgerrors.CodeConflict) {
				continue
			}
			errs = append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		expired++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"checked": len(stale),
		"expired": expired,
	})
	j.logg.Info(logCtx, "unpaid order sweep complete")
	return multierr.Combine(errs...)
}
