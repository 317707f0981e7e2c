package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmcart/farmcart-backend/internal/orders"
	"github.com/farmcart/farmcart-backend/internal/refunds"
	"github.com/farmcart/farmcart-backend/pkg/db/models"
	"github.com/farmcart/farmcart-backend/pkg/enums"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
	"github.com/farmcart/farmcart-backend/pkg/logger"
)

type fakeUnpaidReader struct {
	orders     []models.Order
	err        error
	lastCutoff time.Time
}

func (f *fakeUnpaidReader) FindUnpaidBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	f.lastCutoff = cutoff
	return f.orders, f.err
}

type fakeRefundsService struct {
	inputs []refunds.CancelInput
	errs   map[uuid.UUID]error
}

func (f *fakeRefundsService) Cancel(ctx context.Context, input refunds.CancelInput) (*refunds.CancelOutput, error) {
	f.inputs = append(f.inputs, input)
	if err, ok := f.errs[input.OrderID]; ok {
		return nil, err
	}
	return &refunds.CancelOutput{OrderID: input.OrderID, Status: enums.OrderStatusCanceled}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test"})
}

func staleOrder() models.Order {
	return models.Order{ID: uuid.New(), Status: enums.OrderStatusPaymentPending}
}

func TestOrderExpirationJob_voidsStaleOrders(t *testing.T) {
	first := staleOrder()
	second := staleOrder()
	reader := &fakeUnpaidReader{orders: []models.Order{first, second}}
	refundsSvc := &fakeRefundsService{}

	job, err := NewOrderExpirationJob(OrderExpirationJobParams{
		Logger:  testLogger(),
		Reader:  reader,
		Refunds: refundsSvc,
		TTL:     time.Hour,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, refundsSvc.inputs, 2)
	assert.Equal(t, first.ID, refundsSvc.inputs[0].OrderID)
	assert.Equal(t, orders.SystemActorID, refundsSvc.inputs[0].ActorID)
	assert.Equal(t, "payment window expired", refundsSvc.inputs[0].Reason)
	assert.False(t, refundsSvc.inputs[0].Refund)
	assert.WithinDuration(t, time.Now().UTC().Add(-time.Hour), reader.lastCutoff, 5*time.Second)
}

func TestOrderExpirationJob_lostRaceIsNotAnError(t *testing.T) {
	settledMeanwhile := staleOrder()
	reader := &fakeUnpaidReader{orders: []models.Order{settledMeanwhile}}
	refundsSvc := &fakeRefundsService{errs: map[uuid.UUID]error{
		settledMeanwhile.ID: pkgerrors.New(pkgerrors.CodeInvalidTransition, "order in status paid cannot be voided"),
	}}

	job, err := NewOrderExpirationJob(OrderExpirationJobParams{
		Logger:  testLogger(),
		Reader:  reader,
		Refunds: refundsSvc,
	})
	require.NoError(t, err)

	assert.NoError(t, job.Run(context.Background()))
}

func TestOrderExpirationJob_collectsFailuresAndKeepsGoing(t *testing.T) {
	broken := staleOrder()
	healthy := staleOrder()
	reader := &fakeUnpaidReader{orders: []models.Order{broken, healthy}}
	refundsSvc := &fakeRefundsService{errs: map[uuid.UUID]error{
		broken.ID: errors.New("connection reset"),
	}}

	job, err := NewOrderExpirationJob(OrderExpirationJobParams{
		Logger:  testLogger(),
		Reader:  reader,
		Refunds: refundsSvc,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken.ID.String())
	// the healthy order was still swept
	require.Len(t, refundsSvc.inputs, 2)
}

func TestOrderExpirationJob_readerFailure(t *testing.T) {
	reader := &fakeUnpaidReader{err: errors.New("relation does not exist")}
	job, err := NewOrderExpirationJob(OrderExpirationJobParams{
		Logger:  testLogger(),
		Reader:  reader,
		Refunds: &fakeRefundsService{},
	})
	require.NoError(t, err)

	assert.Error(t, job.Run(context.Background()))
}
