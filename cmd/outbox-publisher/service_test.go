package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmcart/farmcart-backend/pkg/config"
	"github.com/farmcart/farmcart-backend/pkg/db/models"
	"github.com/farmcart/farmcart-backend/pkg/enums"
	"github.com/farmcart/farmcart-backend/pkg/logger"
)

type fakeRepo struct {
	events    []models.OutboxEvent
	fetchErr  error
	published []uuid.UUID
	failed    []uuid.UUID
	markErr   error
}

func (f *fakeRepo) FetchPublishable(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if limit < len(f.events) {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeRepo) MarkPublished(id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(id uuid.UUID, err error) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.failed = append(f.failed, id)
	return nil
}

type fakeResult struct {
	err error
}

func (f *fakeResult) Get(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "server-id", nil
}

type fakePublisher struct {
	messages []*gcppubsub.Message
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	return &fakeResult{err: f.err}
}

func publisherFixture(t *testing.T, repo *fakeRepo, pub *fakePublisher) *Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.Outbox.BatchSize = 10
	cfg.Outbox.PollIntervalMS = 5
	cfg.Outbox.MaxAttempts = 3

	svc, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "outbox-publisher-test"}),
		Repository: repo,
		Publisher:  pub,
	})
	require.NoError(t, err)
	return svc
}

func outboxEvent(t *testing.T, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"orderId": uuid.NewString()})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		AttemptCount:  attempts,
	}
}

func TestProcessBatch_publishesAndMarks(t *testing.T) {
	first := outboxEvent(t, enums.EventOrderCreated, 0)
	second := outboxEvent(t, enums.EventOrderSettled, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{}
	svc := publisherFixture(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	require.Len(t, pub.messages, 2)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, repo.published)
	assert.Empty(t, repo.failed)

	attrs := pub.messages[0].Attributes
	assert.Equal(t, first.ID.String(), attrs["event_id"])
	assert.Equal(t, "order_created", attrs["event_type"])
	assert.Equal(t, "order", attrs["aggregate_type"])
	assert.Equal(t, first.AggregateID.String(), attrs["aggregate_id"])
	assert.JSONEq(t, string(first.Payload), string(pub.messages[0].Data))
}

func TestProcessBatch_brokerErrorMarksFailed(t *testing.T) {
	event := outboxEvent(t, enums.EventOrderCanceled, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{err: errors.New("deadline exceeded")}
	svc := publisherFixture(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	assert.Empty(t, repo.published)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.failed)
}

func TestProcessBatch_emptyOutboxIsIdle(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := publisherFixture(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Empty(t, pub.messages)
}

func TestProcessBatch_propagatesFetchError(t *testing.T) {
	repo := &fakeRepo{fetchErr: errors.New("connection refused")}
	svc := publisherFixture(t, repo, &fakePublisher{})

	_, err := svc.processBatch(context.Background())
	require.Error(t, err)
}

func TestRun_stopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	svc := publisherFixture(t, repo, &fakePublisher{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("publisher did not stop after cancel")
	}
}

func TestNewService_appliesDefaults(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{ServiceName: "outbox-publisher-test"}),
		Repository: &fakeRepo{},
		Publisher:  &fakePublisher{},
	})
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, svc.batchSize)
	assert.Equal(t, defaultMaxAttempts, svc.maxAttempts)
	assert.Equal(t, time.Duration(defaultPollMs)*time.Millisecond, svc.pollInterval)
}
