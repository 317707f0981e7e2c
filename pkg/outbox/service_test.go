package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/farmcart/farmcart-backend/pkg/db/models"
	"github.com/farmcart/farmcart-backend/pkg/enums"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	require.NoError(t, db.Exec(schema).Error)
	require.NoError(t, db.Exec("DELETE FROM outbox_events").Error)
	return db
}

func TestEmit_QueuesEnvelopeInsideTransaction(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	orderID := uuid.New()
	actorID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{UserID: actorID},
			Data:          map[string]string{"provider": "kakaopay"},
			Version:       1,
		})
	})
	require.NoError(t, err)

	rows, err := repo.FetchUnpublished(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventOrderSettled, rows[0].EventType)
	assert.Equal(t, orderID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actorID, envelope.Actor.UserID)
}

func TestEmit_RollsBackWithTransaction(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          map[string]string{},
		}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	rows, err := repo.FetchUnpublished(10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEmit_RequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(setupOutboxTestDB(t)), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{})
	require.Error(t, err)
}

func TestMarkPublishedAndFailed(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}
	require.NoError(t, db.Create(&event).Error)

	require.NoError(t, repo.MarkFailed(event.ID, errors.New("pubsub down")))

	var row models.OutboxEvent
	require.NoError(t, db.First(&row, "id = ?", event.ID).Error)
	assert.Equal(t, 1, row.AttemptCount)
	require.NotNil(t, row.LastError)
	assert.Equal(t, "pubsub down", *row.LastError)

	require.NoError(t, repo.MarkPublished(event.ID))
	rows, err := repo.FetchUnpublished(10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDeletePublishedBefore_prunesOldAndExhaustedRows(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	now := time.Now().UTC()
	old := now.Add(-40 * 24 * time.Hour)

	insert := func(published *time.Time, attempts int, createdAt time.Time) uuid.UUID {
		row := models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			CreatedAt:     createdAt,
			PublishedAt:   published,
			AttemptCount:  attempts,
		}
		require.NoError(t, db.Create(&row).Error)
		return row.ID
	}

	prunedPublished := insert(&old, 1, old)
	prunedExhausted := insert(nil, 8, old)
	keptRecent := insert(&now, 1, now)
	keptRetrying := insert(nil, 2, old)

	cutoff := now.Add(-30 * 24 * time.Hour)
	var deleted int64
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeletePublishedBefore(context.Background(), tx, cutoff, 5)
		return err
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, db.Find(&remaining).Error)
	ids := make([]uuid.UUID, 0, len(remaining))
	for _, row := range remaining {
		ids = append(ids, row.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{keptRecent, keptRetrying}, ids)
	assert.NotContains(t, ids, prunedPublished)
	assert.NotContains(t, ids, prunedExhausted)
}

func TestFetchPublishable_skipsExhaustedRows(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	now := time.Now().UTC()
	fresh := models.OutboxEvent{
		ID: uuid.New(), EventType: enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder, AggregateID: uuid.New(),
		Payload: json.RawMessage(`{}`), CreatedAt: now, AttemptCount: 0,
	}
	exhausted := models.OutboxEvent{
		ID: uuid.New(), EventType: enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder, AggregateID: uuid.New(),
		Payload: json.RawMessage(`{}`), CreatedAt: now, AttemptCount: 10,
	}
	require.NoError(t, db.Create(&fresh).Error)
	require.NoError(t, db.Create(&exhausted).Error)

	rows, err := repo.FetchPublishable(10, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, fresh.ID, rows[0].ID)
}
