package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeRetentionRepo struct {
	deleted         int64
	err             error
	lastCutoff      time.Time
	lastMinAttempts int
}

func (f *fakeRetentionRepo) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts int) (int64, error) {
	f.lastCutoff = cutoff
	f.lastMinAttempts = minAttempts
	return f.deleted, f.err
}

func TestOutboxRetentionJob_prunesWithConfiguredWindow(t *testing.T) {
	repo := &fakeRetentionRepo{deleted: 42}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      testLogger(),
		DB:          fakeTxRunner{},
		Repository:  repo,
		Retention:   7,
		MinAttempts: 3,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 3, repo.lastMinAttempts)
	assert.WithinDuration(t, time.Now().UTC().Add(-7*24*time.Hour), repo.lastCutoff, 5*time.Second)
}

func TestOutboxRetentionJob_defaults(t *testing.T) {
	repo := &fakeRetentionRepo{}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         fakeTxRunner{},
		Repository: repo,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, outboxMinAttempts, repo.lastMinAttempts)
	assert.WithinDuration(t, time.Now().UTC().Add(-outboxRetentionDays*24*time.Hour), repo.lastCutoff, 5*time.Second)
}

func TestOutboxRetentionJob_wrapsRepoError(t *testing.T) {
	repo := &fakeRetentionRepo{err: errors.New("deadlock detected")}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         fakeTxRunner{},
		Repository: repo,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outbox retention")
}
