package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

func seedOutboxRow(t *testing.T, conn *gorm.DB, publishedAt *time.Time) {
	t.Helper()
	require.NoError(t, conn.Create(&models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{}`),
		PublishedAt:   publishedAt,
	}).Error)
}

func retentionJob(t *testing.T, repo publishedPruner, now time.Time) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), Repository: repo})
	require.NoError(t, err)
	j := job.(*outboxRetentionJob)
	j.now = func() time.Time { return now }
	return j
}

func TestOutboxRetentionDeletesOldPublishedRowsInBatches(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -45)
	recent := now.AddDate(0, 0, -2)
	for range 3 {
		seedOutboxRow(t, conn, &old)
	}
	seedOutboxRow(t, conn, &recent)
	seedOutboxRow(t, conn, nil)

	job := retentionJob(t, outbox.NewRepository(conn), now)
	job.batch = 2
	require.NoError(t, job.Run(context.Background()))

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.EqualValues(t, 2, remaining, "recent and unpublished rows stay")
}

type scriptedPruner struct {
	results []int64
	err     error
	cutoffs []time.Time
}

func (s *scriptedPruner) DeletePublishedBefore(_ context.Context, cutoff time.Time, _ int) (int64, error) {
	s.cutoffs = append(s.cutoffs, cutoff)
	if len(s.results) == 0 {
		return 0, s.err
	}
	n := s.results[0]
	s.results = s.results[1:]
	return n, nil
}

func TestOutboxRetentionStopsOnShortBatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	pruner := &scriptedPruner{results: []int64{retentionBatch, retentionBatch, 3}}
	require.NoError(t, retentionJob(t, pruner, now).Run(context.Background()))

	assert.Len(t, pruner.cutoffs, 3)
	assert.Equal(t, now.AddDate(0, 0, -defaultRetentionDays), pruner.cutoffs[0])
}

func TestOutboxRetentionPropagatesError(t *testing.T) {
	pruner := &scriptedPruner{err: errors.New("boom")}
	err := retentionJob(t, pruner, time.Now()).Run(context.Background())
	assert.ErrorContains(t, err, "boom")
}

func TestNewOutboxRetentionJobValidates(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop()})
	assert.Error(t, err)
}
