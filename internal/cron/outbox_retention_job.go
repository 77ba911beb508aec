package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultRetentionDays = 30
	retentionBatch       = 500
)

type publishedPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository publishedPruner
	Retention  int
}

// outboxRetentionJob prunes published outbox rows in small batches so the
// delete never holds long locks against the relay.
type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      publishedPruner
	retention int
	batch     int
	now       func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	days := params.Retention
	if days <= 0 {
		days = defaultRetentionDays
	}
	return &outboxRetentionJob{logg: params.Logger, repo: params.Repository, retention: days, batch: retentionBatch, now: time.Now}, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retention)
	var total int64
	for {
		n, err := j.repo.DeletePublishedBefore(ctx, cutoff, j.batch)
		total += n
		if err != nil {
			return fmt.Errorf("prune outbox before %s: %w", cutoff.Format(time.DateOnly), err)
		}
		if n < int64(j.batch) || ctx.Err() != nil {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
	}), "outbox retention cleanup complete")
	return ctx.Err()
}
