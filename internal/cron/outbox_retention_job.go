package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
)

const (
	outboxRetentionJobName    = "outbox-retention"
	defaultOutboxRetention    = 30 * 24 * time.Hour
	defaultRetentionBatchSize = 1000
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxPruner
	Metrics    *metrics.CronJobMetrics
	Retention  time.Duration
	BatchSize  int
}

// outboxRetentionJob prunes published outbox rows in batches so one run never
// holds a long delete lock. Unpublished and dead-lettered rows stay.
type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxPruner
	metrics   *metrics.CronJobMetrics
	retention time.Duration
	batchSize int
	now       func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("outbox retention: logger required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox retention: repository required")
	}
	job := &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		metrics:   params.Metrics,
		retention: params.Retention,
		batchSize: params.BatchSize,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.batchSize <= 0 {
		job.batchSize = defaultRetentionBatchSize
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return outboxRetentionJobName }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	var total int64
	batches := 0
	for ctx.Err() == nil {
		n, err := j.repo.DeletePublishedBefore(ctx, cutoff, j.batchSize)
		if err != nil {
			return fmt.Errorf("prune outbox before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		total += n
		batches++
		if n < int64(j.batchSize) {
			break
		}
	}

	j.metrics.AddProcessed(j.Name(), int(total))
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
		"batches":      batches,
	}), "outbox.retention_complete")
	return ctx.Err()
}
