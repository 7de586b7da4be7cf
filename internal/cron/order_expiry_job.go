package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
)

const (
	defaultPendingTTL      = 72 * time.Hour
	defaultExpiryBatchSize = 100
)

// OrderExpiryJobParams configure the stale order scheduler.
type OrderExpiryJobParams struct {
	Logger        *logger.Logger
	PendingReader pendingOrderReader
	Expirer       orderExpirer
	Metrics       *metrics.CronJobMetrics
	TTL           time.Duration
	BatchSize     int
}

type pendingOrderReader interface {
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderExpirer interface {
	Expire(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// NewOrderExpiryJob builds the job that cancels orders left unpaid past the TTL.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.PendingReader == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("order expirer required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &orderExpiryJob{
		logg:      params.Logger,
		reader:    params.PendingReader,
		expirer:   params.Expirer,
		metrics:   params.Metrics,
		ttl:       ttl,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg      *logger.Logger
	reader    pendingOrderReader
	expirer   orderExpirer
	metrics   *metrics.CronJobMetrics
	ttl       time.Duration
	batchSize int
	now       func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

// Run expires one batch per cycle. A failing order does not stop the rest of the
// batch; the failures are combined into the returned error.
func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.reader.FindPendingBefore(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query pending orders: %w", err)
	}

	var (
		errs    error
		expired int
	)
	for _, order := range stale {
		ok, err := j.expirer.Expire(ctx, order.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		if ok {
			expired++
		}
	}

	j.metrics.AddProcessed(j.Name(), expired)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"found":   len(stale),
		"expired": expired,
	}), "order expiry loop complete")
	return errs
}
