// FilePath: internal/query/engine.go

// Package query answers the four read shapes over the reading store:
// range listing, per-sensor listing, aggregated statistics and
// time-bucketed aggregation.
package query

import (
	"context"
	"time"

	"github.com/sensegrid/hub/internal/errors"
	"github.com/sensegrid/hub/internal/models"
	"github.com/sensegrid/hub/internal/repository"
)

const (
	DefaultHours  = 24.0
	DefaultLimit  = 100
	DefaultBucket = "1 hour"
)

// Engine executes validated queries against the store. Every store
// call runs under the configured timeout so a hung store fails the
// request instead of hanging the caller.
type Engine struct {
	readings repository.ReadingRepository
	timeout  time.Duration
	now      func() time.Time
}

// New creates a query engine. A timeout of 0 disables the deadline.
func New(readings repository.ReadingRepository, timeout time.Duration) *Engine {
	return &Engine{
		readings: readings,
		timeout:  timeout,
		now:      time.Now,
	}
}

// ListRange lists readings within the window, most recent first,
// optionally filtered to one sensor.
func (e *Engine) ListRange(ctx context.Context, q models.ListQuery) ([]models.Reading, error) {
	hours, limit, apiErr := e.windowParams(q.Hours, q.Limit)
	if apiErr != nil {
		return nil, apiErr
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.readings.List(ctx, models.ReadingFilter{
		SensorID: q.SensorID,
		Since:    e.windowStart(hours),
		Limit:    limit,
	})
}

// ListBySensor lists readings for one sensor within the window. An
// empty result is a normal outcome, not an error.
func (e *Engine) ListBySensor(ctx context.Context, sensorID int64, q models.ListQuery) ([]models.Reading, error) {
	q.SensorID = &sensorID
	return e.ListRange(ctx, q)
}

// Stats computes per-sensor aggregates over the window. Without a
// sensor filter, one record per sensor present in the window; with
// one, zero or one record.
func (e *Engine) Stats(ctx context.Context, q models.StatsQuery) ([]models.SensorStats, error) {
	hours, apiErr := e.hoursParam(q.Hours)
	if apiErr != nil {
		return nil, apiErr
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.readings.Stats(ctx, models.StatsFilter{
		SensorID: q.SensorID,
		Since:    e.windowStart(hours),
	})
}

// TimeBuckets computes the sparse, epoch-aligned bucket aggregation
// over the window, ascending by bucket start. The returned width is
// the normalized bucket expression for the response envelope.
func (e *Engine) TimeBuckets(ctx context.Context, q models.BucketQuery) ([]models.TimeBucket, models.BucketWidth, error) {
	var width models.BucketWidth

	hours, apiErr := e.hoursParam(q.Hours)
	if apiErr != nil {
		return nil, width, apiErr
	}

	expr := DefaultBucket
	if q.Bucket != nil {
		expr = *q.Bucket
	}
	width, err := models.ParseBucketWidth(expr)
	if err != nil {
		return nil, width, errors.NewValidationError(err.Error(), nil)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	buckets, err := e.readings.TimeBuckets(ctx, models.BucketFilter{
		SensorID: q.SensorID,
		Since:    e.windowStart(hours),
		Width:    width,
	})
	if err != nil {
		return nil, width, err
	}
	return buckets, width, nil
}

// Ping reports store reachability, for health checks.
func (e *Engine) Ping(ctx context.Context) error {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.readings.Ping(ctx)
}

func (e *Engine) windowStart(hours float64) time.Time {
	return e.now().Add(-time.Duration(hours * float64(time.Hour)))
}

func (e *Engine) hoursParam(hours *float64) (float64, *errors.APIError) {
	h := DefaultHours
	if hours != nil {
		h = *hours
	}
	if h <= 0 {
		return 0, errors.NewValidationError("hours must be positive", nil)
	}
	return h, nil
}

func (e *Engine) windowParams(hours *float64, limit *int) (float64, int, *errors.APIError) {
	h, apiErr := e.hoursParam(hours)
	if apiErr != nil {
		return 0, 0, apiErr
	}
	l := DefaultLimit
	if limit != nil {
		l = *limit
	}
	if l <= 0 {
		return 0, 0, errors.NewValidationError("limit must be positive", nil)
	}
	return h, l, nil
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}
