// FilePath: internal/repository/repository.go
package repository

import (
	"context"
	"time"

	"github.com/sensegrid/hub/internal/models"
)

// ReadingRepository defines the interface for the time-partitioned
// reading store. Deletion is idempotent: deleting an absent key is a
// normal outcome, not an error.
type ReadingRepository interface {
	// Upsert inserts the reading or merges it into the row with the
	// same (time, sensor_id) key. Measurements absent from the input
	// leave the stored values untouched. Returns the stored row.
	Upsert(ctx context.Context, reading models.Reading) (models.Reading, error)

	// List returns readings in the filter window, most recent first.
	List(ctx context.Context, filter models.ReadingFilter) ([]models.Reading, error)

	// Stats returns per-sensor aggregate records for the window,
	// ordered by sensor_id. NULL measurements are excluded from the
	// aggregates.
	Stats(ctx context.Context, filter models.StatsFilter) ([]models.SensorStats, error)

	// TimeBuckets returns the sparse, epoch-aligned bucket aggregation
	// for the window, ordered by bucket start ascending then sensor_id.
	TimeBuckets(ctx context.Context, filter models.BucketFilter) ([]models.TimeBucket, error)

	// DeleteOne removes the row matching both keys exactly; false when
	// no such row existed.
	DeleteOne(ctx context.Context, t time.Time, sensorID int64) (bool, error)

	// DeleteBySensor removes all rows for the sensor and reports how
	// many were removed.
	DeleteBySensor(ctx context.Context, sensorID int64) (int64, error)

	// Ping reports store reachability.
	Ping(ctx context.Context) error
}
