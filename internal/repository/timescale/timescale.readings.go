// FilePath: internal/repository/timescale/timescale.readings.go
package timescale

import (
	"context"
	"fmt"
	"time"

	"github.com/sensegrid/hub/internal/database"
	"github.com/sensegrid/hub/internal/errors"
	"github.com/sensegrid/hub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

type ReadingRepo struct {
	db database.DB
}

func NewReadingRepository(db database.DB) (*ReadingRepo, error) {
	repo := &ReadingRepo{db: db}
	err := repo.initializeSchema()
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *ReadingRepo) initializeSchema() error {
	// Create hypertable for sensor readings. The (time, sensor_id)
	// primary key carries the upsert conflict target; partitioning by
	// time is a storage-engine concern the queries never see.
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sensor_data (
			time TIMESTAMPTZ NOT NULL,
			sensor_id BIGINT NOT NULL,
			temperature DOUBLE PRECISION,
			humidity DOUBLE PRECISION,
			PRIMARY KEY (time, sensor_id)
		)`,
		`SELECT create_hypertable('sensor_data', 'time',
			chunk_time_interval => INTERVAL '1 day',
			if_not_exists => TRUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sensor_data_sensor_time
         ON sensor_data(sensor_id, time DESC)`,
	}

	for _, query := range queries {
		_, err := r.db.GetDB().Exec(query)
		if err != nil {
			return errors.NewStorageError("failed to initialize schema", err)
		}
	}
	return nil
}

// Upsert merges a reading into the store. Columns absent from the
// input keep their stored values (COALESCE on the excluded row), so
// concurrent partial writes to the same key compose instead of erasing
// each other.
func (r *ReadingRepo) Upsert(ctx context.Context, reading models.Reading) (models.Reading, error) {
	stored := models.Reading{}
	query := `
		INSERT INTO sensor_data (time, sensor_id, temperature, humidity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (time, sensor_id) DO UPDATE SET
			temperature = COALESCE(EXCLUDED.temperature, sensor_data.temperature),
			humidity = COALESCE(EXCLUDED.humidity, sensor_data.humidity)
		RETURNING time, sensor_id, temperature, humidity`

	err := r.db.GetDB().GetContext(ctx, &stored, query,
		reading.Time, reading.SensorID, reading.Temperature, reading.Humidity)
	if err != nil {
		return stored, errors.NewStorageError("failed to upsert reading", err)
	}
	return stored, nil
}

func (r *ReadingRepo) List(ctx context.Context, filter models.ReadingFilter) ([]models.Reading, error) {
	readings := []models.Reading{}
	args := []interface{}{filter.Since}
	query := `
		SELECT time, sensor_id, temperature, humidity
		FROM sensor_data
		WHERE time >= $1`
	if filter.SensorID != nil {
		query += ` AND sensor_id = $2`
		args = append(args, *filter.SensorID)
	}
	query += ` ORDER BY time DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, filter.Limit)
	}

	err := r.db.GetDB().SelectContext(ctx, &readings, query, args...)
	if err != nil {
		return nil, errors.NewStorageError("failed to list readings", err)
	}
	return readings, nil
}

func (r *ReadingRepo) Stats(ctx context.Context, filter models.StatsFilter) ([]models.SensorStats, error) {
	stats := []models.SensorStats{}
	args := []interface{}{filter.Since}
	query := `
		SELECT
			sensor_id,
			COUNT(*) AS total_readings,
			AVG(temperature) AS avg_temperature,
			MIN(temperature) AS min_temperature,
			MAX(temperature) AS max_temperature,
			AVG(humidity) AS avg_humidity,
			MIN(humidity) AS min_humidity,
			MAX(humidity) AS max_humidity,
			MIN(time) AS first_reading,
			MAX(time) AS last_reading
		FROM sensor_data
		WHERE time >= $1`
	if filter.SensorID != nil {
		query += ` AND sensor_id = $2`
		args = append(args, *filter.SensorID)
	}
	query += `
		GROUP BY sensor_id
		ORDER BY sensor_id`

	err := r.db.GetDB().SelectContext(ctx, &stats, query, args...)
	if err != nil {
		return nil, errors.NewStorageError("failed to aggregate readings", err)
	}
	return stats, nil
}

func (r *ReadingRepo) TimeBuckets(ctx context.Context, filter models.BucketFilter) ([]models.TimeBucket, error) {
	buckets := []models.TimeBucket{}
	// time_bucket aligns bucket boundaries to a fixed epoch, so the
	// same width yields the same boundaries whatever the window is.
	args := []interface{}{filter.Width.Interval(), filter.Since}
	query := `
		SELECT
			time_bucket($1::interval, time) AS bucket,
			sensor_id,
			AVG(temperature) AS avg_temperature,
			AVG(humidity) AS avg_humidity,
			COUNT(*) AS readings
		FROM sensor_data
		WHERE time >= $2`
	if filter.SensorID != nil {
		query += ` AND sensor_id = $3`
		args = append(args, *filter.SensorID)
	}
	query += `
		GROUP BY bucket, sensor_id
		ORDER BY bucket ASC, sensor_id`

	err := r.db.GetDB().SelectContext(ctx, &buckets, query, args...)
	if err != nil {
		return nil, errors.NewStorageError("failed to bucket readings", err)
	}
	return buckets, nil
}

func (r *ReadingRepo) DeleteOne(ctx context.Context, t time.Time, sensorID int64) (bool, error) {
	query := `DELETE FROM sensor_data WHERE time = $1 AND sensor_id = $2`

	result, err := r.db.GetDB().ExecContext(ctx, query, t, sensorID)
	if err != nil {
		return false, errors.NewStorageError("failed to delete reading", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewStorageError("failed to get rows affected", err)
	}
	return rows > 0, nil
}

func (r *ReadingRepo) DeleteBySensor(ctx context.Context, sensorID int64) (int64, error) {
	query := `DELETE FROM sensor_data WHERE sensor_id = $1`

	result, err := r.db.GetDB().ExecContext(ctx, query, sensorID)
	if err != nil {
		return 0, errors.NewStorageError("failed to delete sensor readings", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewStorageError("failed to get rows affected", err)
	}

	nuts.L.Infof("[TimescaleDB] Deleted %d readings for sensor %d", rows, sensorID)
	return rows, nil
}

func (r *ReadingRepo) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return errors.NewStorageError("store unreachable", err)
	}
	return nil
}
