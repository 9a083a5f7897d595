// FilePath: internal/models/models.reading.go
package models

import "time"

// Reading represents one sensor observation at one instant.
// The pair (Time, SensorID) uniquely identifies a reading; writes for an
// existing pair merge into the stored row. Either measurement may be
// absent, and a reading with both absent is legal.
type Reading struct {
	Time        time.Time `json:"time" db:"time"`
	SensorID    int64     `json:"sensor_id" db:"sensor_id"`
	Temperature *float64  `json:"temperature" db:"temperature"`
	Humidity    *float64  `json:"humidity" db:"humidity"`
}

// SensorStats represents aggregated statistics for one sensor over a
// time window. Aggregates exclude NULL measurements; an aggregate over
// zero non-null values is nil, not zero.
type SensorStats struct {
	SensorID       int64     `json:"sensor_id" db:"sensor_id"`
	TotalReadings  int64     `json:"total_readings" db:"total_readings"`
	AvgTemperature *float64  `json:"avg_temperature" db:"avg_temperature"`
	MinTemperature *float64  `json:"min_temperature" db:"min_temperature"`
	MaxTemperature *float64  `json:"max_temperature" db:"max_temperature"`
	AvgHumidity    *float64  `json:"avg_humidity" db:"avg_humidity"`
	MinHumidity    *float64  `json:"min_humidity" db:"min_humidity"`
	MaxHumidity    *float64  `json:"max_humidity" db:"max_humidity"`
	FirstReading   time.Time `json:"first_reading" db:"first_reading"`
	LastReading    time.Time `json:"last_reading" db:"last_reading"`
}

// TimeBucket represents an epoch-aligned aggregation interval for one
// sensor. Buckets are computed on demand and never stored; windows
// without readings produce no bucket.
type TimeBucket struct {
	Bucket         time.Time `json:"bucket" db:"bucket"`
	SensorID       int64     `json:"sensor_id" db:"sensor_id"`
	AvgTemperature *float64  `json:"avg_temperature" db:"avg_temperature"`
	AvgHumidity    *float64  `json:"avg_humidity" db:"avg_humidity"`
	Readings       int64     `json:"readings" db:"readings"`
}
