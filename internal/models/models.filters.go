// FilePath: internal/models/models.filters.go
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReadingFilter narrows a reading listing to a time window and,
// optionally, one sensor. Limit of 0 means no cap.
type ReadingFilter struct {
	SensorID *int64
	Since    time.Time
	Limit    int
}

// StatsFilter narrows a statistics query.
type StatsFilter struct {
	SensorID *int64
	Since    time.Time
}

// BucketFilter narrows a time-bucket aggregation query.
type BucketFilter struct {
	SensorID *int64
	Since    time.Time
	Width    BucketWidth
}

// BucketWidth is a validated bucket width: a positive count of a
// supported unit. The accepted grammar is the TimescaleDB interval
// style used by the API ("15 minutes", "1 hour", "1 day"); a bare unit
// means a count of one.
type BucketWidth struct {
	Count int
	Unit  string // "minute", "hour" or "day"
}

var bucketUnits = map[string]time.Duration{
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseBucketWidth validates a bucket width expression.
func ParseBucketWidth(s string) (BucketWidth, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	var w BucketWidth
	switch len(fields) {
	case 1:
		w.Count = 1
		w.Unit = strings.TrimSuffix(fields[0], "s")
	case 2:
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return w, fmt.Errorf("invalid bucket count %q", fields[0])
		}
		w.Count = n
		w.Unit = strings.TrimSuffix(fields[1], "s")
	default:
		return w, fmt.Errorf("invalid bucket width %q", s)
	}
	if w.Count < 1 {
		return w, fmt.Errorf("bucket count must be positive, got %d", w.Count)
	}
	if _, ok := bucketUnits[w.Unit]; !ok {
		return w, fmt.Errorf("unsupported bucket unit %q", w.Unit)
	}
	return w, nil
}

// Duration returns the bucket width as a time.Duration.
func (w BucketWidth) Duration() time.Duration {
	return time.Duration(w.Count) * bucketUnits[w.Unit]
}

// Interval renders the width as a Postgres interval expression.
func (w BucketWidth) Interval() string {
	return fmt.Sprintf("%d %s", w.Count, w.Unit)
}

func (w BucketWidth) String() string {
	if w.Count == 1 {
		return "1 " + w.Unit
	}
	return fmt.Sprintf("%d %ss", w.Count, w.Unit)
}

// Query-string shapes decoded by the HTTP boundary (gorilla/schema).
// Pointers distinguish "absent" from "zero" so defaults apply only to
// genuinely missing parameters.

// ListQuery carries the parameters of the range-listing endpoints.
type ListQuery struct {
	SensorID *int64   `schema:"sensor_id"`
	Hours    *float64 `schema:"hours"`
	Limit    *int     `schema:"limit"`
}

// StatsQuery carries the parameters of the stats endpoint.
type StatsQuery struct {
	SensorID *int64   `schema:"sensor_id"`
	Hours    *float64 `schema:"hours"`
}

// BucketQuery carries the parameters of the time-bucket endpoint.
type BucketQuery struct {
	Bucket   *string  `schema:"bucket"`
	SensorID *int64   `schema:"sensor_id"`
	Hours    *float64 `schema:"hours"`
}

// DeleteQuery identifies one reading by its exact key.
type DeleteQuery struct {
	Time     *string `schema:"time"`
	SensorID *int64  `schema:"sensor_id"`
}
