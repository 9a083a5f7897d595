// FilePath: internal/repository/memory/memory.go

// Package memory provides an in-process ReadingRepository that mirrors
// the TimescaleDB repository's semantics (merge-upsert, window
// filtering, null-excluded aggregates, epoch-aligned buckets). It backs
// the pipeline, query-engine and HTTP tests so they run without a live
// store; the service itself never uses it.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sensegrid/hub/internal/models"
)

type key struct {
	unixNano int64
	sensorID int64
}

type ReadingRepo struct {
	mu       sync.RWMutex
	readings map[key]models.Reading
}

func NewReadingRepository() *ReadingRepo {
	return &ReadingRepo{readings: make(map[key]models.Reading)}
}

func (r *ReadingRepo) Upsert(_ context.Context, reading models.Reading) (models.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{reading.Time.UnixNano(), reading.SensorID}
	stored, ok := r.readings[k]
	if !ok {
		stored = models.Reading{Time: reading.Time, SensorID: reading.SensorID}
	}
	if reading.Temperature != nil {
		v := *reading.Temperature
		stored.Temperature = &v
	}
	if reading.Humidity != nil {
		v := *reading.Humidity
		stored.Humidity = &v
	}
	r.readings[k] = stored
	return stored, nil
}

func (r *ReadingRepo) List(_ context.Context, filter models.ReadingFilter) ([]models.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.Reading{}
	for _, reading := range r.readings {
		if reading.Time.Before(filter.Since) {
			continue
		}
		if filter.SensorID != nil && reading.SensorID != *filter.SensorID {
			continue
		}
		out = append(out, reading)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// measurementAgg reproduces SQL AVG/MIN/MAX: NULLs are skipped and an
// aggregate over zero non-null inputs reports nil, not zero.
type measurementAgg struct {
	sum, min, max float64
	count         int64
}

func (a *measurementAgg) add(v *float64) {
	if v == nil {
		return
	}
	if a.count == 0 || *v < a.min {
		a.min = *v
	}
	if a.count == 0 || *v > a.max {
		a.max = *v
	}
	a.sum += *v
	a.count++
}

func (a *measurementAgg) results() (avg, min, max *float64) {
	if a.count == 0 {
		return nil, nil, nil
	}
	av := a.sum / float64(a.count)
	mn := a.min
	mx := a.max
	return &av, &mn, &mx
}

func (r *ReadingRepo) Stats(_ context.Context, filter models.StatsFilter) ([]models.SensorStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type sensorAgg struct {
		stats models.SensorStats
		temp  measurementAgg
		hum   measurementAgg
	}

	bySensor := map[int64]*sensorAgg{}
	for _, reading := range r.readings {
		if reading.Time.Before(filter.Since) {
			continue
		}
		if filter.SensorID != nil && reading.SensorID != *filter.SensorID {
			continue
		}
		a, ok := bySensor[reading.SensorID]
		if !ok {
			a = &sensorAgg{stats: models.SensorStats{
				SensorID:     reading.SensorID,
				FirstReading: reading.Time,
				LastReading:  reading.Time,
			}}
			bySensor[reading.SensorID] = a
		}
		a.stats.TotalReadings++
		if reading.Time.Before(a.stats.FirstReading) {
			a.stats.FirstReading = reading.Time
		}
		if reading.Time.After(a.stats.LastReading) {
			a.stats.LastReading = reading.Time
		}
		a.temp.add(reading.Temperature)
		a.hum.add(reading.Humidity)
	}

	out := []models.SensorStats{}
	for _, a := range bySensor {
		a.stats.AvgTemperature, a.stats.MinTemperature, a.stats.MaxTemperature = a.temp.results()
		a.stats.AvgHumidity, a.stats.MinHumidity, a.stats.MaxHumidity = a.hum.results()
		out = append(out, a.stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out, nil
}

func (r *ReadingRepo) TimeBuckets(_ context.Context, filter models.BucketFilter) ([]models.TimeBucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	width := filter.Width.Duration()

	type bucketKey struct {
		start    int64
		sensorID int64
	}
	type bucketAgg struct {
		tempSum, humSum     float64
		tempCount, humCount int64
		readings            int64
	}

	aggs := map[bucketKey]*bucketAgg{}
	for _, reading := range r.readings {
		if reading.Time.Before(filter.Since) {
			continue
		}
		if filter.SensorID != nil && reading.SensorID != *filter.SensorID {
			continue
		}
		// Truncate aligns to a fixed epoch in UTC, so boundaries are
		// stable across queries the way time_bucket's are.
		start := reading.Time.UTC().Truncate(width)
		k := bucketKey{start.UnixNano(), reading.SensorID}
		a, ok := aggs[k]
		if !ok {
			a = &bucketAgg{}
			aggs[k] = a
		}
		a.readings++
		if reading.Temperature != nil {
			a.tempSum += *reading.Temperature
			a.tempCount++
		}
		if reading.Humidity != nil {
			a.humSum += *reading.Humidity
			a.humCount++
		}
	}

	out := []models.TimeBucket{}
	for k, a := range aggs {
		b := models.TimeBucket{
			Bucket:   time.Unix(0, k.start).UTC(),
			SensorID: k.sensorID,
			Readings: a.readings,
		}
		if a.tempCount > 0 {
			avg := a.tempSum / float64(a.tempCount)
			b.AvgTemperature = &avg
		}
		if a.humCount > 0 {
			avg := a.humSum / float64(a.humCount)
			b.AvgHumidity = &avg
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Bucket.Equal(out[j].Bucket) {
			return out[i].Bucket.Before(out[j].Bucket)
		}
		return out[i].SensorID < out[j].SensorID
	})
	return out, nil
}

func (r *ReadingRepo) DeleteOne(_ context.Context, t time.Time, sensorID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{t.UnixNano(), sensorID}
	_, ok := r.readings[k]
	delete(r.readings, k)
	return ok, nil
}

func (r *ReadingRepo) DeleteBySensor(_ context.Context, sensorID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for k := range r.readings {
		if k.sensorID == sensorID {
			delete(r.readings, k)
			deleted++
		}
	}
	return deleted, nil
}

func (r *ReadingRepo) Ping(context.Context) error {
	return nil
}

// Len reports how many readings are stored, for test assertions.
func (r *ReadingRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.readings)
}
