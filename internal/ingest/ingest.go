// FilePath: internal/ingest/ingest.go

// Package ingest implements the path from an inbound reading payload to
// a durable row: per-field validation, time defaulting, and the
// merge-upsert keyed by (time, sensor_id).
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sensegrid/hub/internal/errors"
	"github.com/sensegrid/hub/internal/models"
	"github.com/sensegrid/hub/internal/repository"
	nuts "github.com/vaudience/go-nuts"
)

// Events emitted by the pipeline, for monitoring hooks.
const (
	EventIngested = "reading.ingested"
	EventRejected = "reading.rejected"
	EventEmpty    = "reading.empty"
	EventDeleted  = "reading.deleted"
	EventPurged   = "sensor.purged"
)

// Pipeline validates and persists readings.
type Pipeline struct {
	readings repository.ReadingRepository
	events   *nuts.EventEmitter
	now      func() time.Time
}

// New creates an ingest pipeline over the given store.
func New(readings repository.ReadingRepository) *Pipeline {
	return &Pipeline{
		readings: readings,
		events:   nuts.NewEventEmitter(),
		now:      time.Now,
	}
}

// ItemError reports a rejected item of a bulk ingest by position.
type ItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BulkResult is the partial-success summary of a bulk ingest.
type BulkResult struct {
	Accepted int         `json:"accepted"`
	Rejected []ItemError `json:"rejected"`
}

// Ingest validates a single reading and merges it into the store.
// Fields absent from the input leave previously stored values intact.
func (p *Pipeline) Ingest(ctx context.Context, input models.ReadingInput) (models.Reading, error) {
	reading, apiErr := p.validate(input)
	if apiErr != nil {
		p.events.Emit(EventRejected, apiErr.Message)
		return models.Reading{}, apiErr
	}

	stored, err := p.readings.Upsert(ctx, reading)
	if err != nil {
		return models.Reading{}, err
	}

	p.events.Emit(EventIngested, fmt.Sprintf("%d", stored.SensorID))
	return stored, nil
}

// IngestBulk applies Ingest independently per item. One item's failure
// never aborts the others; the summary reports per-item errors by
// index.
func (p *Pipeline) IngestBulk(ctx context.Context, items []json.RawMessage) (BulkResult, error) {
	result := BulkResult{Rejected: []ItemError{}}

	for i, raw := range items {
		var input models.ReadingInput
		if err := json.Unmarshal(raw, &input); err != nil {
			result.Rejected = append(result.Rejected, ItemError{Index: i, Error: "invalid reading object"})
			continue
		}
		if _, err := p.Ingest(ctx, input); err != nil {
			result.Rejected = append(result.Rejected, ItemError{Index: i, Error: errors.AsAPIError(err).Message})
			continue
		}
		result.Accepted++
	}
	return result, nil
}

// IngestPayload decodes one transport payload and ingests it. Used by
// the MQTT subscriber, where a malformed message is the publisher's
// fault and must not take the subscription down.
func (p *Pipeline) IngestPayload(ctx context.Context, payload []byte) (models.Reading, error) {
	var input models.ReadingInput
	if err := json.Unmarshal(payload, &input); err != nil {
		p.events.Emit(EventRejected, "invalid JSON payload")
		return models.Reading{}, errors.NewValidationError("invalid JSON payload", err)
	}
	return p.Ingest(ctx, input)
}

// Delete removes exactly one reading by key. Deleting an absent key is
// a normal outcome (deleted=false), making the operation idempotent.
func (p *Pipeline) Delete(ctx context.Context, t time.Time, sensorID int64) (bool, error) {
	deleted, err := p.readings.DeleteOne(ctx, t, sensorID)
	if err != nil {
		return false, err
	}
	if deleted {
		p.events.Emit(EventDeleted, fmt.Sprintf("%d", sensorID))
	}
	return deleted, nil
}

// DeleteBySensor purges all readings for one sensor.
func (p *Pipeline) DeleteBySensor(ctx context.Context, sensorID int64) (int64, error) {
	count, err := p.readings.DeleteBySensor(ctx, sensorID)
	if err != nil {
		return 0, err
	}
	p.events.Emit(EventPurged, fmt.Sprintf("%d", sensorID))
	return count, nil
}

// Events exposes the pipeline's event emitter for monitoring hooks.
func (p *Pipeline) Events() *nuts.EventEmitter {
	return p.events
}

// validate applies the ingest rules in order: sensor_id required and
// integral; measurements numeric when present; time ISO-8601 with an
// explicit offset when present, else the instant of acceptance. A
// reading with neither measurement is accepted (permissive default)
// but flagged for operators.
func (p *Pipeline) validate(input models.ReadingInput) (models.Reading, *errors.APIError) {
	var reading models.Reading

	if input.SensorID == nil || !input.SensorID.Valid {
		return reading, errors.NewValidationError("sensor_id required", nil)
	}
	reading.SensorID = input.SensorID.Value

	if input.Temperature != nil {
		if !input.Temperature.Valid {
			return reading, errors.NewValidationError("temperature must be numeric", nil)
		}
		v := input.Temperature.Value
		reading.Temperature = &v
	}
	if input.Humidity != nil {
		if !input.Humidity.Valid {
			return reading, errors.NewValidationError("humidity must be numeric", nil)
		}
		v := input.Humidity.Value
		reading.Humidity = &v
	}

	if input.Time != nil && *input.Time != "" {
		t, err := models.ParseTimestamp(*input.Time)
		if err != nil {
			return reading, errors.NewValidationError("time must be an ISO-8601 timestamp with a UTC offset", err)
		}
		reading.Time = t
	} else {
		// Timestamped at acceptance, not at transport receipt.
		reading.Time = p.now().UTC()
	}

	if reading.Temperature == nil && reading.Humidity == nil {
		nuts.L.Warnf("[Ingest] Reading for sensor %d carries no measurements", reading.SensorID)
		p.events.Emit(EventEmpty, fmt.Sprintf("%d", reading.SensorID))
	}

	return reading, nil
}
