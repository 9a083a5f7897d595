// FilePath: internal/ingest/ingest_test.go
package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sensegrid/hub/internal/errors"
	"github.com/sensegrid/hub/internal/models"
	"github.com/sensegrid/hub/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

func newTestPipeline() (*Pipeline, *memory.ReadingRepo) {
	repo := memory.NewReadingRepository()
	return New(repo), repo
}

func decodeInput(t *testing.T, raw string) models.ReadingInput {
	t.Helper()
	var input models.ReadingInput
	require.NoError(t, json.Unmarshal([]byte(raw), &input))
	return input
}

func TestIngestStoresReading(t *testing.T) {
	p, repo := newTestPipeline()

	reading, err := p.Ingest(context.Background(), decodeInput(t,
		`{"sensor_id": 1, "temperature": 21.5, "humidity": 48, "time": "2026-08-28T10:00:00Z"}`))
	require.NoError(t, err)
	require.Equal(t, int64(1), reading.SensorID)
	require.Equal(t, 21.5, *reading.Temperature)
	require.Equal(t, 48.0, *reading.Humidity)
	require.Equal(t, 1, repo.Len())
}

func TestIngestDefaultsTimeToNow(t *testing.T) {
	p, _ := newTestPipeline()
	fixed := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	reading, err := p.Ingest(context.Background(), decodeInput(t, `{"sensor_id": 1, "temperature": 20}`))
	require.NoError(t, err)
	require.True(t, reading.Time.Equal(fixed))
}

func TestIngestMergesOnConflict(t *testing.T) {
	p, repo := newTestPipeline()
	ctx := context.Background()

	_, err := p.Ingest(ctx, decodeInput(t,
		`{"sensor_id": 1, "temperature": 21.5, "time": "2026-08-28T10:00:00Z"}`))
	require.NoError(t, err)

	merged, err := p.Ingest(ctx, decodeInput(t,
		`{"sensor_id": 1, "humidity": 48, "time": "2026-08-28T10:00:00Z"}`))
	require.NoError(t, err)

	// Single row with both measurements present.
	require.Equal(t, 1, repo.Len())
	require.NotNil(t, merged.Temperature)
	require.Equal(t, 21.5, *merged.Temperature)
	require.NotNil(t, merged.Humidity)
	require.Equal(t, 48.0, *merged.Humidity)
}

func TestIngestOverwritesPresentFields(t *testing.T) {
	p, _ := newTestPipeline()
	ctx := context.Background()

	_, err := p.Ingest(ctx, decodeInput(t,
		`{"sensor_id": 1, "temperature": 21.5, "time": "2026-08-28T10:00:00Z"}`))
	require.NoError(t, err)

	updated, err := p.Ingest(ctx, decodeInput(t,
		`{"sensor_id": 1, "temperature": 22.0, "time": "2026-08-28T10:00:00Z"}`))
	require.NoError(t, err)
	require.Equal(t, 22.0, *updated.Temperature)
}

func TestIngestRejectsMissingSensorID(t *testing.T) {
	p, repo := newTestPipeline()

	_, err := p.Ingest(context.Background(), decodeInput(t, `{"temperature": 20}`))
	require.Error(t, err)
	require.True(t, errors.IsValidation(err))
	require.Equal(t, 0, repo.Len())
}

func TestIngestRejectsNonNumericMeasurement(t *testing.T) {
	p, _ := newTestPipeline()

	_, err := p.Ingest(context.Background(), decodeInput(t, `{"sensor_id": 1, "temperature": "warm"}`))
	require.Error(t, err)
	require.True(t, errors.IsValidation(err))
}

func TestIngestRejectsTimestampWithoutOffset(t *testing.T) {
	p, _ := newTestPipeline()

	_, err := p.Ingest(context.Background(), decodeInput(t,
		`{"sensor_id": 1, "temperature": 20, "time": "2026-08-28T10:00:00"}`))
	require.Error(t, err)
	require.True(t, errors.IsValidation(err))
}

func TestIngestAcceptsEmptyReading(t *testing.T) {
	p, repo := newTestPipeline()

	reading, err := p.Ingest(context.Background(), decodeInput(t, `{"sensor_id": 1}`))
	require.NoError(t, err)
	require.Nil(t, reading.Temperature)
	require.Nil(t, reading.Humidity)
	require.Equal(t, 1, repo.Len())
}

func TestIngestBulkPartialFailure(t *testing.T) {
	p, repo := newTestPipeline()

	var items []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(`[
		{"sensor_id": 1, "temperature": 20},
		{"temperature": 21},
		{"sensor_id": 2, "humidity": 50}
	]`), &items))

	result, err := p.IngestBulk(context.Background(), items)
	require.NoError(t, err)
	require.Equal(t, 2, result.Accepted)
	require.Len(t, result.Rejected, 1)
	require.Equal(t, 1, result.Rejected[0].Index)
	require.Equal(t, 2, repo.Len())
}

func TestIngestPayloadRejectsMalformedJSON(t *testing.T) {
	p, repo := newTestPipeline()

	_, err := p.IngestPayload(context.Background(), []byte(`{"sensor_id": `))
	require.Error(t, err)
	require.True(t, errors.IsValidation(err))
	require.Equal(t, 0, repo.Len())

	_, err = p.IngestPayload(context.Background(), []byte(`{"sensor_id": 1, "temperature": 20}`))
	require.NoError(t, err)
	require.Equal(t, 1, repo.Len())
}

func TestDeleteIsIdempotent(t *testing.T) {
	p, _ := newTestPipeline()
	ctx := context.Background()
	ts := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	_, err := p.Ingest(ctx, decodeInput(t,
		`{"sensor_id": 1, "temperature": 20, "time": "2026-08-28T10:00:00Z"}`))
	require.NoError(t, err)

	deleted, err := p.Delete(ctx, ts, 1)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = p.Delete(ctx, ts, 1)
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestDeleteBySensorReportsCount(t *testing.T) {
	p, repo := newTestPipeline()
	ctx := context.Background()

	_, err := p.Ingest(ctx, decodeInput(t, `{"sensor_id": 1, "temperature": 20, "time": "2026-08-28T10:00:00Z"}`))
	require.NoError(t, err)
	_, err = p.Ingest(ctx, decodeInput(t, `{"sensor_id": 1, "temperature": 21, "time": "2026-08-28T11:00:00Z"}`))
	require.NoError(t, err)
	_, err = p.Ingest(ctx, decodeInput(t, `{"sensor_id": 2, "temperature": 22, "time": "2026-08-28T11:00:00Z"}`))
	require.NoError(t, err)

	count, err := p.DeleteBySensor(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
	require.Equal(t, 1, repo.Len())

	count, err = p.DeleteBySensor(ctx, 99)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func TestPipelineEvents(t *testing.T) {
	p, _ := newTestPipeline()

	got := make(chan string, 4)
	p.Events().On(EventIngested, "test_ingested", func(id string) {
		got <- id
	})

	_, err := p.Ingest(context.Background(), decodeInput(t, `{"sensor_id": 7, "temperature": 20}`))
	require.NoError(t, err)

	select {
	case id := <-got:
		require.Equal(t, "7", id)
	case <-time.After(time.Second):
		t.Fatal("ingested event not emitted")
	}
}
