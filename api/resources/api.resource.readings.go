// FilePath: api/resources/api.resource.readings.go
package resources

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/sensegrid/hub/internal/errors"
	"github.com/sensegrid/hub/internal/ingest"
	"github.com/sensegrid/hub/internal/models"
	"github.com/sensegrid/hub/internal/query"
	nuts "github.com/vaudience/go-nuts"
)

// queryDecoder maps query strings onto the typed parameter structs.
// Unknown keys are ignored, matching the tolerance of the body shapes.
var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// ReadingHandlers encapsulates the reading-related HTTP handlers
type ReadingHandlers struct {
	pipeline *ingest.Pipeline
	engine   *query.Engine
}

// @Summary List readings
// @Description List readings within a time window, most recent first
// @Tags readings
// @Produce json
// @Param sensor_id query int false "Filter to one sensor"
// @Param hours query number false "Window size in hours (default 24)"
// @Param limit query int false "Maximum rows (default 100)"
// @Success 200 {object} listEnvelope
// @Failure 400 {object} errors.APIError
// @Router /api/sensors [get]
func (h *ReadingHandlers) List(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var q models.ListQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}

	readings, err := h.engine.ListRange(r.Context(), q)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, listEnvelope{Data: readings, Count: len(readings)})
}

// @Summary List readings for one sensor
// @Description List readings for a specific sensor within a time window
// @Tags readings
// @Produce json
// @Param sensor_id path int true "Sensor ID"
// @Param hours query number false "Window size in hours (default 24)"
// @Param limit query int false "Maximum rows (default 100)"
// @Success 200 {object} listEnvelope
// @Failure 400 {object} errors.APIError
// @Router /api/sensors/{sensor_id} [get]
func (h *ReadingHandlers) ListBySensor(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	sensorID, ok := sensorIDVar(w, r, requestID)
	if !ok {
		return
	}

	var q models.ListQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}

	readings, err := h.engine.ListBySensor(r.Context(), sensorID, q)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, listEnvelope{Data: readings, Count: len(readings)})
}

// @Summary Ingest a reading
// @Description Ingest one reading; an existing (time, sensor_id) row is merged
// @Tags readings
// @Accept json
// @Produce json
// @Param reading body models.ReadingInput true "Reading"
// @Success 201 {object} models.Reading
// @Failure 400 {object} errors.APIError
// @Router /api/sensors [post]
func (h *ReadingHandlers) Create(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var input models.ReadingInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	reading, err := h.pipeline.Ingest(r.Context(), input)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusCreated, reading)
}

// @Summary Bulk ingest readings
// @Description Ingest a list of readings; items are validated independently and failures never abort the batch
// @Tags readings
// @Accept json
// @Produce json
// @Param readings body []models.ReadingInput true "Readings"
// @Success 201 {object} ingest.BulkResult
// @Failure 400 {object} errors.APIError
// @Router /api/sensors/bulk [post]
func (h *ReadingHandlers) CreateBulk(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var items []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		respondWithError(w, errors.NewValidationError("expected a list of sensor data", err).WithRequestID(requestID))
		return
	}

	result, err := h.pipeline.IngestBulk(r.Context(), items)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

// @Summary Merge-update a reading
// @Description Update the reading identified by time and sensor_id; omitted fields keep their stored values
// @Tags readings
// @Accept json
// @Produce json
// @Param reading body models.ReadingInput true "Reading with time and sensor_id"
// @Success 200 {object} models.Reading
// @Failure 400 {object} errors.APIError
// @Router /api/sensors [put]
func (h *ReadingHandlers) Update(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var input models.ReadingInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}
	if input.Time == nil || input.SensorID == nil {
		respondWithError(w, errors.NewValidationError("time and sensor_id are required to identify the record", nil).WithRequestID(requestID))
		return
	}

	reading, err := h.pipeline.Ingest(r.Context(), input)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, reading)
}

// @Summary Delete one reading
// @Description Delete the reading matching time and sensor_id exactly; deleting an absent key reports deleted=false
// @Tags readings
// @Produce json
// @Param time query string true "Reading timestamp (ISO-8601 with offset)"
// @Param sensor_id query int true "Sensor ID"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} errors.APIError
// @Router /api/sensors [delete]
func (h *ReadingHandlers) DeleteOne(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var q models.DeleteQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}
	if q.Time == nil || q.SensorID == nil {
		respondWithError(w, errors.NewValidationError("time and sensor_id query parameters are required", nil).WithRequestID(requestID))
		return
	}
	t, err := models.ParseTimestamp(*q.Time)
	if err != nil {
		respondWithError(w, errors.NewValidationError("time must be an ISO-8601 timestamp with a UTC offset", err).WithRequestID(requestID))
		return
	}

	deleted, derr := h.pipeline.Delete(r.Context(), t, *q.SensorID)
	if derr != nil {
		respondWithError(w, errors.AsAPIError(derr).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// @Summary Purge a sensor
// @Description Delete all readings for a sensor and report how many were removed
// @Tags readings
// @Produce json
// @Param sensor_id path int true "Sensor ID"
// @Success 200 {object} map[string]int64
// @Router /api/sensors/{sensor_id} [delete]
func (h *ReadingHandlers) DeleteBySensor(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	sensorID, ok := sensorIDVar(w, r, requestID)
	if !ok {
		return
	}

	count, err := h.pipeline.DeleteBySensor(r.Context(), sensorID)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int64{"deleted_count": count})
}

// @Summary Aggregated statistics
// @Description Per-sensor statistics over a time window; null measurements are excluded from aggregates
// @Tags readings
// @Produce json
// @Param sensor_id query int false "Filter to one sensor"
// @Param hours query number false "Window size in hours (default 24)"
// @Success 200 {object} listEnvelope
// @Failure 400 {object} errors.APIError
// @Router /api/sensors/stats [get]
func (h *ReadingHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var q models.StatsQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}

	stats, err := h.engine.Stats(r.Context(), q)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, listEnvelope{Data: stats, Count: len(stats)})
}

// @Summary Time-bucketed aggregation
// @Description Epoch-aligned bucket averages over a time window; buckets without readings are omitted
// @Tags readings
// @Produce json
// @Param bucket query string false "Bucket width, e.g. '15 minutes', '1 hour', '1 day' (default '1 hour')"
// @Param sensor_id query int false "Filter to one sensor"
// @Param hours query number false "Window size in hours (default 24)"
// @Success 200 {object} bucketEnvelope
// @Failure 400 {object} errors.APIError
// @Router /api/sensors/time-bucket [get]
func (h *ReadingHandlers) GetTimeBuckets(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var q models.BucketQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}

	buckets, width, err := h.engine.TimeBuckets(r.Context(), q)
	if err != nil {
		respondWithError(w, errors.AsAPIError(err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, bucketEnvelope{
		Data:       buckets,
		Count:      len(buckets),
		BucketSize: width.String(),
	})
}

// Helper functions and types

// listEnvelope is the success shape of list-style responses.
type listEnvelope struct {
	Data  interface{} `json:"data"`
	Count int         `json:"count"`
}

// bucketEnvelope additionally echoes the normalized bucket width.
type bucketEnvelope struct {
	Data       interface{} `json:"data"`
	Count      int         `json:"count"`
	BucketSize string      `json:"bucket_size"`
}

func sensorIDVar(w http.ResponseWriter, r *http.Request, requestID string) (int64, bool) {
	vars := mux.Vars(r)
	sensorID, err := strconv.ParseInt(vars["sensor_id"], 10, 64)
	if err != nil {
		respondWithError(w, errors.NewValidationError("sensor_id must be an integer", err).WithRequestID(requestID))
		return 0, false
	}
	return sensorID, true
}

func respondWithError(w http.ResponseWriter, err *errors.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
	nuts.L.Errorf("[API] %s", err.Error())
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
