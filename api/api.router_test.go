// FilePath: api/api.router_test.go
package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sensegrid/hub/api"
	"github.com/sensegrid/hub/internal/ingest"
	"github.com/sensegrid/hub/internal/query"
	"github.com/sensegrid/hub/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

func newTestRouter() (*api.Router, *memory.ReadingRepo) {
	repo := memory.NewReadingRepository()
	pipeline := ingest.New(repo)
	engine := query.New(repo, 0)
	return api.NewRouter(pipeline, engine), repo
}

func do(t *testing.T, router *api.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

type listResponse struct {
	Data  []map[string]interface{} `json:"data"`
	Count int                      `json:"count"`
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter()

	rec := do(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	decodeBody(t, rec, &body)
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, "connected", body["database"])
}

func TestCreateAndListReadings(t *testing.T) {
	router, repo := newTestRouter()

	rec := do(t, router, http.MethodPost, "/api/sensors",
		`{"sensor_id": 1, "temperature": 21.5, "humidity": 48, "time": "2026-08-28T10:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]interface{}
	decodeBody(t, rec, &created)
	require.Equal(t, float64(1), created["sensor_id"])
	require.Equal(t, 21.5, created["temperature"])
	require.Equal(t, 1, repo.Len())

	rec = do(t, router, http.MethodGet, "/api/sensors", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list listResponse
	decodeBody(t, rec, &list)
	require.Equal(t, 1, list.Count)
	require.Len(t, list.Data, 1)
}

func TestCreateRejectsMissingSensorID(t *testing.T) {
	router, _ := newTestRouter()

	rec := do(t, router, http.MethodPost, "/api/sensors", `{"temperature": 20}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	require.Equal(t, "sensor_id required", body["error"])
	require.Equal(t, "validation", body["type"])
	require.NotEmpty(t, body["request_id"])
}

func TestCreateCoercesStringFields(t *testing.T) {
	router, _ := newTestRouter()

	rec := do(t, router, http.MethodPost, "/api/sensors",
		`{"sensor_id": "7", "temperature": "19.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]interface{}
	decodeBody(t, rec, &created)
	require.Equal(t, float64(7), created["sensor_id"])
}

func TestListBySensorPath(t *testing.T) {
	router, _ := newTestRouter()

	do(t, router, http.MethodPost, "/api/sensors", `{"sensor_id": 1, "temperature": 20}`)
	do(t, router, http.MethodPost, "/api/sensors", `{"sensor_id": 2, "temperature": 30}`)

	rec := do(t, router, http.MethodGet, "/api/sensors/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list listResponse
	decodeBody(t, rec, &list)
	require.Equal(t, 1, list.Count)
	require.Equal(t, float64(1), list.Data[0]["sensor_id"])
}

func TestListRejectsNonPositiveParams(t *testing.T) {
	router, _ := newTestRouter()

	rec := do(t, router, http.MethodGet, "/api/sensors?hours=-1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/sensors?limit=0", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkEndpointPartialFailure(t *testing.T) {
	router, repo := newTestRouter()

	rec := do(t, router, http.MethodPost, "/api/sensors/bulk", `[
		{"sensor_id": 1, "temperature": 20},
		{"temperature": 21},
		{"sensor_id": 2, "humidity": 50}
	]`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var result struct {
		Accepted int `json:"accepted"`
		Rejected []struct {
			Index int    `json:"index"`
			Error string `json:"error"`
		} `json:"rejected"`
	}
	decodeBody(t, rec, &result)
	require.Equal(t, 2, result.Accepted)
	require.Len(t, result.Rejected, 1)
	require.Equal(t, 1, result.Rejected[0].Index)
	require.Equal(t, 2, repo.Len())
}

func TestBulkEndpointRejectsNonArray(t *testing.T) {
	router, _ := newTestRouter()

	rec := do(t, router, http.MethodPost, "/api/sensors/bulk", `{"sensor_id": 1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	require.Equal(t, "expected a list of sensor data", body["error"])
}

func TestUpdateMergesIntoExistingReading(t *testing.T) {
	router, repo := newTestRouter()

	do(t, router, http.MethodPost, "/api/sensors",
		`{"sensor_id": 1, "temperature": 21.5, "time": "2026-08-28T10:00:00Z"}`)

	rec := do(t, router, http.MethodPut, "/api/sensors",
		`{"sensor_id": 1, "humidity": 48, "time": "2026-08-28T10:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var updated map[string]interface{}
	decodeBody(t, rec, &updated)
	require.Equal(t, 21.5, updated["temperature"])
	require.Equal(t, 48.0, updated["humidity"])
	require.Equal(t, 1, repo.Len())
}

func TestUpdateRequiresTimeAndSensorID(t *testing.T) {
	router, _ := newTestRouter()

	rec := do(t, router, http.MethodPut, "/api/sensors", `{"sensor_id": 1, "humidity": 48}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPut, "/api/sensors", `{"humidity": 48, "time": "2026-08-28T10:00:00Z"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteOneReading(t *testing.T) {
	router, _ := newTestRouter()

	do(t, router, http.MethodPost, "/api/sensors",
		`{"sensor_id": 1, "temperature": 20, "time": "2026-08-28T10:00:00Z"}`)

	rec := do(t, router, http.MethodDelete,
		"/api/sensors?time=2026-08-28T10%3A00%3A00Z&sensor_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	decodeBody(t, rec, &body)
	require.True(t, body["deleted"])

	// Idempotent: deleting the same key again reports deleted=false.
	rec = do(t, router, http.MethodDelete,
		"/api/sensors?time=2026-08-28T10%3A00%3A00Z&sensor_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	require.False(t, body["deleted"])
}

func TestDeleteOneRequiresKey(t *testing.T) {
	router, _ := newTestRouter()

	rec := do(t, router, http.MethodDelete, "/api/sensors?sensor_id=1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteBySensor(t *testing.T) {
	router, repo := newTestRouter()

	do(t, router, http.MethodPost, "/api/sensors", `{"sensor_id": 1, "temperature": 20, "time": "2026-08-28T10:00:00Z"}`)
	do(t, router, http.MethodPost, "/api/sensors", `{"sensor_id": 1, "temperature": 21, "time": "2026-08-28T11:00:00Z"}`)
	do(t, router, http.MethodPost, "/api/sensors", `{"sensor_id": 2, "temperature": 22, "time": "2026-08-28T11:00:00Z"}`)

	rec := do(t, router, http.MethodDelete, "/api/sensors/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int64
	decodeBody(t, rec, &body)
	require.Equal(t, int64(2), body["deleted_count"])
	require.Equal(t, 1, repo.Len())
}

func TestStatsEndpoint(t *testing.T) {
	router, _ := newTestRouter()

	do(t, router, http.MethodPost, "/api/sensors", `{"sensor_id": 1, "temperature": 5}`)
	do(t, router, http.MethodPost, "/api/sensors", `{"sensor_id": 1, "temperature": 15}`)
	do(t, router, http.MethodPost, "/api/sensors", `{"sensor_id": 1, "humidity": 60}`)

	rec := do(t, router, http.MethodGet, "/api/sensors/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list listResponse
	decodeBody(t, rec, &list)
	require.Equal(t, 1, list.Count)

	s := list.Data[0]
	require.Equal(t, float64(3), s["total_readings"])
	require.Equal(t, 10.0, s["avg_temperature"])
	require.Equal(t, 60.0, s["avg_humidity"])
}

func TestTimeBucketEndpoint(t *testing.T) {
	router, _ := newTestRouter()

	do(t, router, http.MethodPost, "/api/sensors", `{"sensor_id": 1, "temperature": 10}`)
	do(t, router, http.MethodPost, "/api/sensors", `{"sensor_id": 1, "temperature": 20}`)

	rec := do(t, router, http.MethodGet, "/api/sensors/time-bucket?bucket=15+minutes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data       []map[string]interface{} `json:"data"`
		Count      int                      `json:"count"`
		BucketSize string                   `json:"bucket_size"`
	}
	decodeBody(t, rec, &body)
	require.Equal(t, "15 minutes", body.BucketSize)
	require.NotEmpty(t, body.Data)
}

func TestTimeBucketRejectsInvalidWidth(t *testing.T) {
	router, _ := newTestRouter()

	rec := do(t, router, http.MethodGet, "/api/sensors/time-bucket?bucket=1%3B+DROP+TABLE", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsPathDoesNotMatchSensorID(t *testing.T) {
	router, _ := newTestRouter()

	// /stats and /time-bucket are literal routes, never sensor ids.
	rec := do(t, router, http.MethodGet, "/api/sensors/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list listResponse
	decodeBody(t, rec, &list)
	require.Equal(t, 0, list.Count)
}
