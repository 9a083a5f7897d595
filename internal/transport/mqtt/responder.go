// FilePath: internal/transport/mqtt/responder.go
package mqtt

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sensegrid/hub/internal/errors"
	"github.com/sensegrid/hub/internal/ingest"
	"github.com/sensegrid/hub/internal/models"
	"github.com/sensegrid/hub/internal/query"
	nuts "github.com/vaudience/go-nuts"
)

// Request/response topic pairs served by the responder. Clients
// publish parameters to sensors/<op>/request and receive the result on
// sensors/<op>/response.
var rpcOps = []string{
	"health",
	"get_all",
	"get_by_id",
	"create",
	"create_bulk",
	"update",
	"delete",
	"delete_by_id",
	"stats",
	"time_bucket",
}

// Responder serves the ingest and query API over MQTT request/response
// topics, the transport twin of the HTTP boundary.
type Responder struct {
	client   *Client
	pipeline *ingest.Pipeline
	engine   *query.Engine
}

// rpcRequest is the parameter shape accepted on every request topic;
// each operation reads the fields it needs.
type rpcRequest struct {
	SensorID *int64   `json:"sensor_id"`
	Hours    *float64 `json:"hours"`
	Limit    *int     `json:"limit"`
	Bucket   *string  `json:"bucket"`
	Time     *string  `json:"time"`
}

// rpcResponse is the envelope published on every response topic.
type rpcResponse struct {
	StatusCode int         `json:"status_code"`
	Data       interface{} `json:"data"`
}

// NewResponder wires the request topic routes into the client.
func NewResponder(client *Client, pipeline *ingest.Pipeline, engine *query.Engine) *Responder {
	r := &Responder{client: client, pipeline: pipeline, engine: engine}
	for _, op := range rpcOps {
		op := op
		client.Route("sensors/"+op+"/request", func(ctx context.Context, _ string, payload []byte) {
			r.handle(ctx, op, payload)
		})
	}
	return r
}

func (r *Responder) handle(ctx context.Context, op string, payload []byte) {
	data, status := r.dispatch(ctx, op, payload)
	r.respond(ctx, op, data, status)
}

func (r *Responder) dispatch(ctx context.Context, op string, payload []byte) (interface{}, int) {
	switch op {
	case "health":
		if err := r.engine.Ping(ctx); err != nil {
			return map[string]string{"status": "unhealthy", "error": "store unreachable"}, http.StatusServiceUnavailable
		}
		return map[string]string{"status": "healthy", "database": "connected"}, http.StatusOK
	case "create":
		var input models.ReadingInput
		if err := json.Unmarshal(payload, &input); err != nil {
			return errResult(errors.NewValidationError("invalid JSON payload", err))
		}
		reading, err := r.pipeline.Ingest(ctx, input)
		if err != nil {
			return errResult(err)
		}
		return reading, http.StatusCreated
	case "create_bulk":
		var items []json.RawMessage
		if err := json.Unmarshal(payload, &items); err != nil {
			return errResult(errors.NewValidationError("expected a list of sensor data", err))
		}
		result, err := r.pipeline.IngestBulk(ctx, items)
		if err != nil {
			return errResult(err)
		}
		return result, http.StatusCreated
	case "update":
		var input models.ReadingInput
		if err := json.Unmarshal(payload, &input); err != nil {
			return errResult(errors.NewValidationError("invalid JSON payload", err))
		}
		if input.Time == nil || input.SensorID == nil {
			return errResult(errors.NewValidationError("time and sensor_id are required to identify the record", nil))
		}
		reading, err := r.pipeline.Ingest(ctx, input)
		if err != nil {
			return errResult(err)
		}
		return reading, http.StatusOK
	case "delete":
		req, apiErr := decodeRequest(payload)
		if apiErr != nil {
			return errResult(apiErr)
		}
		if req.Time == nil || req.SensorID == nil {
			return errResult(errors.NewValidationError("time and sensor_id are required", nil))
		}
		t, err := models.ParseTimestamp(*req.Time)
		if err != nil {
			return errResult(errors.NewValidationError("time must be an ISO-8601 timestamp with a UTC offset", err))
		}
		deleted, derr := r.pipeline.Delete(ctx, t, *req.SensorID)
		if derr != nil {
			return errResult(derr)
		}
		return map[string]bool{"deleted": deleted}, http.StatusOK
	case "delete_by_id":
		req, apiErr := decodeRequest(payload)
		if apiErr != nil {
			return errResult(apiErr)
		}
		if req.SensorID == nil {
			return errResult(errors.NewValidationError("sensor_id is required", nil))
		}
		count, err := r.pipeline.DeleteBySensor(ctx, *req.SensorID)
		if err != nil {
			return errResult(err)
		}
		return map[string]int64{"deleted_count": count}, http.StatusOK
	case "get_all":
		req, apiErr := decodeRequest(payload)
		if apiErr != nil {
			return errResult(apiErr)
		}
		readings, err := r.engine.ListRange(ctx, models.ListQuery{
			SensorID: req.SensorID, Hours: req.Hours, Limit: req.Limit,
		})
		if err != nil {
			return errResult(err)
		}
		return listEnvelope{Data: readings, Count: len(readings)}, http.StatusOK
	case "get_by_id":
		req, apiErr := decodeRequest(payload)
		if apiErr != nil {
			return errResult(apiErr)
		}
		if req.SensorID == nil {
			return errResult(errors.NewValidationError("sensor_id is required", nil))
		}
		readings, err := r.engine.ListBySensor(ctx, *req.SensorID, models.ListQuery{
			Hours: req.Hours, Limit: req.Limit,
		})
		if err != nil {
			return errResult(err)
		}
		return listEnvelope{Data: readings, Count: len(readings)}, http.StatusOK
	case "stats":
		req, apiErr := decodeRequest(payload)
		if apiErr != nil {
			return errResult(apiErr)
		}
		stats, err := r.engine.Stats(ctx, models.StatsQuery{SensorID: req.SensorID, Hours: req.Hours})
		if err != nil {
			return errResult(err)
		}
		return listEnvelope{Data: stats, Count: len(stats)}, http.StatusOK
	case "time_bucket":
		req, apiErr := decodeRequest(payload)
		if apiErr != nil {
			return errResult(apiErr)
		}
		buckets, width, err := r.engine.TimeBuckets(ctx, models.BucketQuery{
			Bucket: req.Bucket, SensorID: req.SensorID, Hours: req.Hours,
		})
		if err != nil {
			return errResult(err)
		}
		return bucketEnvelope{Data: buckets, Count: len(buckets), BucketSize: width.String()}, http.StatusOK
	}
	return errResult(errors.NewInternalError("unknown operation", nil))
}

func (r *Responder) respond(ctx context.Context, op string, data interface{}, status int) {
	body, err := json.Marshal(rpcResponse{StatusCode: status, Data: data})
	if err != nil {
		nuts.L.Errorf("[Responder] Failed to encode %s response: %v", op, err)
		return
	}
	topic := "sensors/" + op + "/response"
	if err := r.client.Publish(ctx, topic, body); err != nil {
		nuts.L.Errorf("[Responder] Failed to publish to %s: %v", topic, err)
	}
}

type listEnvelope struct {
	Data  interface{} `json:"data"`
	Count int         `json:"count"`
}

type bucketEnvelope struct {
	Data       interface{} `json:"data"`
	Count      int         `json:"count"`
	BucketSize string      `json:"bucket_size"`
}

// decodeRequest parses request parameters; an empty payload means
// defaults for everything.
func decodeRequest(payload []byte) (rpcRequest, *errors.APIError) {
	var req rpcRequest
	if len(payload) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, errors.NewValidationError("invalid JSON payload", err)
	}
	return req, nil
}

func errResult(err error) (interface{}, int) {
	apiErr := errors.AsAPIError(err)
	nuts.L.Warnf("[Responder] %s", apiErr.Error())
	return apiErr, apiErr.Code
}
