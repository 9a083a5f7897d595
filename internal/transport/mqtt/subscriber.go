// FilePath: internal/transport/mqtt/subscriber.go
package mqtt

import (
	"context"

	"github.com/sensegrid/hub/internal/errors"
	"github.com/sensegrid/hub/internal/ingest"
	nuts "github.com/vaudience/go-nuts"
)

// Subscriber consumes the wildcarded ingest topic and feeds payloads
// to the pipeline through a bounded queue, decoupling message receipt
// from store writes so a slow store never stalls intake. On overflow
// the oldest queued payload is dropped: for telemetry the most recent
// observation wins, which mirrors the store's last-write-wins stance.
type Subscriber struct {
	pipeline *ingest.Pipeline
	queue    chan []byte
	workers  int
}

// NewSubscriber wires the ingest topic route into the client and
// returns the subscriber. Workers are started separately with Run.
func NewSubscriber(client *Client, pipeline *ingest.Pipeline) *Subscriber {
	s := &Subscriber{
		pipeline: pipeline,
		queue:    make(chan []byte, client.cfg.QueueSize),
		workers:  client.cfg.Workers,
	}
	client.Route(client.cfg.IngestTopic, func(_ context.Context, topic string, payload []byte) {
		s.enqueue(payload)
	})
	return s
}

// Run drains the queue with the configured number of workers until ctx
// is canceled. Per-message failures are logged and never terminate the
// subscription.
func (s *Subscriber) Run(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		go s.worker(ctx, i)
	}
}

func (s *Subscriber) worker(ctx context.Context, id int) {
	nuts.L.Infof("[Subscriber] Worker %d started", id)
	defer nuts.L.Infof("[Subscriber] Worker %d stopped", id)

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-s.queue:
			s.process(ctx, payload)
		}
	}
}

func (s *Subscriber) process(ctx context.Context, payload []byte) {
	reading, err := s.pipeline.IngestPayload(ctx, payload)
	if err != nil {
		if errors.IsValidation(err) {
			nuts.L.Warnf("[Subscriber] Dropping malformed payload: %v", err)
		} else {
			nuts.L.Errorf("[Subscriber] Failed to store reading: %v", err)
		}
		return
	}
	nuts.L.Debugf("[Subscriber] Ingested reading for sensor %d at %s",
		reading.SensorID, reading.Time)
}

// enqueue inserts a payload, evicting the oldest queued payload when
// the queue is full.
func (s *Subscriber) enqueue(payload []byte) {
	for {
		select {
		case s.queue <- payload:
			return
		default:
		}
		select {
		case dropped := <-s.queue:
			nuts.L.Warnf("[Subscriber] Queue full, dropping oldest payload (%d bytes)", len(dropped))
		default:
		}
	}
}
