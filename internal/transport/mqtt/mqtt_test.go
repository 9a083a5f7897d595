// FilePath: internal/transport/mqtt/mqtt_test.go
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/sensegrid/hub/internal/config"
	"github.com/sensegrid/hub/internal/ingest"
	"github.com/sensegrid/hub/internal/query"
	"github.com/sensegrid/hub/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"sensors/readings/#", "sensors/readings/1", true},
		{"sensors/readings/#", "sensors/readings/1/extra", true},
		{"sensors/readings/#", "sensors/readings", false},
		{"sensors/readings/#", "sensors/health/request", false},
		{"sensors/+/request", "sensors/stats/request", true},
		{"sensors/+/request", "sensors/stats/response", false},
		{"sensors/health/request", "sensors/health/request", true},
		{"sensors/health/request", "sensors/health/request/extra", false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, matchTopic(c.filter, c.topic), "%s vs %s", c.filter, c.topic)
	}
}

func TestEnqueueDropsOldest(t *testing.T) {
	s := &Subscriber{queue: make(chan []byte, 2)}

	s.enqueue([]byte("a"))
	s.enqueue([]byte("b"))
	s.enqueue([]byte("c"))

	require.Equal(t, "b", string(<-s.queue))
	require.Equal(t, "c", string(<-s.queue))
}

// startBroker spins up an in-process broker for integration tests.
func startBroker(t *testing.T, port int) {
	t.Helper()
	broker := mochi.New(nil)
	require.NoError(t, broker.AddHook(&auth.AllowHook{}, nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "tcp",
		Address: fmt.Sprintf("localhost:%d", port),
	})))
	require.NoError(t, broker.Serve())
	t.Cleanup(func() { broker.Close() })
}

func testMQTTConfig(port int) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled:     true,
		BrokerURL:   fmt.Sprintf("tcp://localhost:%d", port),
		ClientID:    "sensegrid-test",
		IngestTopic: "sensors/readings/#",
		QoS:         1,
		KeepAlive:   60,
		QueueSize:   16,
		Workers:     1,
		ConnTimeout: 5 * time.Second,
	}
}

func TestSubscriberIngestsPublishedReadings(t *testing.T) {
	const port = 18831
	startBroker(t, port)

	repo := memory.NewReadingRepository()
	pipeline := ingest.New(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(testMQTTConfig(port))
	sub := NewSubscriber(client, pipeline)
	require.NoError(t, client.Start(ctx))
	defer client.Stop(context.Background())
	sub.Run(ctx)

	// A malformed payload is dropped without taking the subscription down.
	require.NoError(t, client.Publish(ctx, "sensors/readings/1", []byte(`{"sensor_id": `)))
	require.NoError(t, client.Publish(ctx, "sensors/readings/1",
		[]byte(`{"sensor_id": 1, "temperature": 21.5, "humidity": 48}`)))

	require.Eventually(t, func() bool {
		return repo.Len() == 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestResponderHealthRoundTrip(t *testing.T) {
	const port = 18832
	startBroker(t, port)

	repo := memory.NewReadingRepository()
	pipeline := ingest.New(repo)
	engine := query.New(repo, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(testMQTTConfig(port))
	NewResponder(client, pipeline, engine)

	responses := make(chan []byte, 1)
	client.Route("sensors/health/response", func(_ context.Context, _ string, payload []byte) {
		responses <- payload
	})

	require.NoError(t, client.Start(ctx))
	defer client.Stop(context.Background())

	require.NoError(t, client.Publish(ctx, "sensors/health/request", []byte(`{}`)))

	select {
	case payload := <-responses:
		var resp struct {
			StatusCode int             `json:"status_code"`
			Data       json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(payload, &resp))
		require.Equal(t, 200, resp.StatusCode)
	case <-time.After(5 * time.Second):
		t.Fatal("no response on sensors/health/response")
	}
}

func TestResponderCreateAndStats(t *testing.T) {
	const port = 18833
	startBroker(t, port)

	repo := memory.NewReadingRepository()
	pipeline := ingest.New(repo)
	engine := query.New(repo, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(testMQTTConfig(port))
	NewResponder(client, pipeline, engine)

	created := make(chan []byte, 1)
	client.Route("sensors/create/response", func(_ context.Context, _ string, payload []byte) {
		created <- payload
	})

	require.NoError(t, client.Start(ctx))
	defer client.Stop(context.Background())

	require.NoError(t, client.Publish(ctx, "sensors/create/request",
		[]byte(`{"sensor_id": 1, "temperature": 20}`)))

	select {
	case payload := <-created:
		var resp struct {
			StatusCode int `json:"status_code"`
		}
		require.NoError(t, json.Unmarshal(payload, &resp))
		require.Equal(t, 201, resp.StatusCode)
	case <-time.After(5 * time.Second):
		t.Fatal("no response on sensors/create/response")
	}
	require.Equal(t, 1, repo.Len())
}
