// FilePath: internal/transport/mqtt/client.go

// Package mqtt connects the hub to the pub/sub transport: a long-lived
// session that feeds inbound readings to the ingest pipeline and,
// optionally, serves the query API over request/response topics.
package mqtt

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/sensegrid/hub/internal/config"
	nuts "github.com/vaudience/go-nuts"
)

// Handler processes one inbound message on a routed topic filter.
type Handler func(ctx context.Context, topic string, payload []byte)

// Client owns the broker session. Routes are registered before Start;
// the session re-subscribes them on every (re)connection, so a broker
// restart does not silently drop subscriptions.
type Client struct {
	cfg config.MQTTConfig
	cm  *autopaho.ConnectionManager

	mu     sync.RWMutex
	routes map[string]Handler
}

func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:    cfg,
		routes: make(map[string]Handler),
	}
}

// Route registers a handler for a topic filter. Must be called before
// Start.
func (c *Client) Route(filter string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[filter] = h
}

// Start opens the session and blocks until the first connection is up
// or ctx expires. The session keeps reconnecting in the background
// until Stop.
func (c *Client) Start(ctx context.Context) error {
	u, err := url.Parse(c.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("invalid broker url %q: %w", c.cfg.BrokerURL, err)
	}

	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: true,
		OnConnectionUp:                c.onConnectionUp,
		OnConnectError: func(err error) {
			nuts.L.Errorf("[MQTT] Connection error: %v", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.onPublishReceived,
			},
			OnClientError: func(err error) {
				nuts.L.Errorf("[MQTT] Client error: %v", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				nuts.L.Warnf("[MQTT] Server disconnect, reason code %d", d.ReasonCode)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return fmt.Errorf("failed to create MQTT connection: %w", err)
	}
	c.cm = cm

	connectCtx := ctx
	if c.cfg.ConnTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnTimeout)
		defer cancel()
	}
	if err := cm.AwaitConnection(connectCtx); err != nil {
		return fmt.Errorf("failed to connect to broker %s: %w", c.cfg.BrokerURL, err)
	}
	return nil
}

// Publish sends a payload to a topic at the configured QoS.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     c.cfg.QoS,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Stop disconnects from the broker.
func (c *Client) Stop(ctx context.Context) error {
	if c.cm == nil {
		return nil
	}
	return c.cm.Disconnect(ctx)
}

func (c *Client) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.mu.RLock()
	filters := make([]string, 0, len(c.routes))
	for filter := range c.routes {
		filters = append(filters, filter)
	}
	c.mu.RUnlock()

	subs := make([]paho.SubscribeOptions, 0, len(filters))
	for _, filter := range filters {
		subs = append(subs, paho.SubscribeOptions{Topic: filter, QoS: c.cfg.QoS})
	}
	if len(subs) == 0 {
		return
	}

	if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{Subscriptions: subs}); err != nil {
		nuts.L.Errorf("[MQTT] Failed to subscribe: %v", err)
		return
	}
	nuts.L.Infof("[MQTT] Connected to %s, subscribed to %v", c.cfg.BrokerURL, filters)
}

func (c *Client) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for filter, handler := range c.routes {
		if matchTopic(filter, pr.Packet.Topic) {
			handler(context.Background(), pr.Packet.Topic, pr.Packet.Payload)
			return true, nil
		}
	}
	return false, nil
}

// matchTopic reports whether an MQTT topic filter matches a concrete
// topic, honoring the + and trailing # wildcards.
func matchTopic(filter, topic string) bool {
	fparts := strings.Split(filter, "/")
	tparts := strings.Split(topic, "/")

	for i, fp := range fparts {
		if fp == "#" {
			return i == len(fparts)-1
		}
		if i >= len(tparts) {
			return false
		}
		if fp != "+" && fp != tparts[i] {
			return false
		}
	}
	return len(fparts) == len(tparts)
}
