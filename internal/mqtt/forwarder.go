package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/quill/internal/config"
	"github.com/nugget/quill/internal/events"
)

// eventBuffer is the bus subscription depth. Events beyond it are
// dropped by the bus rather than stalling the turn loop.
const eventBuffer = 256

// Forwarder subscribes to the event bus and republishes every event to
// an MQTT broker.
type Forwarder struct {
	cfg      config.MQTTConfig
	clientID string
	bus      *events.Bus
	logger   *slog.Logger
	cm       *autopaho.ConnectionManager
}

// New creates a Forwarder but does not connect. Call [Forwarder.Start]
// to begin forwarding. clientID is normally built with [ClientID].
func New(cfg config.MQTTConfig, clientID string, bus *events.Bus, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		cfg:      cfg,
		clientID: clientID,
		bus:      bus,
		logger:   logger.With("component", "mqtt"),
	}
}

// Start connects to the broker and forwards bus events until ctx is
// cancelled. Connection failures after the first attempt are retried in
// the background by autopaho.
func (f *Forwarder) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(f.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := f.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: f.cfg.Username,
		ConnectPassword: []byte(f.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			f.logger.Info("mqtt connected to broker", "broker", f.cfg.Broker)
			f.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			f.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: f.clientID,
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	f.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		f.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	ch := f.bus.Subscribe(eventBuffer)
	defer f.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			f.forward(ctx, e)
		}
	}
}

// Stop publishes "offline" to the availability topic and disconnects.
func (f *Forwarder) Stop(ctx context.Context) error {
	if f.cm == nil {
		return nil
	}
	f.publishAvailability(ctx, f.cm, "offline")
	return f.cm.Disconnect(ctx)
}

func (f *Forwarder) forward(ctx context.Context, e events.Event) {
	payload, err := eventPayload(e)
	if err != nil {
		f.logger.Debug("mqtt event encode failed", "kind", e.Kind, "error", err)
		return
	}
	topic := f.eventTopic(e)
	if _, err := f.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     0,
	}); err != nil {
		f.logger.Debug("mqtt event publish failed", "topic", topic, "error", err)
	}
}

func (f *Forwarder) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   f.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		f.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		f.logger.Info("mqtt availability published", "status", status)
	}
}

// --- Topic helpers ---

func (f *Forwarder) baseTopic() string {
	return strings.TrimSuffix(f.cfg.TopicPrefix, "/")
}

func (f *Forwarder) availabilityTopic() string {
	return f.baseTopic() + "/availability"
}

func (f *Forwarder) eventTopic(e events.Event) string {
	source := e.Source
	if source == "" {
		source = "unknown"
	}
	return f.baseTopic() + "/" + source + "/" + e.Kind
}

func eventPayload(e events.Event) ([]byte, error) {
	return json.Marshal(e)
}
