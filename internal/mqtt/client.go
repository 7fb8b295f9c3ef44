package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dhtcode-go/internal/config"
	"dhtcode-go/services/bridge"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Client struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
	healthy   *bool // last published health, nil before the first

	stopCh   chan struct{}
	stopOnce sync.Once
}

type StationHealth struct {
	StationID string    `json:"station_id"`
	LastSeen  time.Time `json:"last_seen"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
}

var _ bridge.Publisher = (*Client)(nil)

func NewClient(cfg config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// The broker marks the station unhealthy if we vanish.
	will, err := encodeHealth(StationHealth{StationID: cfg.DeviceStationID, Healthy: false, Error: "offline"})
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(HealthTopic(cfg.DeviceStationID), will, 1, true)

	// Callbacks keep internal state accurate
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// Connect establishes connection to the MQTT broker.
// This function waits for the initial connection, and respects ctx and Disconnect().
func (c *Client) Connect(ctx context.Context) error {
	// Fail fast if already stopped.
	select {
	case <-c.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	// Fast path.
	if c.IsConnected() {
		return nil
	}

	// Start connect attempt. With ConnectRetry(true), it may keep retrying internally.
	token := c.client.Connect()

	// Wait in a ctx/stop-aware loop.
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// OnConnectHandler sets connected=true.
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

// TelemetryTopic is stations/<station>/telemetry.
func TelemetryTopic(stationID string) string {
	return fmt.Sprintf("stations/%s/telemetry", stationID)
}

// HealthTopic is stations/<station>/health (retained).
func HealthTopic(stationID string) string {
	return fmt.Sprintf("stations/%s/health", stationID)
}

// PublishTelemetry publishes one bridge record to the station topic and
// refreshes station health when the sensor link changes.
func (c *Client) PublishTelemetry(ctx context.Context, t bridge.Telemetry) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	if t.Station == "" {
		t.Station = c.cfg.DeviceStationID
	}
	if t.TS == 0 {
		t.TS = time.Now().UnixMilli()
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	topic := TelemetryTopic(t.Station)
	if err := c.publish(ctx, topic, false, data); err != nil {
		c.logger.Error("failed to publish telemetry", "topic", topic, "error", err)
		return fmt.Errorf("publish telemetry: %w", err)
	}
	c.logger.Debug("published telemetry", "topic", topic, "sensor", t.Sensor, "link", t.Link)

	healthy := t.Link == "up"
	if c.healthy == nil || *c.healthy != healthy {
		h := StationHealth{StationID: t.Station, Healthy: healthy, Error: t.Error}
		if err := c.PublishStationHealth(ctx, h); err != nil {
			return err
		}
		c.healthy = &healthy
	}
	return nil
}

// PublishStationHealth publishes station health/last-seen state.
func (c *Client) PublishStationHealth(ctx context.Context, health StationHealth) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	if health.LastSeen.IsZero() {
		health.LastSeen = time.Now()
	}

	data, err := encodeHealth(health)
	if err != nil {
		return err
	}

	topic := HealthTopic(health.StationID)
	if err := c.publish(ctx, topic, true, data); err != nil {
		c.logger.Error("failed to publish station health", "topic", topic, "error", err)
		return fmt.Errorf("publish health: %w", err)
	}

	c.logger.Debug("published station health",
		"topic", topic,
		"station_id", health.StationID,
		"healthy", health.Healthy,
	)
	return nil
}

func (c *Client) publish(ctx context.Context, topic string, retained bool, data []byte) error {
	token := c.client.Publish(topic, 1, retained, data)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
}

func encodeHealth(h StationHealth) ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("marshal health: %w", err)
	}
	return data, nil
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client and closes the MQTT connection.
// Idempotent and safe to call multiple times.
// After Disconnect, Connect() will return "client stopped".
func (c *Client) Disconnect() {
	// Signal shutdown once (unblocks any Connect loops).
	c.stopOnce.Do(func() { close(c.stopCh) })

	// Paho Disconnect quiesces in-flight work for the given ms.
	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
