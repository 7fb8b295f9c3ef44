package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"dhtcode-go/bus"
	"dhtcode-go/drivers/dht"
	"dhtcode-go/drivers/dht/dhtsim"
	"dhtcode-go/internal/config"
	"dhtcode-go/internal/mqtt"
	"dhtcode-go/services/bridge"
	cfgsvc "dhtcode-go/services/config"
	"dhtcode-go/services/hal"
	"dhtcode-go/services/hal/platform"
	"dhtcode-go/services/heartbeat"
	"dhtcode-go/types"
)

// SensorID is the HAL device id, and capability name, of the gateway's sensor.
const SensorID = "dht0"

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("initializing gateway",
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"mqtt_client_id", cfg.MQTTClientID,
		"dht_pin", cfg.DHTPin,
		"dht_variant", cfg.DHTVariant,
		"simulate", cfg.DHTSimulate,
	)
	if cfg.PollTooFast() {
		slog.Warn("poll interval below sensor refresh; expect cached readings",
			"interval", cfg.SensorPollInterval)
	}

	reg, err := resources(ctx, cfg)
	if err != nil {
		return err
	}

	// Initialize MQTT client
	mqttClient, err := mqtt.NewClient(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect()
	go func() {
		// Connect to MQTT broker; paho keeps retrying until ctx ends.
		if err := mqttClient.Connect(ctx); err != nil {
			slog.Error("mqtt connect failed", "error", err)
		}
	}()

	b := bus.NewBus(32)
	go hal.Run(ctx, b.NewConnection("hal"), reg)
	go bridge.Start(ctx, b.NewConnection("bridge"), bridge.Config{
		StationID: cfg.DeviceStationID,
		Retries:   2,
	}, mqttClient)
	go monitor(ctx, b.NewConnection("monitor"))
	hb := &heartbeat.Service{Interval: time.Minute}
	if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		return err
	}

	cfgsvc.NewConfigService().Publish(b.NewConnection("config"), map[string]any{
		"hal": HALConfig(cfg),
	})

	<-ctx.Done()

	slog.Info("gateway shutting down")
	return nil
}

// HALConfig is the HAL configuration for the gateway's single sensor.
func HALConfig(cfg config.Config) types.HALConfig {
	return types.HALConfig{
		Devices: []types.HALDevice{{
			ID:     SensorID,
			Type:   "dht",
			Params: types.DHTParams{Pin: cfg.DHTPin, Variant: cfg.DHTVariant},
		}},
		Pollers: []types.PollSpec{{
			Domain:     types.DomainEnv,
			Kind:       types.KindTemperature,
			Name:       SensorID,
			Verb:       "read",
			IntervalMs: uint32(cfg.SensorPollInterval / time.Millisecond),
		}},
	}
}

func resources(ctx context.Context, cfg config.Config) (hal.ResourceRegistry, error) {
	if !cfg.DHTSimulate {
		reg, err := platform.NewPeriph()
		if err != nil {
			return nil, fmt.Errorf("gpio: %w", err)
		}
		return reg, nil
	}
	v, _ := dht.VariantByName(cfg.DHTVariant)
	sim := platform.NewSim()
	go drift(ctx, sim.Attach(cfg.DHTPin, v), v, cfg.SensorPollInterval)
	slog.Info("using simulated sensor", "pin", cfg.DHTPin)
	return sim, nil
}

// drift moves the simulated climate in small random steps.
func drift(ctx context.Context, s *dhtsim.Sensor, v dht.Variant, every time.Duration) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	deciRH, deciC := 450, 215
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if v.Name == dht.DHT11.Name {
			s.SetFrame(dhtsim.FrameDHT11(uint16(deciRH), uint16(deciC)))
		} else {
			s.SetFrame(dhtsim.FrameDHT22(uint16(deciRH), int16(deciC)))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		deciRH = min(max(deciRH+rng.Intn(11)-5, 200), 900)
		deciC = min(max(deciC+rng.Intn(5)-2, 0), 400)
	}
}

// monitor logs sensor readings and service state changes.
func monitor(ctx context.Context, conn *bus.Connection) {
	values := conn.Subscribe(bus.T("hal", "cap", types.DomainEnv, "+", "+", "value"))
	status := conn.Subscribe(bus.T("hal", "cap", types.DomainEnv, "+", "+", "status"))
	state := conn.Subscribe(bus.T("+", "state"))
	beats := conn.Subscribe(bus.T("heartbeat"))
	defer conn.Disconnect()

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-values.Channel():
			switch v := m.Payload.(type) {
			case types.TemperatureValue:
				slog.Debug("temperature", "sensor", m.Topic.At(4), "celsius", float64(v.DeciC)/10)
			case types.HumidityValue:
				slog.Debug("humidity", "sensor", m.Topic.At(4), "rh", float64(v.RHx100)/100)
			}
		case m := <-status.Channel():
			if st, ok := m.Payload.(types.CapabilityStatus); ok && st.Link == types.LinkDegraded {
				slog.Warn("sensor degraded", "capability", m.Topic.At(3), "sensor", m.Topic.At(4), "error", st.Error)
			}
		case m := <-beats.Channel():
			if hb, ok := m.Payload.(types.Heartbeat); ok {
				slog.Debug("heartbeat", "seq", hb.Seq, "uptime_ms", hb.UptimeMs)
			}
		case m := <-state.Channel():
			slog.Info("service state", "service", m.Topic.At(0), "state", m.Payload)
		}
	}
}
