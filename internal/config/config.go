package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"dhtcode-go/drivers/dht"
)

type Config struct {
	AppEnv       string
	LogLevel     slog.Level
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string

	DHTPin             int
	DHTVariant         string
	DHTSimulate        bool
	SensorPollInterval time.Duration
	DeviceStationID    string
}

// minPollInterval is the fastest rate the sensors tolerate; faster polls
// only return the cached reading.
const minPollInterval = 2 * time.Second

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "dht-gateway"
	}

	dhtPinStr := strings.TrimSpace(os.Getenv("DHT_PIN"))
	if dhtPinStr == "" {
		dhtPinStr = "4"
	}
	dhtPin, err := strconv.Atoi(dhtPinStr)
	if err != nil || dhtPin < 0 {
		return Config{}, fmt.Errorf("invalid DHT_PIN %q", dhtPinStr)
	}

	dhtVariant := strings.ToLower(strings.TrimSpace(os.Getenv("DHT_VARIANT")))
	if dhtVariant == "" {
		dhtVariant = "dht22"
	}
	if _, ok := dht.VariantByName(dhtVariant); !ok {
		return Config{}, fmt.Errorf("invalid DHT_VARIANT %q (allowed: dht22, am2302, dht11)", dhtVariant)
	}

	dhtSimulate := false
	if s := strings.TrimSpace(os.Getenv("DHT_SIMULATE")); s != "" {
		dhtSimulate, err = strconv.ParseBool(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DHT_SIMULATE %q: %w", s, err)
		}
	}

	sensorPollIntervalStr := strings.TrimSpace(os.Getenv("SENSOR_POLL_INTERVAL"))
	if sensorPollIntervalStr == "" {
		sensorPollIntervalStr = minPollInterval.String()
	}
	sensorPollInterval, err := time.ParseDuration(sensorPollIntervalStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SENSOR_POLL_INTERVAL %q: %w", sensorPollIntervalStr, err)
	}
	if sensorPollInterval <= 0 {
		return Config{}, fmt.Errorf("SENSOR_POLL_INTERVAL must be positive, got %v", sensorPollInterval)
	}

	deviceStationID := strings.TrimSpace(os.Getenv("DEVICE_STATION_ID"))
	if deviceStationID == "" {
		deviceStationID = "home"
	}

	return Config{
		AppEnv:             appEnv,
		LogLevel:           level,
		MQTTBroker:         mqttBroker,
		MQTTPort:           mqttPort,
		MQTTClientID:       mqttClientID,
		DHTPin:             dhtPin,
		DHTVariant:         dhtVariant,
		DHTSimulate:        dhtSimulate,
		SensorPollInterval: sensorPollInterval,
		DeviceStationID:    deviceStationID,
	}, nil
}

// PollTooFast reports whether the poll interval is below what the sensor
// can refresh.
func (c Config) PollTooFast() bool { return c.SensorPollInterval < minPollInterval }

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
