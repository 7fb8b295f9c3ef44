package types

// ------------------------
// Temperature & humidity
// ------------------------

// SensorInfo is Info.Detail for both env capabilities of a single-wire sensor.
type SensorInfo struct {
	Sensor string `json:"sensor"` // "dht22", "dht11", ...
	Pin    int    `json:"pin"`
}

type TemperatureValue struct {
	// Tenths of °C (e.g. 231 => 23.1°C).
	DeciC int16 `json:"deci_c"`
}

type HumidityValue struct {
	// Hundredths of %RH (0..10000 for 0..100.00%).
	RHx100 uint16 `json:"rh_x100"`
}

// ------------------------
// DHT device params
// ------------------------

// DHTParams configures a "dht" HAL device.
type DHTParams struct {
	Pin     int    `json:"pin"`               // GPIO number
	Variant string `json:"variant,omitempty"` // "dht22" (default), "am2302", "dht11"
	Name    string `json:"name,omitempty"`    // capability name, defaults to the device id
	Domain  string `json:"domain,omitempty"`  // defaults to "env"
}

// ------------------------
// Liveness
// ------------------------

// HeartbeatConfig is the payload of config/heartbeat.
type HeartbeatConfig struct {
	IntervalMs uint32 `json:"interval_ms"`
}

// Heartbeat is published on "heartbeat" once per interval.
type Heartbeat struct {
	Seq      uint32 `json:"seq"`
	UptimeMs int64  `json:"uptime_ms"`
	TS       int64  `json:"ts_ms"`
}
