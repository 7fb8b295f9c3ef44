package config

import "dhtcode-go/types"

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: config sections published on config/<section>
// -----------------------------------------------------------------------------

// PicoDHTPin is the GPIO the reference board wires the sensor to.
const PicoDHTPin = 15

var embeddedConfigs = map[string]map[string]any{
	"pico": {
		"hal": types.HALConfig{
			Devices: []types.HALDevice{{
				ID:     "dht0",
				Type:   "dht",
				Params: types.DHTParams{Pin: PicoDHTPin, Variant: "dht22"},
			}},
			Pollers: []types.PollSpec{{
				Domain:     types.DomainEnv,
				Kind:       types.KindTemperature,
				Name:       "dht0",
				Verb:       "read",
				IntervalMs: 2000,
			}},
		},
		"heartbeat": types.HeartbeatConfig{IntervalMs: 30000},
	},
}
