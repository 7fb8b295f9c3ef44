package types

// ------------------------
// HAL configuration (config/hal, retained)
// ------------------------

type HALConfig struct {
	Devices []HALDevice `json:"devices"`
	Pollers []PollSpec  `json:"pollers,omitempty"`
}

// HALDevice names one device instance and its builder.
type HALDevice struct {
	ID     string `json:"id"`     // device id, e.g. "dht0"
	Type   string `json:"type"`   // builder name, e.g. "dht"
	Params any    `json:"params"` // builder-specific, e.g. DHTParams
}

// PollSpec schedules a periodic control verb on one capability.
type PollSpec struct {
	Domain     string `json:"domain"` // defaults to the device's domain
	Kind       Kind   `json:"kind"`
	Name       string `json:"name"`
	Verb       string `json:"verb"`        // empty => "read"
	IntervalMs uint32 `json:"interval_ms"` // >0
	JitterMs   uint16 `json:"jitter_ms,omitempty"`
}

// Payloads of the poll_start / poll_stop control verbs.
type PollStart struct {
	Verb       string `json:"verb"`
	IntervalMs uint32 `json:"interval_ms"`
	JitterMs   uint16 `json:"jitter_ms"` // uniform [0..JitterMs]
}

type PollStop struct {
	Verb string `json:"verb,omitempty"`
}

// ------------------------
// Retained state
// ------------------------

// HALState is published on hal/state. Level is one of "idle", "ready"
// or "stopped".
type HALState struct {
	Level  string `json:"level"`
	Status string `json:"status"`
	TS     int64  `json:"ts_ns"`
}

// Link is the health of one capability.
type Link string

const (
	LinkUp       Link = "up"       // last acquisition was fresh
	LinkDown     Link = "down"     // no acquisition yet
	LinkDegraded Link = "degraded" // last acquisition failed, see Error
)

type CapabilityStatus struct {
	Link  Link   `json:"link"`
	TS    int64  `json:"ts_ns"`
	Error string `json:"error,omitempty"` // errcode value
}

// Info is published once per capability on .../info.
type Info struct {
	SchemaVersion int    `json:"schema_version"`
	Driver        string `json:"driver"`
	Detail        any    `json:"detail,omitempty"` // e.g. SensorInfo
}

// ------------------------
// Control replies
// ------------------------

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
