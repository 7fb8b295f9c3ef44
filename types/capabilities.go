package types

// ------------------------
// Capability addressing & kinds
// ------------------------

type Kind string

const (
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
)

// DomainEnv is the default domain for environmental sensors.
const DomainEnv = "env"

// CapabilityAddress identifies a public capability on the bus.
type CapabilityAddress struct {
	Domain string `json:"domain"` // e.g. "env"
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
}
