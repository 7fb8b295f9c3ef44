package dht

// Pull selects the pull resistor used while the line is an input.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Pin is the bidirectional data line the sensor is wired to.
// The driver owns the pin exclusively for its lifetime.
type Pin interface {
	ConfigureOutput(initial bool) error
	ConfigureInput(pull Pull) error
	Set(high bool)
	Get() bool
}

// Delayer blocks the caller for a number of microseconds.
// Implementations should busy-wait; the sampling loop counts its own
// iterations against it.
type Delayer interface {
	DelayMicros(us uint32)
}

// CriticalSection runs fn with interrupts (or preemption) suppressed.
type CriticalSection interface {
	Critical(fn func())
}

// inline runs fn directly. Used when no critical section is configured.
type inline struct{}

func (inline) Critical(fn func()) { fn() }
