// services/hal/platform/sim.go
package platform

import (
	"sync"

	"dhtcode-go/drivers/dht"
	"dhtcode-go/drivers/dht/dhtsim"
	"dhtcode-go/errcode"
	"dhtcode-go/services/hal/internal/core"
)

// Sim backs GPIOs with simulated DHT sensors sharing one virtual clock.
// Only pins with an attached sensor can be claimed.
type Sim struct {
	clk    *dhtsim.Clock
	claims claimTable

	mu      sync.Mutex
	sensors map[int]*dhtsim.Sensor
}

func NewSim() *Sim {
	return &Sim{clk: dhtsim.NewClock(), sensors: make(map[int]*dhtsim.Sensor)}
}

// Attach places a simulated sensor of variant v on pin n and returns it
// for frame and fault control. Attaching twice returns the same sensor.
func (s *Sim) Attach(n int, v dht.Variant) *dhtsim.Sensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss, ok := s.sensors[n]; ok {
		return ss
	}
	ss := dhtsim.New(s.clk, v)
	s.sensors[n] = ss
	return ss
}

// Clock exposes the shared virtual clock.
func (s *Sim) Clock() *dhtsim.Clock { return s.clk }

// ---- core.ResourceRegistry implementation ----

func (s *Sim) ClaimGPIO(devID string, n int) (core.GPIOHandle, error) {
	s.mu.Lock()
	ss, ok := s.sensors[n]
	s.mu.Unlock()
	if !ok {
		return nil, errcode.UnknownPin
	}
	if err := s.claims.claim(devID, n); err != nil {
		return nil, err
	}
	return &simPin{s: ss, n: n}, nil
}

func (s *Sim) ReleaseGPIO(devID string, n int) { s.claims.release(devID, n) }

func (s *Sim) Timing() core.Timing { return s.clk }

// Concrete GPIO handle
type simPin struct {
	s *dhtsim.Sensor
	n int
}

func (p *simPin) Number() int                        { return p.n }
func (p *simPin) ConfigureOutput(initial bool) error { return p.s.ConfigureOutput(initial) }
func (p *simPin) Set(b bool)                         { p.s.Set(b) }
func (p *simPin) Get() bool                          { return p.s.Get() }
func (p *simPin) Toggle()                            { p.s.Set(!p.s.Get()) }

func (p *simPin) ConfigureInput(pull core.Pull) error {
	switch pull {
	case core.PullUp:
		return p.s.ConfigureInput(dht.PullUp)
	case core.PullDown:
		return p.s.ConfigureInput(dht.PullDown)
	default:
		return p.s.ConfigureInput(dht.PullNone)
	}
}
