// services/hal/platform/rp2.go
//go:build rp2040 || rp2350

package platform

import (
	"machine"
	"runtime/interrupt"
	"time"

	"dhtcode-go/errcode"
	"dhtcode-go/services/hal/internal/core"
)

const rp2MaxGPIO = 29

// RP2 hands out machine.Pin handles for GP0..GP29.
type RP2 struct {
	claims claimTable
	timing rp2Timing
	cache  map[int]*rp2Pin // pin -> handle
}

func NewRP2() *RP2 {
	return &RP2{cache: make(map[int]*rp2Pin)}
}

// ---- core.ResourceRegistry implementation ----

func (r *RP2) ClaimGPIO(devID string, n int) (core.GPIOHandle, error) {
	if n < 0 || n > rp2MaxGPIO {
		return nil, errcode.UnknownPin
	}
	if err := r.claims.claim(devID, n); err != nil {
		return nil, err
	}
	r.claims.mu.Lock()
	defer r.claims.mu.Unlock()
	h, ok := r.cache[n]
	if !ok {
		h = &rp2Pin{p: machine.Pin(n), n: n}
		r.cache[n] = h
	}
	return h, nil
}

func (r *RP2) ReleaseGPIO(devID string, n int) { r.claims.release(devID, n) }

func (r *RP2) Timing() core.Timing { return &r.timing }

// Concrete GPIO handle
type rp2Pin struct {
	p machine.Pin
	n int
}

func (r *rp2Pin) Number() int { return r.n }
func (r *rp2Pin) ConfigureInput(pull core.Pull) error {
	var mode machine.PinMode
	switch pull {
	case core.PullUp:
		mode = machine.PinInputPullup
	case core.PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}
func (r *rp2Pin) ConfigureOutput(initial bool) error {
	r.p.Set(initial)
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return nil
}
func (r *rp2Pin) Set(b bool) { r.p.Set(b) }
func (r *rp2Pin) Get() bool  { return r.p.Get() }
func (r *rp2Pin) Toggle()    { r.p.Set(!r.p.Get()) }

// rp2Timing reads the free-running microsecond timer, which keeps counting
// with interrupts masked.
type rp2Timing struct{}

func (rp2Timing) DelayMicros(us uint32) {
	d := time.Duration(us) * time.Microsecond
	start := time.Now()
	for time.Since(start) < d {
	}
}

func (rp2Timing) Critical(fn func()) {
	st := interrupt.Disable()
	defer interrupt.Restore(st)
	fn()
}
