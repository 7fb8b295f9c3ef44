// services/hal/platform/periph.go
//go:build !(rp2040 || rp2350)

package platform

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"time"

	"dhtcode-go/errcode"
	"dhtcode-go/services/hal/internal/core"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Periph claims Linux GPIOs through periph.io. Pins are looked up by
// number, so 4 resolves to the board's GPIO4.
type Periph struct {
	claims claimTable
	timing periphTiming
}

// NewPeriph loads the periph host drivers.
func NewPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &Periph{}, nil
}

// ---- core.ResourceRegistry implementation ----

func (r *Periph) ClaimGPIO(devID string, n int) (core.GPIOHandle, error) {
	p := gpioreg.ByName(strconv.Itoa(n))
	if p == nil {
		return nil, errcode.UnknownPin
	}
	if err := r.claims.claim(devID, n); err != nil {
		return nil, err
	}
	return &periphPin{p: p, n: n}, nil
}

func (r *Periph) ReleaseGPIO(devID string, n int) { r.claims.release(devID, n) }

func (r *Periph) Timing() core.Timing { return &r.timing }

// Concrete GPIO handle
type periphPin struct {
	p gpio.PinIO
	n int
}

func (h *periphPin) Number() int { return h.n }

func (h *periphPin) ConfigureInput(pull core.Pull) error {
	pp := gpio.Float
	switch pull {
	case core.PullUp:
		pp = gpio.PullUp
	case core.PullDown:
		pp = gpio.PullDown
	}
	return h.p.In(pp, gpio.NoEdge)
}

func (h *periphPin) ConfigureOutput(initial bool) error { return h.p.Out(gpio.Level(initial)) }
func (h *periphPin) Set(b bool)                         { _ = h.p.Out(gpio.Level(b)) }
func (h *periphPin) Get() bool                          { return h.p.Read() == gpio.High }
func (h *periphPin) Toggle()                            { h.Set(!h.Get()) }

// periphTiming busy-waits; the scheduler's sleep granularity is far too
// coarse for single-wire bit timing.
type periphTiming struct{}

func (periphTiming) DelayMicros(us uint32) {
	d := time.Duration(us) * time.Microsecond
	start := time.Now()
	for time.Since(start) < d {
	}
}

// Critical pins the goroutine to its thread and stops the collector for
// the duration of fn.
func (periphTiming) Critical(fn func()) {
	runtime.LockOSThread()
	gcPercent := debug.SetGCPercent(-1)
	defer func() {
		debug.SetGCPercent(gcPercent)
		runtime.UnlockOSThread()
	}()
	fn()
}
