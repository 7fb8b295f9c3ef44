package dht

import "fmt"

// Request pulse and settle time after releasing the line, in microseconds.
const (
	requestMicros = 25
	settleMicros  = 55
)

// acquire runs one wake/request/sample cycle and fills d.pulses.
// Everything between the wake pulse and the release runs inside the
// critical section; a scheduler tick in the middle would stretch a phase.
func (d *Device) acquire() error {
	d.pulses = Pulses{}
	wake := d.cfg.Variant.wakeMicros()

	var err error
	d.cfg.Critical.Critical(func() {
		// Wake the sensor.
		if err = d.pin.ConfigureOutput(false); err != nil {
			err = fmt.Errorf("dht: pin output: %w", err)
			return
		}
		d.delay.DelayMicros(wake)

		// Ask for data, then let the sensor drive the line.
		d.pin.Set(true)
		d.delay.DelayMicros(requestMicros)
		if err = d.pin.ConfigureInput(PullUp); err != nil {
			err = fmt.Errorf("dht: pin input: %w", err)
			return
		}
		d.delay.DelayMicros(settleMicros)

		// Readiness handshake (~80us low, ~80us high). Best effort: if it
		// was missed, the data phase fails on its own bounds.
		_, _ = d.waitWhileLevel(false, readinessThreshold)
		_, _ = d.waitWhileLevel(true, readinessThreshold)

		for i := 0; i < pulseSlots; i += 2 {
			d.pulses[i], _ = d.waitWhileLevel(false, lowThreshold)
			d.pulses[i+1], _ = d.waitWhileLevel(true, highThreshold)
		}

		// Release the bus and leave it idle high.
		if err = d.pin.ConfigureOutput(true); err != nil {
			err = fmt.Errorf("dht: pin release: %w", err)
			return
		}
		d.delay.DelayMicros(wake)
	})
	return err
}

// waitWhileLevel spins in 1us steps while the line stays at level.
// It returns the number of steps taken; when that reaches timeout the
// count is still returned alongside ErrTimeout.
func (d *Device) waitWhileLevel(level bool, timeout uint32) (uint32, error) {
	var n uint32
	for n < timeout && d.pin.Get() == level {
		d.delay.DelayMicros(1)
		n++
	}
	if n >= timeout {
		return n, ErrTimeout
	}
	return n, nil
}
