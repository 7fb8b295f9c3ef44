// Package dht provides a driver for the DHT11/DHT22/AM2302 family of
// humidity/temperature sensors on a single bidirectional GPIO line.
//
// One Read performs a full acquisition:
//
//	wake (low) -> request (high) -> release -> handshake -> 40 bits -> release
//
// Each bit is sampled as a pair of busy-wait loop counts (low phase, high
// phase); the pair is classified by comparing the two, so the thresholds stay
// anchored to the sampling loop rather than to a wall clock.
//
// The driver keeps the last good reading. When an acquisition fails, or
// decodes to an implausible humidity, Read returns that cached reading
// instead; an error only reaches the caller while nothing has been cached.
//
// Hardware access goes through Pin, Delayer and CriticalSection so the same
// driver runs on an MCU, on a Linux GPIO line, or against a simulated sensor.
package dht

import (
	"errors"
	"math"

	"tinygo.org/x/drivers"
)

// Errors returned by the driver.
var (
	ErrTimeout     = errors.New("dht: timeout")
	ErrChecksum    = errors.New("dht: checksum mismatch")
	ErrInvalidData = errors.New("dht: invalid data")
)

// maxHumidity is the plausibility bound for a decoded frame.
const maxHumidity = 100.0

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Variant defaults to DHT22 if Humidity/Temperature are unset.
	Variant Variant
	// Critical defaults to running the acquisition inline.
	Critical CriticalSection
}

// Reading is one humidity/temperature pair in %RH and °C, tenths precision.
type Reading struct {
	Humidity    float32
	Temperature float32
}

// DeciRelHumidity returns tenths of %RH.
func (r Reading) DeciRelHumidity() int32 {
	return int32(math.Round(float64(r.Humidity) * 10))
}

// DeciCelsius returns tenths of °C.
func (r Reading) DeciCelsius() int32 {
	return int32(math.Round(float64(r.Temperature) * 10))
}

// Device wraps the data line of one sensor.
// It is not safe for concurrent use; the line cannot carry two acquisitions.
type Device struct {
	pin   Pin
	delay Delayer
	cfg   Config

	pulses Pulses // reused across reads

	last    Reading
	hasLast bool
	lastErr error // outcome of the most recent acquisition

	cur Reading // set by Update
}

var _ drivers.Sensor = (*Device)(nil)

// New creates a driver bound to pin. It does not touch the line; call
// Configure before the first Read.
func New(pin Pin, delay Delayer) *Device {
	return &Device{
		pin:   pin,
		delay: delay,
		cfg:   Config{Variant: DHT22, Critical: inline{}},
	}
}

// Configure applies cfg and parks the line high so the sensor sees an idle bus.
func (d *Device) Configure(cfgs ...Config) error {
	if len(cfgs) > 0 {
		c := cfgs[0]
		if c.Variant.Humidity == nil || c.Variant.Temperature == nil {
			c.Variant = DHT22
		}
		if c.Critical == nil {
			c.Critical = inline{}
		}
		d.cfg = c
	}
	return d.pin.ConfigureOutput(true)
}

// Variant returns the active sensor variant.
func (d *Device) Variant() Variant { return d.cfg.Variant }

// Read performs one acquisition and applies the fallback policy:
//   - a checksum-valid frame with humidity <= 100 is cached and returned;
//   - a valid frame with humidity > 100 is discarded (ErrInvalidData);
//   - any failure returns the cached reading, or the error if there is none.
func (d *Device) Read() (Reading, error) {
	r, err := d.readFresh()
	d.lastErr = err
	if err == nil {
		d.last = r
		d.hasLast = true
		return r, nil
	}
	if d.hasLast {
		return d.last, nil
	}
	return Reading{}, err
}

func (d *Device) readFresh() (Reading, error) {
	if err := d.acquire(); err != nil {
		return Reading{}, err
	}
	r, err := decode(&d.pulses, d.cfg.Variant)
	if err != nil {
		return Reading{}, err
	}
	if r.Humidity > maxHumidity {
		return Reading{}, ErrInvalidData
	}
	return r, nil
}

// Last returns the cached reading, if any.
func (d *Device) Last() (Reading, bool) { return d.last, d.hasLast }

// Err returns the error of the most recent acquisition, even when Read
// masked it with the cached reading. It is nil after a fresh reading.
func (d *Device) Err() error { return d.lastErr }

// Pulses returns a copy of the counts sampled by the most recent acquisition.
func (d *Device) Pulses() Pulses { return d.pulses }

// Update implements drivers.Sensor. Temperature and humidity come from the
// same frame, so either flag triggers one Read.
func (d *Device) Update(which drivers.Measurement) error {
	if which&(drivers.Temperature|drivers.Humidity) == 0 {
		return nil
	}
	r, err := d.Read()
	if err != nil {
		return err
	}
	d.cur = r
	return nil
}

// Temperature returns the value stored by Update in milli-°C.
func (d *Device) Temperature() int32 { return d.cur.DeciCelsius() * 100 }

// Humidity returns the value stored by Update in hundredths of %RH.
func (d *Device) Humidity() int32 { return d.cur.DeciRelHumidity() * 10 }
