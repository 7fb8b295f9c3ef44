package dht

// Sampling bounds, in delay-loop iterations (one per microsecond).
const (
	readinessThreshold = 80
	lowThreshold       = 55
	highThreshold      = 75
)

const (
	frameBits  = 40
	pulseSlots = 2 * frameBits
)

// Frame is one transmission: humidity high/low, temperature high/low, checksum.
type Frame [5]byte

// Sum returns the checksum the sensor should have sent for the data bytes.
func (f Frame) Sum() byte {
	return f[0] + f[1] + f[2] + f[3]
}

// Valid reports whether the checksum byte matches the data bytes.
func (f Frame) Valid() bool { return f[4] == f.Sum() }

// Pulses holds the low and high phase counts of each bit, in transmission order.
type Pulses [pulseSlots]uint32

// Frame packs the pulse counts into bytes, MSB first. A bit is 1 when its
// high phase outlasted its low phase. A bit whose phases both ran into their
// bounds means the sensor stopped answering and the whole frame is rejected.
func (p *Pulses) Frame() (Frame, error) {
	var f Frame
	for i := 0; i < frameBits; i++ {
		lo, hi := p[2*i], p[2*i+1]
		if lo >= lowThreshold && hi >= highThreshold {
			return Frame{}, ErrTimeout
		}
		f[i/8] <<= 1
		if hi > lo {
			f[i/8] |= 1
		}
	}
	return f, nil
}

// decode turns a sampled frame into a reading using the variant's formulas.
func decode(p *Pulses, v Variant) (Reading, error) {
	f, err := p.Frame()
	if err != nil {
		return Reading{}, err
	}
	if !f.Valid() {
		return Reading{}, ErrChecksum
	}
	return Reading{
		Humidity:    v.Humidity(f),
		Temperature: v.Temperature(f),
	}, nil
}
