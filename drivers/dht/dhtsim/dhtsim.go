// Package dhtsim simulates a DHT sensor on a virtual microsecond clock.
//
// Sensor implements dht.Pin and Clock implements dht.Delayer and
// dht.CriticalSection. After the host holds the line low for the wake
// interval and releases it, the sensor plays back the handshake and a
// 40-bit frame with datasheet-typical phase lengths. Time only moves when
// the driver delays, so a full acquisition is deterministic and instant.
package dhtsim

import (
	"sync"
	"time"

	"dhtcode-go/drivers/dht"
)

// Phase lengths in microseconds.
const (
	respondAfter = 20
	readyLow     = 80
	readyHigh    = 78
	bitLow       = 50
	bitHighZero  = 27
	bitHighOne   = 70

	// A stretched bit holds low to the low bound and high well past the high bound.
	stretchedLow  = 55
	stretchedHigh = 100
	stretchedBit  = 7
)

// Fault injects a misbehaviour into the next acquisitions.
type Fault uint8

const (
	FaultNone      Fault = iota
	FaultSilent          // never answers a request
	FaultCorrupt         // sends a wrong checksum byte
	FaultStretched       // one bit with both phases past their bounds
)

// -----------------------------------------------------------------------------
// Clock
// -----------------------------------------------------------------------------

// Clock is a virtual microsecond clock shared by simulated sensors.
// Critical serialises acquisitions the way masking interrupts would.
type Clock struct {
	mu  sync.Mutex
	now uint64

	crit      sync.Mutex
	criticals int
}

func NewClock() *Clock { return &Clock{} }

func (c *Clock) DelayMicros(us uint32) {
	c.mu.Lock()
	c.now += uint64(us)
	c.mu.Unlock()
}

// Now returns the virtual time in microseconds.
func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Critical(fn func()) {
	c.crit.Lock()
	defer c.crit.Unlock()
	c.mu.Lock()
	c.criticals++
	c.mu.Unlock()
	fn()
}

// Criticals returns how many critical sections have been entered.
func (c *Clock) Criticals() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.criticals
}

// -----------------------------------------------------------------------------
// Sensor
// -----------------------------------------------------------------------------

type edge struct {
	at    uint64 // offset from release
	level bool   // level from at onwards
}

// Sensor is one simulated device on its own line.
type Sensor struct {
	clk     *Clock
	minWake uint64

	mu    sync.Mutex
	frame dht.Frame
	fault Fault

	output   bool
	level    bool // level driven by the host while output
	lowSince uint64
	lowFor   uint64 // length of the last completed host low pulse

	wave     []edge
	start    uint64
	playing  bool
	requests int
}

var _ dht.Pin = (*Sensor)(nil)

// New returns an idle sensor of variant v reporting a zero frame.
func New(clk *Clock, v dht.Variant) *Sensor {
	wake := uint64(v.Wake / time.Microsecond)
	return &Sensor{
		clk:     clk,
		minWake: wake * 9 / 10,
		level:   true,
	}
}

// SetFrame sets the frame sent on the next requests. The checksum byte is
// sent as given.
func (s *Sensor) SetFrame(f dht.Frame) {
	s.mu.Lock()
	s.frame = f
	s.mu.Unlock()
}

func (s *Sensor) SetFault(f Fault) {
	s.mu.Lock()
	s.fault = f
	s.mu.Unlock()
}

// Requests returns how many wake/request sequences the sensor answered
// or ignored.
func (s *Sensor) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Sensor) ConfigureOutput(initial bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.output {
		s.output = true
		s.playing = false
		s.level = true // the released line floats high
	}
	s.drive(initial)
	return nil
}

func (s *Sensor) ConfigureInput(_ dht.Pull) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.output {
		return nil
	}
	s.output = false
	if s.lowFor < s.minWake || s.minWake == 0 {
		return nil
	}
	s.lowFor = 0
	s.requests++
	if s.fault == FaultSilent {
		return nil
	}
	s.wave = s.waveform()
	s.start = s.clk.Now()
	s.playing = true
	return nil
}

func (s *Sensor) Set(high bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.output {
		s.drive(high)
	}
}

func (s *Sensor) Get() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.output {
		return s.level
	}
	if !s.playing {
		return true // pull-up
	}
	t := s.clk.Now() - s.start
	level := true
	for _, e := range s.wave {
		if e.at > t {
			break
		}
		level = e.level
	}
	return level
}

// caller holds lock
func (s *Sensor) drive(high bool) {
	now := s.clk.Now()
	switch {
	case !high && s.level:
		s.lowSince = now
	case high && !s.level:
		s.lowFor = now - s.lowSince
	}
	s.level = high
}

// caller holds lock
func (s *Sensor) waveform() []edge {
	f := s.frame
	if s.fault == FaultCorrupt {
		f[4] ^= 0xFF
	}
	w := make([]edge, 0, 2*40+4)
	t := uint64(respondAfter)
	w = append(w, edge{at: t, level: false})
	t += readyLow
	w = append(w, edge{at: t, level: true})
	t += readyHigh
	for i := 0; i < 40; i++ {
		low, high := uint64(bitLow), uint64(bitHighZero)
		if f[i/8]&(0x80>>(i%8)) != 0 {
			high = bitHighOne
		}
		if s.fault == FaultStretched && i == stretchedBit {
			low, high = stretchedLow, stretchedHigh
		}
		w = append(w, edge{at: t, level: false})
		t += low
		w = append(w, edge{at: t, level: true})
		t += high
	}
	// Trailing low, then the line floats back high.
	w = append(w, edge{at: t, level: false})
	t += bitLow
	w = append(w, edge{at: t, level: true})
	return w
}

// -----------------------------------------------------------------------------
// Frame builders
// -----------------------------------------------------------------------------

// FrameDHT22 encodes tenths of %RH and tenths of °C the way a DHT22 sends
// them, with a valid checksum.
func FrameDHT22(deciRH uint16, deciC int16) dht.Frame {
	var f dht.Frame
	f[0] = byte(deciRH >> 8)
	f[1] = byte(deciRH)
	t := int32(deciC)
	if t < 0 {
		t = -t
		f[2] = 0x80
	}
	f[2] |= byte(t>>8) & 0x7F
	f[3] = byte(t)
	f[4] = f.Sum()
	return f
}

// FrameDHT11 encodes non-negative tenths as two summed bytes, with a
// valid checksum. Humidity saturates at 510 and temperature at 382.
func FrameDHT11(deciRH, deciC uint16) dht.Frame {
	var f dht.Frame
	f[0], f[1] = split(deciRH, 255)
	f[2], f[3] = split(deciC, 127) // keep the sign bit clear
	f[4] = f.Sum()
	return f
}

func split(v uint16, hiMax uint16) (byte, byte) {
	if v > hiMax+255 {
		v = hiMax + 255
	}
	if v <= hiMax {
		return byte(v), 0
	}
	return byte(hiMax), byte(v - hiMax)
}
