// bridge/bridge.go
package bridge

import (
	"context"
	"fmt"
	"time"

	"dhtcode-go/bus"
	"dhtcode-go/types"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Publisher carries telemetry off the device (MQTT, a UART line sink, ...).
// PublishTelemetry may block; the bridge calls it from one goroutine.
type Publisher interface {
	PublishTelemetry(ctx context.Context, t Telemetry) error
}

// Config tunes the bridge. The zero value is usable.
type Config struct {
	StationID string
	Domain    string        // capability domain to follow; default "env"
	QueueLen  int           // pending records; oldest dropped when full
	Retries   int           // attempts per record beyond the first
	MinBack   time.Duration // first retry delay
	MaxBack   time.Duration // retry delay cap
}

// Start runs the bridge until ctx is cancelled. It folds HAL temperature and
// humidity values for each sensor name into Telemetry records and hands them
// to pub, reporting uplink health on bridge/state (retained).
func Start(ctx context.Context, conn *bus.Connection, cfg Config, pub Publisher) {
	if cfg.Domain == "" {
		cfg.Domain = types.DomainEnv
	}
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = 8
	}
	if cfg.MinBack <= 0 {
		cfg.MinBack = 250 * time.Millisecond
	}
	if cfg.MaxBack < cfg.MinBack {
		cfg.MaxBack = 5 * time.Second
	}
	s := &Service{
		conn:       conn,
		cfg:        cfg,
		pub:        pub,
		stateTopic: bus.T("bridge", "state"),
		sensors:    map[string]*sensorState{},
		out:        make(chan Telemetry, cfg.QueueLen),
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Telemetry
// -----------------------------------------------------------------------------

// Telemetry is one uplink record for one sensor. Values are nil until the
// sensor has produced them at least once.
type Telemetry struct {
	Station     string   `json:"station_id,omitempty"`
	Sensor      string   `json:"sensor"`
	Temperature *float64 `json:"temperature_c,omitempty"`
	Humidity    *float64 `json:"humidity_rh,omitempty"`
	Link        string   `json:"link"`
	Error       string   `json:"error,omitempty"`
	TS          int64    `json:"ts_ms"`
}

type sensorState struct {
	deciC  int16
	rhx100 uint16
	haveT  bool
	haveH  bool
	freshT bool // value arrived since the last record
	freshH bool
	link   types.Link
	err    string
}

func (st *sensorState) record(station, name string, now time.Time) Telemetry {
	t := Telemetry{
		Station: station,
		Sensor:  name,
		Link:    string(st.link),
		Error:   st.err,
		TS:      now.UnixMilli(),
	}
	if st.haveT {
		v := float64(st.deciC) / 10
		t.Temperature = &v
	}
	if st.haveH {
		v := float64(st.rhx100) / 100
		t.Humidity = &v
	}
	return t
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	cfg        Config
	pub        Publisher
	stateTopic bus.Topic

	sensors map[string]*sensorState
	out     chan Telemetry
}

func (s *Service) run(ctx context.Context) {
	valSub := s.conn.Subscribe(bus.T("hal", "cap", s.cfg.Domain, "+", "+", "value"))
	stSub := s.conn.Subscribe(bus.T("hal", "cap", s.cfg.Domain, "+", "+", "status"))
	defer s.conn.Unsubscribe(valSub)
	defer s.conn.Unsubscribe(stSub)

	s.publishState("idle", "awaiting_values", nil)
	go s.uplink(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-valSub.Channel():
			if !ok {
				return
			}
			s.handleValue(m)
		case m, ok := <-stSub.Channel():
			if !ok {
				return
			}
			s.handleStatus(m)
		}
	}
}

func (s *Service) sensor(name string) *sensorState {
	st := s.sensors[name]
	if st == nil {
		st = &sensorState{link: types.LinkDown}
		s.sensors[name] = st
	}
	return st
}

// hal/cap/<domain>/<kind>/<name>/value
func (s *Service) handleValue(m *bus.Message) {
	name, _ := m.Topic.At(4).(string)
	st := s.sensor(name)
	switch v := m.Payload.(type) {
	case types.TemperatureValue:
		st.deciC, st.haveT, st.freshT = v.DeciC, true, true
	case types.HumidityValue:
		st.rhx100, st.haveH, st.freshH = v.RHx100, true, true
	default:
		return
	}
	if st.freshT && st.freshH {
		st.freshT, st.freshH = false, false
		st.link, st.err = types.LinkUp, ""
		s.enqueue(st.record(s.cfg.StationID, name, time.Now()))
	}
}

// Degraded status is forwarded at once with the last known values; the
// two capabilities of a sensor report the same code, so repeats are folded.
func (s *Service) handleStatus(m *bus.Message) {
	cs, ok := m.Payload.(types.CapabilityStatus)
	if !ok || cs.Link != types.LinkDegraded {
		return
	}
	name, _ := m.Topic.At(4).(string)
	st := s.sensor(name)
	if st.link == types.LinkDegraded && st.err == cs.Error {
		return
	}
	st.link, st.err = cs.Link, cs.Error
	st.freshT, st.freshH = false, false
	s.enqueue(st.record(s.cfg.StationID, name, time.Now()))
}

func (s *Service) enqueue(t Telemetry) {
	select {
	case s.out <- t:
		return
	default:
	}
	// drop oldest if queue full
	select {
	case <-s.out:
	default:
	}
	select {
	case s.out <- t:
	default:
	}
}

// -----------------------------------------------------------------------------
// Uplink
// -----------------------------------------------------------------------------

func (s *Service) uplink(ctx context.Context) {
	up := false
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.out:
			err := s.deliver(ctx, t)
			switch {
			case err == nil && !up:
				up = true
				s.publishState("up", "publishing", nil)
			case err != nil && ctx.Err() == nil:
				up = false
				s.publishState("degraded", "record_dropped", err)
			}
		}
	}
}

func (s *Service) deliver(ctx context.Context, t Telemetry) error {
	backoff := backoffSeq(s.cfg.MinBack, s.cfg.MaxBack)
	var err error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if err = s.pub.PublishTelemetry(ctx, t); err == nil {
			return nil
		}
		if attempt == s.cfg.Retries {
			break
		}
		delay := backoff()
		s.publishState("degraded", "publish_failed_retrying", fmt.Errorf("%w (retry in %s)", err, delay))
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
	}
	return err
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "idle"
		"status": status, // short machine string
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, payload, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	var cur = min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
