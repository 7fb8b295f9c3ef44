package core

import (
	"context"
	"testing"
	"time"

	"dhtcode-go/bus"
	"dhtcode-go/errcode"
	"dhtcode-go/types"
)

// fakeDevice answers "read" by emitting one value per call.
type fakeDevice struct {
	id     string
	pub    EventEmitter
	reads  chan struct{}
	closed chan struct{}
	fail   string
}

func (d *fakeDevice) ID() string { return d.id }
func (d *fakeDevice) Capabilities() []CapabilitySpec {
	return []CapabilitySpec{{
		Kind: types.KindTemperature,
		Info: types.Info{SchemaVersion: 1, Driver: "fake"},
	}}
}
func (d *fakeDevice) Init(context.Context) error { return nil }
func (d *fakeDevice) Close() error               { close(d.closed); return nil }
func (d *fakeDevice) Control(a CapAddr, verb string, _ any) (EnqueueResult, error) {
	if verb != "read" {
		return EnqueueResult{Error: errcode.Unsupported}, nil
	}
	select {
	case d.reads <- struct{}{}:
	default:
	}
	if d.fail != "" {
		d.pub.Emit(Event{Addr: a, Err: d.fail, TS: 1})
	} else {
		d.pub.Emit(Event{Addr: a, Payload: types.TemperatureValue{DeciC: 215}, TS: 1})
	}
	return EnqueueResult{OK: true}, nil
}

type fakeBuilder struct{ last *fakeDevice }

func (b *fakeBuilder) Build(_ context.Context, in BuilderInput) (Device, error) {
	d := &fakeDevice{id: in.ID, pub: in.Res.Pub, reads: make(chan struct{}, 16), closed: make(chan struct{})}
	if s, ok := in.Params.(string); ok {
		d.fail = s
	}
	b.last = d
	return d, nil
}

var testBuilder = &fakeBuilder{}

func init() { RegisterBuilder("fake", testBuilder) }

var tempAddr = CapAddr{Domain: "env", Kind: "temperature", Name: "t0"}

func startHAL(t *testing.T) (*bus.Bus, *bus.Connection, context.CancelFunc) {
	t.Helper()
	b := bus.NewBus(16)
	h := NewHAL(b.NewConnection("hal"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := b.NewConnection("test")
	state := c.Subscribe(topicHALState())
	defer c.Unsubscribe(state)
	next(t, state) // idle: subscriptions are in place
	return b, c, cancel
}

func request(t *testing.T, c *bus.Connection, topic bus.Topic, payload any) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, err := c.RequestWait(ctx, c.NewMessage(topic, payload, false))
	if err != nil {
		t.Fatalf("request %v: %v", topic, err)
	}
	return r.Payload
}

func next(t *testing.T, s *bus.Subscription) *bus.Message {
	t.Helper()
	select {
	case m := <-s.Channel():
		return m
	case <-time.After(time.Second):
		t.Fatalf("timeout on %v", s.Topic())
		return nil
	}
}

func configure(c *bus.Connection, params any, pollers ...types.PollSpec) {
	c.Publish(c.NewMessage(topicConfigHAL(), types.HALConfig{
		Devices: []types.HALDevice{{ID: "t0", Type: "fake", Params: params}},
		Pollers: pollers,
	}, true))
}

func TestControlBeforeConfigIsRejected(t *testing.T) {
	_, c, cancel := startHAL(t)
	defer cancel()

	got := request(t, c, CtrlTopic(tempAddr, "read"), nil)
	if r, ok := got.(types.ErrorReply); !ok || r.Error != string(errcode.HALNotReady) {
		t.Fatalf("got %#v", got)
	}
}

func TestConfigPublishesInfoAndStatus(t *testing.T) {
	_, c, cancel := startHAL(t)
	defer cancel()

	state := c.Subscribe(topicHALState())
	configure(c, nil)

	info := next(t, c.Subscribe(capInfo(tempAddr)))
	if in, ok := info.Payload.(types.Info); !ok || in.Driver != "fake" {
		t.Fatalf("info: %#v", info.Payload)
	}
	st := next(t, c.Subscribe(StatusTopic(tempAddr)))
	if s, ok := st.Payload.(types.CapabilityStatus); !ok || s.Link != types.LinkDown {
		t.Fatalf("status: %#v", st.Payload)
	}
	for {
		m := next(t, state)
		if s := m.Payload.(types.HALState); s.Level == "ready" {
			break
		}
	}
}

func TestReadPublishesValueAndStatus(t *testing.T) {
	_, c, cancel := startHAL(t)
	defer cancel()

	configure(c, nil)
	next(t, c.Subscribe(capInfo(tempAddr)))

	values := c.Subscribe(ValueTopic(tempAddr))
	status := c.Subscribe(StatusTopic(tempAddr))
	next(t, status) // retained down

	if r, ok := request(t, c, CtrlTopic(tempAddr, "read"), nil).(types.OKReply); !ok || !r.OK {
		t.Fatalf("read not accepted: %#v", r)
	}
	v := next(t, values)
	if tv, ok := v.Payload.(types.TemperatureValue); !ok || tv.DeciC != 215 {
		t.Fatalf("value: %#v", v.Payload)
	}
	if s := next(t, status).Payload.(types.CapabilityStatus); s.Link != types.LinkUp {
		t.Fatalf("status: %+v", s)
	}
}

func TestReadErrorDegradesStatus(t *testing.T) {
	_, c, cancel := startHAL(t)
	defer cancel()

	configure(c, "timeout")
	next(t, c.Subscribe(capInfo(tempAddr)))
	status := c.Subscribe(StatusTopic(tempAddr))
	next(t, status)
	values := c.Subscribe(ValueTopic(tempAddr))

	request(t, c, CtrlTopic(tempAddr, "read"), nil)
	s := next(t, status).Payload.(types.CapabilityStatus)
	if s.Link != types.LinkDegraded || s.Error != "timeout" {
		t.Fatalf("status: %+v", s)
	}
	select {
	case m := <-values.Channel():
		t.Fatalf("value published on error: %#v", m.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestControlErrors(t *testing.T) {
	_, c, cancel := startHAL(t)
	defer cancel()

	configure(c, nil)
	next(t, c.Subscribe(capInfo(tempAddr)))

	cases := []struct {
		topic   bus.Topic
		payload any
		want    errcode.Code
	}{
		{CtrlTopic(CapAddr{"env", "temperature", "nope"}, "read"), nil, errcode.UnknownCapability},
		{CtrlTopic(tempAddr, "calibrate"), nil, errcode.Unsupported},
		{CtrlTopic(tempAddr, "poll_start"), types.PollStart{}, errcode.InvalidParams},
		{CtrlTopic(tempAddr, "poll_start"), "every second", errcode.InvalidPayload},
	}
	for _, tc := range cases {
		got := request(t, c, tc.topic, tc.payload)
		if r, ok := got.(types.ErrorReply); !ok || r.Error != string(tc.want) {
			t.Errorf("%v: got %#v want %q", tc.topic, got, tc.want)
		}
	}
}

func TestPollStartStop(t *testing.T) {
	_, c, cancel := startHAL(t)
	defer cancel()

	configure(c, nil)
	next(t, c.Subscribe(capInfo(tempAddr)))
	dev := testBuilder.last

	if _, ok := request(t, c, CtrlTopic(tempAddr, "poll_start"), types.PollStart{IntervalMs: 10}).(types.OKReply); !ok {
		t.Fatal("poll_start rejected")
	}
	for i := 0; i < 3; i++ {
		select {
		case <-dev.reads:
		case <-time.After(time.Second):
			t.Fatalf("poll %d did not fire", i)
		}
	}

	if _, ok := request(t, c, CtrlTopic(tempAddr, "poll_stop"), &types.PollStop{}).(types.OKReply); !ok {
		t.Fatal("poll_stop rejected")
	}
	time.Sleep(30 * time.Millisecond)
	for len(dev.reads) > 0 {
		<-dev.reads
	}
	select {
	case <-dev.reads:
		t.Fatal("poll fired after stop")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestConfigPollers(t *testing.T) {
	_, c, cancel := startHAL(t)
	defer cancel()

	configure(c, nil, types.PollSpec{Domain: "env", Kind: types.KindTemperature, Name: "t0", IntervalMs: 10})
	next(t, c.Subscribe(capInfo(tempAddr)))

	values := c.Subscribe(ValueTopic(tempAddr))
	next(t, values)
	next(t, values)
}

func TestStopClosesDevices(t *testing.T) {
	_, c, cancel := startHAL(t)

	state := c.Subscribe(topicHALState())
	configure(c, nil)
	next(t, c.Subscribe(capInfo(tempAddr)))
	dev := testBuilder.last

	cancel()
	for {
		if s := next(t, state).Payload.(types.HALState); s.Level == "stopped" {
			break
		}
	}
	select {
	case <-dev.closed:
	case <-time.After(time.Second):
		t.Fatal("device not closed on stop")
	}
}
