package heartbeat

import (
	"context"
	"testing"
	"time"

	"dhtcode-go/bus"
	"dhtcode-go/types"
)

func nextBeat(t *testing.T, sub *bus.Subscription, within time.Duration) types.Heartbeat {
	t.Helper()
	select {
	case m := <-sub.Channel():
		hb, ok := m.Payload.(types.Heartbeat)
		if !ok {
			t.Fatalf("payload %T", m.Payload)
		}
		return hb
	case <-time.After(within):
		t.Fatal("no heartbeat")
	}
	return types.Heartbeat{}
}

func TestBeatsAndReconfigures(t *testing.T) {
	b := bus.NewBus(8)
	ui := b.NewConnection("ui")
	sub := ui.Subscribe(topicHeartbeat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &Service{Interval: 20 * time.Millisecond}
	if err := s.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		t.Fatal(err)
	}

	first := nextBeat(t, sub, time.Second)
	second := nextBeat(t, sub, time.Second)
	if first.Seq != 1 || second.Seq != 2 || second.UptimeMs < first.UptimeMs {
		t.Fatalf("beats: %+v %+v", first, second)
	}

	ui.Publish(ui.NewMessage(topicConfigHeartbeat, types.HeartbeatConfig{IntervalMs: 500}, true))
	time.Sleep(50 * time.Millisecond)
	for len(sub.Channel()) > 0 {
		<-sub.Channel()
	}
	select {
	case m := <-sub.Channel():
		t.Fatalf("beat %+v arrived before the new interval", m.Payload)
	case <-time.After(200 * time.Millisecond):
	}
}
