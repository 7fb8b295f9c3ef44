package heartbeat

import (
	"context"
	"time"

	"dhtcode-go/bus"
	"dhtcode-go/types"
	"dhtcode-go/x/timex"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicHeartbeat       = bus.T("heartbeat")
)

const defaultInterval = 10 * time.Second

// Service publishes a liveness beat on "heartbeat" until its context ends.
// The period follows config/heartbeat (types.HeartbeatConfig).
type Service struct {
	Interval time.Duration
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	interval := s.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	start := time.Now()
	var seq uint32
	for {
		select {
		case <-ctx.Done():
			println("[heartbeat] stopping")
			return
		case <-tick.C:
			seq++
			conn.Publish(conn.NewMessage(topicHeartbeat, types.Heartbeat{
				Seq:      seq,
				UptimeMs: time.Since(start).Milliseconds(),
				TS:       timex.NowMs(),
			}, false))
		case msg := <-cfgSub.Channel():
			hc, ok := msg.Payload.(types.HeartbeatConfig)
			if !ok || hc.IntervalMs == 0 {
				println("[heartbeat] ignoring config payload")
				continue
			}
			tick.Reset(time.Duration(hc.IntervalMs) * time.Millisecond)
			println("[heartbeat] interval set to", hc.IntervalMs, "ms")
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
