//go:build rp2040 || rp2350

package main

import (
	"context"
	"io"
	"machine"
	"time"

	"github.com/jangala-dev/tinygo-uartx/uartx"

	"dhtcode-go/bus"
	"dhtcode-go/services/bridge"
	"dhtcode-go/services/config"
	"dhtcode-go/services/hal"
	"dhtcode-go/services/hal/platform"
	"dhtcode-go/services/heartbeat"
	"dhtcode-go/types"
)

const (
	device   = "pico"
	uartBaud = 115200
)

func main() {
	time.Sleep(2 * time.Second)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, device)

	println("[main] bootstrapping bus …")
	b := bus.NewBus(4)

	uart := uartx.UART0
	if err := uart.Configure(uartx.UARTConfig{
		BaudRate: uartBaud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	}); err != nil {
		println("[main] uart0 configure failed:", err.Error())
	}

	ui := b.NewConnection("ui")
	beats := ui.Subscribe(bus.T("heartbeat"))
	go func() {
		for m := range beats.Channel() {
			if hb, ok := m.Payload.(types.Heartbeat); ok {
				println("[monitor] heartbeat", hb.Seq, "uptime_ms", hb.UptimeMs)
			}
		}
	}()
	mon := ui.Subscribe(bus.T("+", "state"))
	go func() {
		for m := range mon.Channel() {
			svc, _ := m.Topic.At(0).(string)
			switch st := m.Payload.(type) {
			case types.HALState:
				println("[monitor]", svc, st.Level, st.Status)
			case map[string]any:
				level, _ := st["level"].(string)
				status, _ := st["status"].(string)
				println("[monitor]", svc, level, status)
			}
		}
	}()

	println("[main] starting hal.Run …")
	go hal.Run(ctx, b.NewConnection("hal"), platform.NewRP2())

	println("[main] starting bridge …")
	go bridge.Start(ctx, b.NewConnection("bridge"), bridge.Config{StationID: device}, &bridge.LineWriter{W: io.MultiWriter(machine.Serial, uart)})

	hb := &heartbeat.Service{}
	_ = hb.Start(ctx, b.NewConnection("heartbeat"))

	println("[main] publishing embedded config …")
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	select {}
}
