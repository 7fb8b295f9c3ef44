// services/hal/devices/dht/device.go
package dhtdev

import (
	"context"
	"sync"

	"dhtcode-go/drivers/dht"
	"dhtcode-go/errcode"
	"dhtcode-go/services/hal/internal/core"
	"dhtcode-go/types"
	"dhtcode-go/x/mathx"
	"dhtcode-go/x/timex"
)

// Device exposes one DHT sensor as env/temperature/<name> and
// env/humidity/<name>. Acquisitions run on the device's own goroutine,
// one at a time; a read requested while another is pending is refused.
type Device struct {
	id      string
	pin     core.GPIOHandle
	variant dht.Variant
	timing  core.Timing

	pub core.EventEmitter
	reg core.ResourceRegistry

	drv *dht.Device

	jobs      chan struct{} // capacity 1: at most one pending read
	quit      chan struct{}
	closeOnce sync.Once

	addrTemp core.CapAddr
	addrHum  core.CapAddr
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	info := types.Info{
		SchemaVersion: 1,
		Driver:        "dht",
		Detail:        types.SensorInfo{Sensor: d.variant.Name, Pin: d.pin.Number()},
	}
	return []core.CapabilitySpec{
		{Domain: d.addrTemp.Domain, Kind: types.KindTemperature, Name: d.addrTemp.Name, Info: info},
		{Domain: d.addrHum.Domain, Kind: types.KindHumidity, Name: d.addrHum.Name, Info: info},
	}
}

// Init parks the line high and starts the worker.
func (d *Device) Init(ctx context.Context) error {
	if err := d.drv.Configure(dht.Config{Variant: d.variant, Critical: d.timing}); err != nil {
		return err
	}
	go d.run(ctx)
	return nil
}

func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		close(d.quit)
		if d.reg != nil {
			d.reg.ReleaseGPIO(d.id, d.pin.Number())
		}
	})
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, _ any) (core.EnqueueResult, error) {
	switch verb {
	case "read":
		select {
		case d.jobs <- struct{}{}:
			return core.EnqueueResult{OK: true}, nil
		default:
			return core.EnqueueResult{OK: false, Error: errcode.Busy}, nil
		}
	default:
		return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}
}

func (d *Device) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.quit:
			return
		case <-d.jobs:
			d.readOnce()
		}
	}
}

func (d *Device) readOnce() {
	r, err := d.drv.Read()
	ts := timex.NowNs()
	if err != nil {
		d.emitErr(string(errcode.MapDriverErr(err)), ts)
		return
	}
	// A cached reading is not republished as a value; the masked failure
	// shows up as degraded status instead.
	if masked := d.drv.Err(); masked != nil {
		d.emitErr(string(errcode.MapDriverErr(masked)), ts)
		return
	}

	// Fixed-point conversions with bounds.
	decic := mathx.Clamp(r.DeciCelsius(), -32768, 32767)
	rhx100 := mathx.Clamp(r.DeciRelHumidity()*10, 0, 10000)

	d.pub.Emit(core.Event{
		Addr:    d.addrTemp,
		Payload: types.TemperatureValue{DeciC: int16(decic)},
		TS:      ts,
	})
	d.pub.Emit(core.Event{
		Addr:    d.addrHum,
		Payload: types.HumidityValue{RHx100: uint16(rhx100)},
		TS:      ts,
	})
}

func (d *Device) emitErr(code string, ts int64) {
	d.pub.Emit(core.Event{Addr: d.addrTemp, Err: code, TS: ts})
	d.pub.Emit(core.Event{Addr: d.addrHum, Err: code, TS: ts})
}
