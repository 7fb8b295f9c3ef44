// services/hal/devices/dht/builder.go
package dhtdev

import (
	"context"

	"dhtcode-go/drivers/dht"
	"dhtcode-go/errcode"
	"dhtcode-go/services/hal/internal/core"
	"dhtcode-go/types"
	"dhtcode-go/x/strx"
)

func init() { core.RegisterBuilder("dht", builder{}) }

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, code := core.As[types.DHTParams](in.Params)
	if code != "" || in.Params == nil || p.Pin < 0 {
		return nil, errcode.InvalidParams
	}
	v, ok := dht.VariantByName(p.Variant)
	if !ok {
		return nil, errcode.InvalidParams
	}
	if in.Res.Reg == nil || in.Res.Pub == nil {
		return nil, errcode.HALNotReady
	}
	h, err := in.Res.Reg.ClaimGPIO(in.ID, p.Pin)
	if err != nil {
		return nil, err
	}
	tm := in.Res.Reg.Timing()

	name := strx.Coalesce(p.Name, in.ID)
	domain := strx.Coalesce(p.Domain, types.DomainEnv)
	d := &Device{
		id:       in.ID,
		pin:      h,
		variant:  v,
		timing:   tm,
		pub:      in.Res.Pub,
		reg:      in.Res.Reg,
		drv:      dht.New(gpioPin{h}, tm),
		jobs:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		addrTemp: core.CapAddr{Domain: domain, Kind: string(types.KindTemperature), Name: name},
		addrHum:  core.CapAddr{Domain: domain, Kind: string(types.KindHumidity), Name: name},
	}
	return d, nil
}

// gpioPin adapts a HAL GPIO handle to the driver's pin contract.
type gpioPin struct{ h core.GPIOHandle }

func (p gpioPin) ConfigureOutput(initial bool) error { return p.h.ConfigureOutput(initial) }
func (p gpioPin) Set(high bool)                      { p.h.Set(high) }
func (p gpioPin) Get() bool                          { return p.h.Get() }

func (p gpioPin) ConfigureInput(pull dht.Pull) error {
	switch pull {
	case dht.PullUp:
		return p.h.ConfigureInput(core.PullUp)
	case dht.PullDown:
		return p.h.ConfigureInput(core.PullDown)
	default:
		return p.h.ConfigureInput(core.PullNone)
	}
}
