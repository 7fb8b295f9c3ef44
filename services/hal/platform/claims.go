// Package platform provides the resource registries HAL runs on: simulated
// sensors for host tests and demos, Linux GPIO through periph, and RP2 pins
// under TinyGo.
package platform

import (
	"sync"

	"dhtcode-go/errcode"
)

// claimTable tracks exclusive pin ownership by device id.
type claimTable struct {
	mu   sync.Mutex
	used map[int]string // pin -> devID
}

func (c *claimTable) claim(devID string, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.used == nil {
		c.used = make(map[int]string)
	}
	if owner, inUse := c.used[n]; inUse && owner != "" {
		return errcode.PinInUse
	}
	c.used[n] = devID
	return nil
}

func (c *claimTable) release(devID string, n int) {
	c.mu.Lock()
	if owner, ok := c.used[n]; ok && owner == devID {
		delete(c.used, n)
	}
	c.mu.Unlock()
}
