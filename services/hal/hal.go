// services/hal/hal.go
package hal

import (
	"context"

	"dhtcode-go/bus"
	"dhtcode-go/services/hal/internal/core"

	// Device builders register themselves with the core.
	_ "dhtcode-go/services/hal/devices/dht"
)

// ResourceRegistry is what a platform provides to HAL devices: GPIO claims
// and a shared timing source.
type ResourceRegistry = core.ResourceRegistry

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run serves hal/... on conn until ctx is cancelled. Configuration arrives
// as a retained types.HALConfig on config/hal.
func Run(ctx context.Context, conn *bus.Connection, reg ResourceRegistry) {
	core.NewHAL(conn, reg).Run(ctx)
}
