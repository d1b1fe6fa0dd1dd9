package patch

import (
	"context"

	"github.com/jonwraymond/apmcore/health"
)

// Checker reports the install state of the named integration as a health check.
func (c *Coordinator) Checker(name string) health.Checker {
	return health.NewCheckerFunc(name, func(context.Context) health.Result {
		c.mu.RLock()
		e, ok := c.entries[name]
		var (
			state   State
			version string
			lastErr error
		)
		if ok {
			state, version, lastErr = e.state, e.targetVersion, e.lastErr
		}
		c.mu.RUnlock()

		switch {
		case !ok:
			return health.Unhealthy("integration not registered", ErrUnknownIntegration)
		case state == StatePatched:
			return health.Healthy("patched").WithDetails(map[string]any{"target_version": version})
		case state == StatePatching:
			return health.Degraded("patching")
		case lastErr != nil:
			return health.Unhealthy("install failed", lastErr)
		default:
			return health.Degraded("not patched")
		}
	})
}
