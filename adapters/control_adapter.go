// File: adapters/control_adapter.go
// Package adapters binds the control plane to the api.Control contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One ControlAdapter backs one facade.Runtime: its config store holds the
// selection policy read on every collective call, its registry counts calls
// per algorithm and request outcome.

package adapters

import (
	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/control"
)

// ControlAdapter bundles the config store, metrics and probes of one runtime.
type ControlAdapter struct {
	config  *control.ConfigStore
	metrics *control.MetricsRegistry
	debug   *control.DebugProbes
}

var _ api.Control = (*ControlAdapter)(nil)

// NewControlAdapter creates an adapter with platform probes registered.
func NewControlAdapter() *ControlAdapter {
	adapter := &ControlAdapter{
		config:  control.NewConfigStore(),
		metrics: control.NewMetricsRegistry(),
		debug:   control.NewDebugProbes(),
	}
	control.RegisterPlatformProbes(adapter.debug)
	return adapter
}

// Config exposes the typed store backing GetConfig.
func (c *ControlAdapter) Config() *control.ConfigStore { return c.config }

// Metrics exposes the registry backing Stats.
func (c *ControlAdapter) Metrics() *control.MetricsRegistry { return c.metrics }

// GetConfig returns a copy of the tuning values, keyed like
// "allgather.short_msg_size".
func (c *ControlAdapter) GetConfig() map[string]any {
	return c.config.GetSnapshot()
}

// SetConfig merges cfg into the store and fires reload hooks. Values are not
// checked here; the next collective call rejects an invalid policy.
func (c *ControlAdapter) SetConfig(cfg map[string]any) error {
	c.config.SetConfig(cfg)
	return nil
}

// Stats merges metrics with probe output, probes prefixed by "debug.".
func (c *ControlAdapter) Stats() map[string]any {
	stats := c.metrics.GetSnapshot()
	debugStats := c.debug.DumpState()
	combined := make(map[string]any, len(stats)+len(debugStats))
	for k, v := range stats {
		combined[k] = v
	}
	for k, v := range debugStats {
		combined["debug."+k] = v
	}
	return combined
}

// OnReload registers fn to run on its own goroutine after every SetConfig.
func (c *ControlAdapter) OnReload(fn func()) {
	c.config.OnReload(fn)
}

// SetMetric sets gauge key, e.g. a pool size.
func (c *ControlAdapter) SetMetric(key string, value any) {
	c.metrics.Set(key, value)
}

// IncMetric bumps counter key, e.g. "allgather.ring" or "requests.failed".
func (c *ControlAdapter) IncMetric(key string) {
	c.metrics.Inc(key)
}

// RegisterDebugProbe adds a probe reported by Stats as "debug.<name>".
func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}
