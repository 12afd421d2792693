// File: facade/runtime.go
// Unified facade layer for hioload-coll.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime aggregates the components one process needs to run collectives:
// control plane (config store, metrics, probes), scratch pool, progress
// engine and logger. Collective entry points live in collectives.go.

package facade

import (
	"context"
	"log/slog"
	"sync"

	"github.com/momentics/hioload-coll/adapters"
	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/progress"
	"github.com/momentics/hioload-coll/internal/selector"
	"github.com/momentics/hioload-coll/pool"
)

// Runtime is the main facade type. It is safe for concurrent use by the
// goroutines of many ranks.
type Runtime struct {
	config  *Config
	log     *slog.Logger
	control *adapters.ControlAdapter
	engine  *progress.Engine
	pool    api.BytePool
	defPol  selector.Policy

	mu       sync.Mutex // protects started and the loop handles
	started  bool
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// Ensure compliance with api.GracefulShutdown.
var _ api.GracefulShutdown = (*Runtime)(nil)

// New constructs a Runtime. A nil cfg means DefaultConfig.
func New(cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.logger()
	r := &Runtime{
		config:  cfg,
		log:     log.With("component", "facade"),
		control: adapters.NewControlAdapter(),
		engine:  progress.NewEngine(log),
		defPol:  cfg.Policy(),
	}
	if cfg.UseScratchPool {
		r.pool = pool.Default()
	}

	// Expose tuning knobs via Control for observability and hot-reload.
	if err := r.control.SetConfig(cfg.controlValues()); err != nil {
		return nil, err
	}
	r.control.OnReload(func() {
		if _, err := r.policy(); err != nil {
			r.log.Warn("reloaded configuration rejected, calls will fail until fixed", "err", err)
		}
	})

	if cfg.EnableMetrics {
		r.engine.OnComplete(func(req *progress.Request) {
			if req.Err() != nil {
				r.control.IncMetric("requests.failed")
			} else {
				r.control.IncMetric("requests.completed")
			}
		})
	}
	if cfg.EnableDebug {
		r.control.RegisterDebugProbe("progress.active", func() any { return r.engine.Active() })
		r.control.RegisterDebugProbe("progress.started", func() any {
			s, _ := r.engine.Stats()
			return s
		})
		if sp, ok := r.pool.(*pool.ScratchPool); ok {
			r.control.RegisterDebugProbe("pool.scratch", func() any { return sp.Stats() })
		}
	}
	return r, nil
}

// Start launches the background progress loop if configured.
// Subsequent calls to Start() have no effect.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if r.config.BackgroundProgress {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		r.cancel, r.loopDone = cancel, done
		go func() {
			defer close(done)
			if err := r.engine.Run(ctx); err != nil {
				r.log.Error("progress loop", "err", err)
			}
		}()
	}
	r.started = true
	r.log.Info("runtime started", "background_progress", r.config.BackgroundProgress)
	return nil
}

// Stop halts the progress loop. In-flight requests stay valid and can still
// be driven by Wait or Test. Calling Stop() on a non-started runtime is a no-op.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	if r.cancel != nil {
		r.cancel()
		<-r.loopDone
		r.cancel, r.loopDone = nil, nil
	}
	r.started = false
	r.log.Info("runtime stopped", "active", r.engine.Active())
	return nil
}

// Shutdown implements api.GracefulShutdown by delegating to Stop().
func (r *Runtime) Shutdown() error {
	return r.Stop()
}

// GetControl returns the Control interface for dynamic config and metrics.
func (r *Runtime) GetControl() api.Control {
	return r.control
}

// Engine exposes the progress engine for callers that drive progress manually.
func (r *Runtime) Engine() *progress.Engine {
	return r.engine
}

// policy reads the current selection policy from the control store.
func (r *Runtime) policy() (selector.Policy, error) {
	return policyFrom(r.control.Config(), r.defPol)
}

func (r *Runtime) count(op string) {
	if r.config.EnableMetrics {
		r.control.IncMetric(op)
	}
}
