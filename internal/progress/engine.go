// File: internal/progress/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine keeps the FIFO of active requests and advances them cooperatively.
// Progress never blocks on the network: each pass gives every active
// request one Advance call. Run spins a background loop that calls Progress
// with adaptive backoff while nothing completes.

package progress

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/sys/cpu"

	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/concurrency"
	"github.com/momentics/hioload-coll/internal/schedule"
)

// CompletionHook observes every completed request.
type CompletionHook func(r *Request)

// Engine is safe for concurrent use.
type Engine struct {
	started   atomic.Uint64
	_         cpu.CacheLinePad
	completed atomic.Uint64
	_         cpu.CacheLinePad

	mu     sync.Mutex
	active *queue.Queue // *Request
	nextID uint64

	wake chan struct{}
	log  *slog.Logger
	hook atomic.Pointer[CompletionHook]

	running atomic.Bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewEngine creates an idle engine. A nil logger falls back to slog.Default.
func NewEngine(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		active: queue.New(),
		wake:   make(chan struct{}, 1),
		log:    log.With("component", "progress"),
	}
}

// OnComplete installs fn as the completion hook, replacing any previous one.
func (e *Engine) OnComplete(fn CompletionHook) {
	e.hook.Store(&fn)
}

// NewRequest wraps s in a request in the Created state.
func (e *Engine) NewRequest(op string, s *schedule.Schedule, t api.Transport) *Request {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.mu.Unlock()
	return &Request{id: id, op: op, engine: e, sched: s, transport: t, done: make(chan struct{})}
}

// CompletedRequest returns a request that is already complete with err, used
// for calls that need no communication.
func (e *Engine) CompletedRequest(op string, err error) *Request {
	r := e.NewRequest(op, nil, nil)
	r.mu.Lock()
	r.complete(err)
	r.mu.Unlock()
	e.finished(r)
	return r
}

// Start hands r to the engine. Starting a request twice fails.
func (e *Engine) Start(r *Request) error {
	if !r.state.CompareAndSwap(int32(StateCreated), int32(StateScheduled)) {
		return api.Errorf(api.ErrCodeAlreadyInProgress, "request %d already %s", r.id, r.State())
	}
	e.started.Add(1)
	e.mu.Lock()
	e.active.Add(r)
	e.mu.Unlock()
	e.signal()
	return nil
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Progress gives each active request one chance to advance and returns how
// many completed during the pass.
func (e *Engine) Progress() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.active.Length()
	finished := 0
	for i := 0; i < n; i++ {
		r := e.active.Remove().(*Request)
		if r.State() == StateComplete {
			continue
		}
		if r.advance() {
			e.finished(r)
			finished++
			continue
		}
		e.active.Add(r)
	}
	return finished
}

func (e *Engine) finished(r *Request) {
	e.completed.Add(1)
	if err := r.err; err != nil {
		e.log.Debug("request failed", "id", r.id, "op", r.op, "err", err)
	}
	if fn := e.hook.Load(); fn != nil && *fn != nil {
		(*fn)(r)
	}
}

// Active is the number of queued requests, including completed ones not yet
// swept by Progress.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active.Length()
}

// Stats returns lifetime started and completed counts.
func (e *Engine) Stats() (started, completed uint64) {
	return e.started.Load(), e.completed.Load()
}

func (e *Engine) reclaim(r *Request) error {
	if !r.reclaimed.CompareAndSwap(false, true) {
		return api.Errorf(api.ErrCodeAlreadyInProgress, "request %d already reclaimed", r.id)
	}
	return r.err
}

func (e *Engine) checkQuery(r *Request) error {
	if r == nil {
		return api.Errorf(api.ErrCodeInvalidHandle, "nil request")
	}
	if r.reclaimed.Load() {
		return api.Errorf(api.ErrCodeAlreadyInProgress, "request %d already reclaimed", r.id)
	}
	if r.State() == StateCreated {
		return api.Errorf(api.ErrCodeInvalidArgument, "request %d was never started", r.id)
	}
	return nil
}

// Test drives progress once and reports whether r completed. A complete
// request is reclaimed by the call that observes it and its error returned.
func (e *Engine) Test(r *Request) (bool, error) {
	if err := e.checkQuery(r); err != nil {
		return false, err
	}
	if r.State() != StateComplete {
		e.Progress()
	}
	if r.State() != StateComplete {
		return false, nil
	}
	return true, e.reclaim(r)
}

// Wait drives progress until r completes or ctx ends. On ctx end the request
// stays in flight and may be waited on again.
func (e *Engine) Wait(ctx context.Context, r *Request) error {
	if err := e.checkQuery(r); err != nil {
		return err
	}
	bo := concurrency.NewBackoff(time.Microsecond, time.Millisecond)
	defer bo.Stop()
	for r.State() != StateComplete {
		if e.Progress() > 0 {
			bo.Reset()
			continue
		}
		if r.State() == StateComplete {
			break
		}
		if err := bo.Wait(ctx, r.done); err != nil {
			return api.WrapError(api.ErrCodeCanceled, err, "wait interrupted").WithContext("request", r.id)
		}
	}
	return e.reclaim(r)
}

// Cancel completes r with ErrCanceled if none of its steps has been issued.
func (e *Engine) Cancel(r *Request) error {
	if r == nil {
		return api.Errorf(api.ErrCodeInvalidHandle, "nil request")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() == StateComplete {
		return api.Errorf(api.ErrCodeAlreadyInProgress, "request %d already complete", r.id)
	}
	if err := r.sched.Abort(api.ErrCanceled); err != nil {
		return err
	}
	// a queued request is dropped by the next Progress sweep
	r.complete(api.ErrCanceled)
	e.finished(r)
	e.log.Debug("request canceled", "id", r.id, "op", r.op)
	return nil
}

// Run advances requests in the background until ctx ends or Stop is called.
// Only one Run may be active.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return api.Errorf(api.ErrCodeAlreadyInProgress, "progress loop already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.mu.Lock()
	e.cancel, e.doneCh = cancel, done
	e.mu.Unlock()
	defer func() {
		cancel()
		close(done)
		e.running.Store(false)
	}()

	e.log.Info("progress loop started")
	bo := concurrency.NewBackoff(time.Microsecond, time.Millisecond)
	defer bo.Stop()
	for {
		if e.Progress() > 0 {
			bo.Reset()
			continue
		}
		var err error
		if e.Active() == 0 {
			select {
			case <-ctx.Done():
				err = ctx.Err()
			case <-e.wake:
				bo.Reset()
			}
		} else {
			err = bo.Wait(ctx, e.wake)
		}
		if err != nil {
			e.log.Info("progress loop stopped", "pending", e.Active())
			return nil
		}
	}
}

// Stop ends a running Run loop and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.doneCh
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
