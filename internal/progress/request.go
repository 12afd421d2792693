// File: internal/progress/request.go
// Package progress drives nonblocking collectives to completion.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Request owns exactly one schedule. Its state only moves forward:
// Created -> Scheduled -> Complete, and it completes exactly once. The caller
// reclaims a complete request through Wait or Test; any later query is a
// contract violation reported as ErrCodeAlreadyInProgress.

package progress

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/schedule"
)

// State of a request.
type State int32

const (
	StateCreated State = iota
	StateScheduled
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateScheduled:
		return "scheduled"
	default:
		return "complete"
	}
}

// Request is the handle of one in-flight collective.
type Request struct {
	id     uint64
	op     string
	engine *Engine

	mu        sync.Mutex // guards sched and transport while advancing
	sched     *schedule.Schedule
	transport api.Transport

	state     atomic.Int32
	reclaimed atomic.Bool
	err       error // written once before done is closed
	done      chan struct{}
}

var _ api.Cancelable = (*Request)(nil)

// ID is unique per engine.
func (r *Request) ID() uint64 { return r.id }

// Op names the operation and pattern, e.g. "allgather.ring".
func (r *Request) Op() string { return r.op }

// State returns the current lifecycle state.
func (r *Request) State() State { return State(r.state.Load()) }

// Done is closed once the request completes.
func (r *Request) Done() <-chan struct{} { return r.done }

// Err is the terminal error, nil until completion.
func (r *Request) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Cancel withdraws the request if none of its steps has started.
func (r *Request) Cancel() error { return r.engine.Cancel(r) }

// Progress returns the number of schedule steps finished so far.
func (r *Request) Progress() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sched == nil {
		return 0
	}
	return r.sched.Completed()
}

// advance moves the schedule forward and reports completion. Only the first
// caller to observe completion gets finished=true.
func (r *Request) advance() (finished bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != StateScheduled {
		return false
	}
	done, err := r.sched.Advance(r.transport)
	if !done {
		return false
	}
	r.complete(err)
	return true
}

// complete must be called with r.mu held.
func (r *Request) complete(err error) {
	r.err = err
	r.state.Store(int32(StateComplete))
	close(r.done)
}
