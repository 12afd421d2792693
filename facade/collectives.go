// File: facade/collectives.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Public collective entry points. Each validates its arguments, selects a
// pattern and builds a schedule. Blocking allgather and allreduce run the
// schedule on the calling goroutine; nonblocking variants hand it to the
// progress engine. Both paths use the same builders.

package facade

import (
	"context"

	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/algorithm"
	"github.com/momentics/hioload-coll/internal/progress"
	"github.com/momentics/hioload-coll/internal/schedule"
	"github.com/momentics/hioload-coll/internal/selector"
)

// Request is the handle of a nonblocking collective.
type Request = progress.Request

// plan is a built schedule ready to run, or nothing to do when s is nil.
type plan struct {
	op string
	s  *schedule.Schedule
}

func (r *Runtime) build(comm *api.Comm, op string, emit func(s *schedule.Schedule) error) (plan, error) {
	s := schedule.New(comm.NextTag(), comm.PeerCount(), r.pool)
	if err := emit(s); err != nil {
		s.Release()
		return plan{}, err
	}
	r.count(op)
	return plan{op: op, s: s}, nil
}

func (r *Runtime) planAllgather(send, recv api.Region, comm *api.Comm) (plan, error) {
	if err := validateAllgather(send, recv, comm); err != nil {
		return plan{}, err
	}
	if recv.Count == 0 {
		return plan{op: "allgather.noop"}, nil
	}
	pol, err := r.policy()
	if err != nil {
		return plan{}, err
	}
	in := selector.Input{
		TotalBytes: recv.Bytes() * int64(comm.PeerCount()),
		CommSize:   comm.Size(),
		Kind:       comm.Kind(),
	}
	ch := selector.Allgather(in, pol)
	if ch.Rerouted {
		r.log.Debug("recursive doubling needs a power-of-two size, using brucks", "size", comm.Size())
	}
	r.log.Debug("allgather", "algorithm", ch.Algorithm, "bytes", in.TotalBytes, "size", in.CommSize, "kind", in.Kind)
	return r.build(comm, "allgather."+ch.Algorithm.String(), func(s *schedule.Schedule) error {
		return algorithm.Allgather(ch.Algorithm, send, recv, comm, s)
	})
}

func (r *Runtime) planAllreduce(send, recv api.Region, op api.ReduceOp, comm *api.Comm) (plan, error) {
	if err := validateAllreduce(send, recv, op, comm); err != nil {
		return plan{}, err
	}
	if recv.Count == 0 {
		return plan{op: "allreduce.noop"}, nil
	}
	pol, err := r.policy()
	if err != nil {
		return plan{}, err
	}
	ch := selector.Allreduce(selector.Input{TotalBytes: recv.Bytes(), CommSize: comm.Size()}, pol)
	if ch.Rerouted {
		r.log.Debug("recursive doubling needs a power-of-two size, using ring", "size", comm.Size())
	}
	return r.build(comm, "allreduce."+ch.Algorithm.String(), func(s *schedule.Schedule) error {
		return algorithm.Allreduce(ch.Algorithm, send, recv, op, comm, s)
	})
}

func (r *Runtime) planNeighbor(send, recv api.Region, topo api.Topology, comm *api.Comm) (plan, error) {
	if err := validateNeighbor(send, recv, topo, comm); err != nil {
		return plan{}, err
	}
	if recv.Count == 0 {
		return plan{op: "neighbor_allgather.noop"}, nil
	}
	return r.build(comm, "neighbor_allgather", func(s *schedule.Schedule) error {
		return algorithm.NeighborAllgather(send, recv, topo, comm, s)
	})
}

func (r *Runtime) runBlocking(ctx context.Context, p plan, comm *api.Comm) error {
	if p.s == nil {
		return nil
	}
	return schedule.RunBlocking(ctx, p.s, comm.Transport())
}

func (r *Runtime) start(p plan, comm *api.Comm) (*Request, error) {
	if p.s == nil {
		return r.engine.CompletedRequest(p.op, nil), nil
	}
	req := r.engine.NewRequest(p.op, p.s, comm.Transport())
	if err := r.engine.Start(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Allgather gathers count elements from every rank into recv on every rank.
// recv holds one block per rank (remote rank for intercommunicators); send
// may be api.InPlace() on intracommunicators.
func (r *Runtime) Allgather(ctx context.Context, send, recv api.Region, comm *api.Comm) error {
	p, err := r.planAllgather(send, recv, comm)
	if err != nil {
		return err
	}
	return r.runBlocking(ctx, p, comm)
}

// Iallgather starts a nonblocking allgather.
func (r *Runtime) Iallgather(send, recv api.Region, comm *api.Comm) (*Request, error) {
	p, err := r.planAllgather(send, recv, comm)
	if err != nil {
		return nil, err
	}
	return r.start(p, comm)
}

// Allreduce combines the vectors of all ranks with op into recv on every rank.
func (r *Runtime) Allreduce(ctx context.Context, send, recv api.Region, op api.ReduceOp, comm *api.Comm) error {
	p, err := r.planAllreduce(send, recv, op, comm)
	if err != nil {
		return err
	}
	return r.runBlocking(ctx, p, comm)
}

// Iallreduce starts a nonblocking allreduce.
func (r *Runtime) Iallreduce(send, recv api.Region, op api.ReduceOp, comm *api.Comm) (*Request, error) {
	p, err := r.planAllreduce(send, recv, op, comm)
	if err != nil {
		return nil, err
	}
	return r.start(p, comm)
}

// NeighborAllgather exchanges blocks along topo. It starts the nonblocking
// version and waits for it.
func (r *Runtime) NeighborAllgather(ctx context.Context, send, recv api.Region, topo api.Topology, comm *api.Comm) error {
	req, err := r.IneighborAllgather(send, recv, topo, comm)
	if err != nil {
		return err
	}
	return r.Wait(ctx, req)
}

// IneighborAllgather starts a nonblocking neighborhood allgather.
func (r *Runtime) IneighborAllgather(send, recv api.Region, topo api.Topology, comm *api.Comm) (*Request, error) {
	p, err := r.planNeighbor(send, recv, topo, comm)
	if err != nil {
		return nil, err
	}
	return r.start(p, comm)
}

// Wait blocks until req completes or ctx ends and reclaims it.
func (r *Runtime) Wait(ctx context.Context, req *Request) error {
	return r.engine.Wait(ctx, req)
}

// Test reports whether req completed, reclaiming it if so.
func (r *Runtime) Test(req *Request) (bool, error) {
	return r.engine.Test(req)
}

// Cancel withdraws req if none of its steps has started.
func (r *Runtime) Cancel(req *Request) error {
	return r.engine.Cancel(req)
}

// WaitAll waits for every request, returning the first error.
func (r *Runtime) WaitAll(ctx context.Context, reqs ...*Request) error {
	var first error
	for _, req := range reqs {
		if err := r.Wait(ctx, req); err != nil && first == nil {
			first = err
		}
	}
	return first
}
