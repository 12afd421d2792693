// File: internal/algorithm/allgather.go
// Package algorithm emits the schedule steps of each collective pattern.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Every builder shares one contract: (send region or IN_PLACE, receive region
// describing one per-rank block, communicator, schedule sink). Builders are
// pure with respect to buffers: they only record steps, nothing is read or
// written until the schedule runs. An enqueue failure aborts construction.

package algorithm

import (
	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/extent"
	"github.com/momentics/hioload-coll/internal/schedule"
)

// Builder is the shared signature of allgather patterns.
type Builder func(send, recv api.Region, comm *api.Comm, s *schedule.Schedule) error

// Allgather emits alg into s.
func Allgather(alg api.Algorithm, send, recv api.Region, comm *api.Comm, s *schedule.Schedule) error {
	b, err := allgatherBuilder(alg)
	if err != nil {
		return err
	}
	return b(send, recv, comm, s)
}

func allgatherBuilder(alg api.Algorithm) (Builder, error) {
	switch alg {
	case api.AlgRing:
		return Ring, nil
	case api.AlgRecursiveDoubling:
		return RecursiveDoubling, nil
	case api.AlgBrucks:
		return Brucks, nil
	case api.AlgGeneric:
		return GenericInter, nil
	}
	return nil, api.Errorf(api.ErrCodeNotSupported, "no allgather builder for %s", alg)
}

// blocks addresses a buffer laid out as consecutive per-rank blocks of
// count elements of t.
type blocks struct {
	buf   []byte
	count int
	t     api.Datatype
}

func newBlocks(r api.Region) blocks {
	return blocks{buf: r.Buf, count: r.Count, t: r.Type}
}

// slot is block i as a region.
func (b blocks) slot(i int) api.Region {
	return api.NewRegion(extent.Block(b.buf, i, b.count, b.t.Extent), b.count, b.t)
}

// run is n consecutive blocks starting at block i as one region.
func (b blocks) run(i, n int) api.Region {
	return api.NewRegion(extent.Blocks(b.buf, i, n, b.count, b.t.Extent), n*b.count, b.t)
}

// zero reports the documented no-op fast path.
func zero(send, recv api.Region) bool {
	return (!send.IsInPlace() && send.Count == 0) || recv.Count == 0
}

// IsPowerOfTwo reports whether n is an exact power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
