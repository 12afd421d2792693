// File: internal/selector/selector.go
// Package selector picks the communication pattern of a collective call.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Selection is a pure function of the call shape and an explicit Policy
// value. Nothing here reads process-wide state.

package selector

import (
	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/algorithm"
)

// Default message size cutoffs in bytes.
const (
	DefaultShort int64 = 81920
	DefaultLong  int64 = 524288
)

// Policy carries the thresholds and user overrides in effect for a call.
type Policy struct {
	Short int64
	Long  int64

	Intra     api.Algorithm // allgather override on intracommunicators
	Inter     api.Algorithm // allgather override on intercommunicators
	Allreduce api.Algorithm
}

// DefaultPolicy has the stock thresholds and no overrides.
func DefaultPolicy() Policy {
	return Policy{Short: DefaultShort, Long: DefaultLong}
}

// Validate checks thresholds and that each override names a pattern usable
// in its slot.
func (p Policy) Validate() error {
	if p.Short < 0 || p.Long < 0 || p.Short >= p.Long {
		return api.Errorf(api.ErrCodeInvalidArgument, "thresholds short=%d long=%d: need 0 <= short < long", p.Short, p.Long)
	}
	switch p.Intra {
	case api.AlgAuto, api.AlgRing, api.AlgRecursiveDoubling, api.AlgBrucks:
	default:
		return api.Errorf(api.ErrCodeInvalidArgument, "intra allgather override %s", p.Intra)
	}
	switch p.Inter {
	case api.AlgAuto, api.AlgGeneric:
	default:
		return api.Errorf(api.ErrCodeInvalidArgument, "inter allgather override %s", p.Inter)
	}
	switch p.Allreduce {
	case api.AlgAuto, api.AlgRing, api.AlgRecursiveDoubling:
	default:
		return api.Errorf(api.ErrCodeInvalidArgument, "allreduce override %s", p.Allreduce)
	}
	return nil
}

// Input is the shape of one call.
type Input struct {
	TotalBytes int64 // recvcount * comm_size * type size
	CommSize   int
	Kind       api.CommKind
}

// Allgather chooses the allgather pattern. A recursive doubling override on
// a size that is not a power of two is routed to Brucks; Rerouted tells
// the caller so it can log it.
func Allgather(in Input, p Policy) Choice {
	if in.Kind == api.InterComm {
		return Choice{Algorithm: api.AlgGeneric, Override: p.Inter == api.AlgGeneric}
	}
	pof2 := algorithm.IsPowerOfTwo(in.CommSize)
	switch p.Intra {
	case api.AlgRing, api.AlgBrucks:
		return Choice{Algorithm: p.Intra, Override: true}
	case api.AlgRecursiveDoubling:
		if pof2 {
			return Choice{Algorithm: api.AlgRecursiveDoubling, Override: true}
		}
		return Choice{Algorithm: api.AlgBrucks, Override: true, Rerouted: true}
	}
	switch {
	case in.TotalBytes < p.Long && pof2:
		return Choice{Algorithm: api.AlgRecursiveDoubling}
	case in.TotalBytes < p.Short:
		return Choice{Algorithm: api.AlgBrucks}
	default:
		return Choice{Algorithm: api.AlgRing}
	}
}

// Allreduce chooses the allreduce pattern: recursive doubling on power-of-two
// sizes, gather-reduce over the ring otherwise.
func Allreduce(in Input, p Policy) Choice {
	pof2 := algorithm.IsPowerOfTwo(in.CommSize)
	switch p.Allreduce {
	case api.AlgRing:
		return Choice{Algorithm: api.AlgRing, Override: true}
	case api.AlgRecursiveDoubling:
		if pof2 {
			return Choice{Algorithm: api.AlgRecursiveDoubling, Override: true}
		}
		return Choice{Algorithm: api.AlgRing, Override: true, Rerouted: true}
	}
	if pof2 {
		return Choice{Algorithm: api.AlgRecursiveDoubling}
	}
	return Choice{Algorithm: api.AlgRing}
}

// Choice is a selection result.
type Choice struct {
	Algorithm api.Algorithm
	Override  bool // taken from the policy rather than derived
	Rerouted  bool // override could not apply to this size
}
