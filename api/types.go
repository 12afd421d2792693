// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations: buffer regions, tags, topologies,
// reduction ops and algorithm identifiers.

package api

import (
	"fmt"
	"strings"
)

// Region is a caller-owned buffer described as count elements of Type.
// The core only ever touches Buf[:Count*Type.Extent].
type Region struct {
	Buf   []byte
	Count int
	Type  Datatype

	inPlace bool
}

// NewRegion builds a region over buf.
func NewRegion(buf []byte, count int, t Datatype) Region {
	return Region{Buf: buf, Count: count, Type: t}
}

// InPlace is the IN_PLACE send marker: the local contribution already sits in
// its slot of the receive buffer.
func InPlace() Region { return Region{inPlace: true} }

// IsInPlace reports whether r is the IN_PLACE marker.
func (r Region) IsInPlace() bool { return r.inPlace }

// Bytes is the packed payload size of the region.
func (r Region) Bytes() int64 { return int64(r.Count) * r.Type.Size() }

// Tag identifies the messages of one collective call on one communicator.
type Tag uint64

// MakeTag combines a communicator context id and a call sequence number.
func MakeTag(contextID uint32, seq uint32) Tag {
	return Tag(uint64(contextID)<<32 | uint64(seq))
}

// Topology lists the neighbors of the calling rank for neighborhood
// collectives: data is received from Sources[i] into slot i and the local
// block is sent to every entry of Destinations.
type Topology struct {
	Sources      []int
	Destinations []int
}

// ReduceOp is an aggregation operation: Sum, Min, Max, etc.
type ReduceOp int

const (
	OpSum ReduceOp = iota
	OpMax
	OpMin
	OpProd
	OpLAND // logical AND
	OpLOR  // logical OR
	OpBAND // bitwise AND
	OpBOR  // bitwise OR
	OpBXOR // bitwise XOR
)

func (op ReduceOp) String() string {
	switch op {
	case OpSum:
		return "sum"
	case OpMax:
		return "max"
	case OpMin:
		return "min"
	case OpProd:
		return "prod"
	case OpLAND:
		return "land"
	case OpLOR:
		return "lor"
	case OpBAND:
		return "band"
	case OpBOR:
		return "bor"
	case OpBXOR:
		return "bxor"
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

// Algorithm selects a communication pattern.
type Algorithm int

const (
	AlgAuto Algorithm = iota
	AlgRing
	AlgRecursiveDoubling
	AlgBrucks
	AlgGeneric
)

func (a Algorithm) String() string {
	switch a {
	case AlgRing:
		return "ring"
	case AlgRecursiveDoubling:
		return "recursive_doubling"
	case AlgBrucks:
		return "brucks"
	case AlgGeneric:
		return "generic"
	default:
		return "auto"
	}
}

// ParseAlgorithm accepts the configuration spelling of an algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return AlgAuto, nil
	case "ring":
		return AlgRing, nil
	case "recursive_doubling", "recursive-doubling", "recdbl":
		return AlgRecursiveDoubling, nil
	case "brucks", "bruck":
		return AlgBrucks, nil
	case "generic":
		return AlgGeneric, nil
	}
	return AlgAuto, Errorf(ErrCodeInvalidArgument, "unknown algorithm %q", s)
}

// MarshalText implements encoding.TextMarshaler for config files.
func (a Algorithm) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler for config files.
func (a *Algorithm) UnmarshalText(b []byte) error {
	v, err := ParseAlgorithm(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
