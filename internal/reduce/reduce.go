// File: internal/reduce/reduce.go
// Package reduce implements the local reduction kernels behind Reduce steps.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reduce

import (
	"encoding/binary"
	"math"

	"github.com/momentics/hioload-coll/api"
)

var ne = binary.NativeEndian

// Check reports whether op is defined for the lanes of t.
func Check(op api.ReduceOp, t api.Datatype) error {
	switch op {
	case api.OpSum, api.OpProd, api.OpMax, api.OpMin:
		return nil
	case api.OpLAND, api.OpLOR, api.OpBAND, api.OpBOR, api.OpBXOR:
		if t.Kind == api.KindFloat32 || t.Kind == api.KindFloat64 {
			return api.Errorf(api.ErrCodeInvalidOp, "op %s undefined for %s", op, t.Kind)
		}
		return nil
	}
	return api.Errorf(api.ErrCodeInvalidOp, "unknown op %s", op)
}

// Apply computes dst = src op dst lane by lane over count elements of t.
// Both buffers use the layout of t; padding is not touched.
func Apply(op api.ReduceOp, dst, src []byte, count int, t api.Datatype) {
	w := t.Kind.Width()
	for i := 0; i < count; i++ {
		base := int64(i) * t.Extent
		for j := 0; j < t.Lanes; j++ {
			o := base + int64(j)*t.LaneStride
			lane(op, t.Kind, dst[o:o+w], src[o:o+w])
		}
	}
}

func lane(op api.ReduceOp, k api.Kind, d, s []byte) {
	switch k {
	case api.KindByte:
		d[0] = uint8(integer(op, uint64(s[0]), uint64(d[0]), false, 8))
	case api.KindInt32:
		ne.PutUint32(d, uint32(integer(op, uint64(int64(int32(ne.Uint32(s)))), uint64(int64(int32(ne.Uint32(d)))), true, 32)))
	case api.KindUint32:
		ne.PutUint32(d, uint32(integer(op, uint64(ne.Uint32(s)), uint64(ne.Uint32(d)), false, 32)))
	case api.KindInt64:
		ne.PutUint64(d, integer(op, ne.Uint64(s), ne.Uint64(d), true, 64))
	case api.KindUint64:
		ne.PutUint64(d, integer(op, ne.Uint64(s), ne.Uint64(d), false, 64))
	case api.KindFloat32:
		a := float64(math.Float32frombits(ne.Uint32(s)))
		b := float64(math.Float32frombits(ne.Uint32(d)))
		ne.PutUint32(d, math.Float32bits(float32(float(op, a, b))))
	case api.KindFloat64:
		a := math.Float64frombits(ne.Uint64(s))
		b := math.Float64frombits(ne.Uint64(d))
		ne.PutUint64(d, math.Float64bits(float(op, a, b)))
	}
}

// integer combines a (source) and b (destination). Signed values arrive sign
// extended to 64 bits; the caller truncates the result to the lane width.
func integer(op api.ReduceOp, a, b uint64, signed bool, width uint) uint64 {
	switch op {
	case api.OpSum:
		return a + b
	case api.OpProd:
		return a * b
	case api.OpMax, api.OpMin:
		less := a < b
		if signed {
			less = int64(a) < int64(b)
		}
		if (op == api.OpMax) == less {
			return b
		}
		return a
	case api.OpLAND:
		return boolWord(trunc(a, width) != 0 && trunc(b, width) != 0)
	case api.OpLOR:
		return boolWord(trunc(a, width) != 0 || trunc(b, width) != 0)
	case api.OpBAND:
		return a & b
	case api.OpBOR:
		return a | b
	case api.OpBXOR:
		return a ^ b
	}
	return b
}

func trunc(v uint64, width uint) uint64 {
	if width >= 64 {
		return v
	}
	return v & (1<<width - 1)
}

func boolWord(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

func float(op api.ReduceOp, a, b float64) float64 {
	switch op {
	case api.OpSum:
		return a + b
	case api.OpProd:
		return a * b
	case api.OpMax:
		return math.Max(a, b)
	case api.OpMin:
		return math.Min(a, b)
	}
	return b
}
