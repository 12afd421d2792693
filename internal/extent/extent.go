// File: internal/extent/extent.go
// Package extent derives byte offsets and spans from (count, datatype) pairs.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Every algorithm addresses caller memory through this package. All helpers
// are pure; arithmetic is overflow checked and never silently truncated.

package extent

import (
	"math"
	"math/bits"
	"unsafe"

	"github.com/momentics/hioload-coll/api"
)

// mul returns a*b, or ok=false if the product leaves the non-negative int range.
func mul(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > math.MaxInt {
		return 0, false
	}
	return int64(lo), true
}

// BlockSpan is the byte length of count elements of extent e.
func BlockSpan(count int, e int64) (int64, error) {
	n, ok := mul(int64(count), e)
	if !ok {
		return 0, api.Errorf(api.ErrCodeBufferOverflowRisk, "span of %d elements with extent %d overflows", count, e)
	}
	return n, nil
}

// BlockOffset is the byte offset of logical block i inside a per-rank
// buffer holding blocks of count elements: i*count*e. Callers must have
// validated the highest offset with CheckHighest first.
func BlockOffset(i, count int, e int64) int64 {
	return int64(i) * int64(count) * e
}

// CheckHighest verifies that blocks*count*e bytes starting at base stay
// within the platform's addressable range and inside base itself. It returns
// the total span.
func CheckHighest(base []byte, blocks, count int, e int64) (int64, error) {
	per, ok := mul(int64(count), e)
	var total int64
	if ok {
		total, ok = mul(per, int64(blocks))
	}
	if !ok {
		return 0, api.Errorf(api.ErrCodeBufferOverflowRisk,
			"highest offset %d*%d*%d exceeds addressable range", blocks, count, e).
			WithContext("blocks", blocks).WithContext("count", count).WithContext("extent", e)
	}
	if total > 0 && len(base) > 0 {
		addr := uintptr(unsafe.Pointer(unsafe.SliceData(base)))
		if addr+uintptr(total) < addr {
			return 0, api.Errorf(api.ErrCodeBufferOverflowRisk, "base %#x + %d wraps the address space", addr, total)
		}
	}
	if total > int64(len(base)) {
		return 0, api.Errorf(api.ErrCodeBufferOverflowRisk,
			"buffer of %d bytes is shorter than the %d bytes addressed", len(base), total).
			WithContext("blocks", blocks).WithContext("count", count).WithContext("extent", e)
	}
	return total, nil
}

// Block returns the bytes of logical block i.
func Block(buf []byte, i, count int, e int64) []byte {
	off := BlockOffset(i, count, e)
	n := int64(count) * e
	return buf[off : off+n : off+n]
}

// Blocks returns n consecutive logical blocks starting at block i.
func Blocks(buf []byte, i, n, count int, e int64) []byte {
	off := BlockOffset(i, count, e)
	end := off + int64(n)*int64(count)*e
	return buf[off:end:end]
}

// Overlaps reports whether two byte slices share any memory.
func Overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	pa := uintptr(unsafe.Pointer(unsafe.SliceData(a)))
	pb := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	return pa < pb+uintptr(len(b)) && pb < pa+uintptr(len(a))
}
