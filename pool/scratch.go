// File: pool/scratch.go
// Package pool implements size-classed scratch buffers for schedules.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Buffers are grouped by power-of-two capacity; each class is a SyncPool of
// *[]byte so Put does not allocate. Requests above maxClass bypass pooling.

package pool

import (
	"math/bits"
	"sync/atomic"

	"github.com/momentics/hioload-coll/api"
)

const (
	minClassShift = 6  // 64 B
	maxClassShift = 26 // 64 MiB
)

// ScratchPool hands out temporary buffers owned by a schedule for its lifetime.
type ScratchPool struct {
	classes [maxClassShift - minClassShift + 1]*SyncPool[*[]byte]

	totalAlloc atomic.Int64
	totalReuse atomic.Int64
	inUse      atomic.Int64
}

var _ api.BytePool = (*ScratchPool)(nil)

// NewScratchPool creates an empty pool.
func NewScratchPool() *ScratchPool {
	p := &ScratchPool{}
	for i := range p.classes {
		size := 1 << (i + minClassShift)
		p.classes[i] = NewSyncPool(func() *[]byte {
			b := make([]byte, size)
			return &b
		})
	}
	return p
}

func classOf(n int) int {
	if n <= 1<<minClassShift {
		return 0
	}
	shift := bits.Len(uint(n - 1))
	if shift > maxClassShift {
		return -1
	}
	return shift - minClassShift
}

// Acquire returns an n-byte buffer; contents are undefined.
func (p *ScratchPool) Acquire(n int) []byte {
	if n <= 0 {
		return nil
	}
	p.inUse.Add(1)
	c := classOf(n)
	if c < 0 {
		p.totalAlloc.Add(1)
		return make([]byte, n)
	}
	b, reused := p.classes[c].Get()
	if reused {
		p.totalReuse.Add(1)
	} else {
		p.totalAlloc.Add(1)
	}
	return (*b)[:n]
}

// Release hands buf back. Buffers whose capacity is no class size are dropped
// without accounting.
func (p *ScratchPool) Release(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	c := classOf(cap(buf))
	switch {
	case c < 0:
		p.inUse.Add(-1)
	case cap(buf) == 1<<(c+minClassShift):
		p.inUse.Add(-1)
		b := buf[:cap(buf)]
		p.classes[c].Put(&b)
	}
}

// Stats exposes accounting for observability.
func (p *ScratchPool) Stats() api.BytePoolStats {
	return api.BytePoolStats{
		TotalAlloc: p.totalAlloc.Load(),
		TotalReuse: p.totalReuse.Load(),
		InUse:      p.inUse.Load(),
	}
}
