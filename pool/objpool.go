// File: pool/objpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync"
	"sync/atomic"
)

// SyncPool is a typed sync.Pool that tells fresh allocations from reuse.
type SyncPool[T any] struct {
	pool  sync.Pool
	alloc func() T
	fresh atomic.Int64
}

// NewSyncPool creates a pool allocating with alloc when empty.
func NewSyncPool[T any](alloc func() T) *SyncPool[T] {
	return &SyncPool[T]{alloc: alloc}
}

// Get returns a pooled value, or a fresh one with reused == false.
func (p *SyncPool[T]) Get() (v T, reused bool) {
	if v, ok := p.pool.Get().(T); ok {
		return v, true
	}
	p.fresh.Add(1)
	return p.alloc(), false
}

// Put returns v to the pool.
func (p *SyncPool[T]) Put(v T) { p.pool.Put(v) }

// Fresh counts values allocated because the pool was empty.
func (p *SyncPool[T]) Fresh() int64 { return p.fresh.Load() }
