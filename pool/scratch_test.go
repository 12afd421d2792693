package pool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-coll/pool"
)

func TestScratchAcquireRelease(t *testing.T) {
	p := pool.NewScratchPool()
	b := p.Acquire(100)
	require.Len(t, b, 100)
	assert.Equal(t, 128, cap(b))
	assert.EqualValues(t, 1, p.Stats().InUse)
	assert.EqualValues(t, 1, p.Stats().TotalAlloc)

	p.Release(b)
	assert.EqualValues(t, 0, p.Stats().InUse)

	assert.Nil(t, p.Acquire(0))
	assert.EqualValues(t, 0, p.Stats().InUse)
}

func TestScratchSmallRequestsShareClass(t *testing.T) {
	p := pool.NewScratchPool()
	b := p.Acquire(1)
	assert.Equal(t, 64, cap(b))
	p.Release(b)
}

func TestScratchForeignBufferDropped(t *testing.T) {
	p := pool.NewScratchPool()
	b := p.Acquire(10)
	p.Release(b)
	p.Release(make([]byte, 100)) // cap 100 is no class size
	assert.EqualValues(t, 0, p.Stats().InUse)
}

func TestSyncPoolCountsFresh(t *testing.T) {
	sp := pool.NewSyncPool(func() *int { v := 7; return &v })
	v, reused := sp.Get()
	assert.False(t, reused)
	assert.Equal(t, 7, *v)
	assert.EqualValues(t, 1, sp.Fresh())
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, pool.Default(), pool.Default())
}
