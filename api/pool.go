// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Defines abstract pooling APIs: reusable scratch buffers for schedules.

package api

// BytePool provides reusable []byte buffers for schedule temporaries.
type BytePool interface {
	// Acquire returns a slice of exactly n bytes.
	Acquire(n int) []byte

	// Release returns a buffer to the pool
	Release(buf []byte)
}

// BytePoolStats aggregates allocation/reuse stats.
type BytePoolStats struct {
	TotalAlloc int64
	TotalReuse int64
	InUse      int64
}
