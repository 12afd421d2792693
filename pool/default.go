// File: pool/default.go
// Author: momentics <momentics@gmail.com>

package pool

import "sync"

var (
	defaultOnce sync.Once
	defaultPool *ScratchPool
)

// Default returns the process-wide scratch pool so every schedule reuses the
// same size classes instead of fragmenting allocations.
func Default() *ScratchPool {
	defaultOnce.Do(func() {
		defaultPool = NewScratchPool()
	})
	return defaultPool
}
