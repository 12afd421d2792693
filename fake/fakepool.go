// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"sync"

	"github.com/momentics/hioload-coll/api"
)

// BytePool is a counting api.BytePool for leak checks.
type BytePool struct {
	mu       sync.Mutex
	acquired int
	released int
}

var _ api.BytePool = (*BytePool)(nil)

func (p *BytePool) Acquire(n int) []byte {
	p.mu.Lock()
	p.acquired++
	p.mu.Unlock()
	return make([]byte, n)
}

func (p *BytePool) Release(_ []byte) {
	p.mu.Lock()
	p.released++
	p.mu.Unlock()
}

// Outstanding is acquisitions not yet released.
func (p *BytePool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired - p.released
}

// Counts returns acquire and release totals.
func (p *BytePool) Counts() (acquired, released int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired, p.released
}
