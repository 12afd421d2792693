// File: transport/mem/fabric.go
// Package mem is an in-process point-to-point fabric implementing api.Transport.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Every endpoint owns an unexpected-message queue and a posted-receive queue
// per (source, tag) pair, matched in FIFO order like a classic eager MPI
// channel. Sends copy their payload and complete immediately.

package mem

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-coll/api"
)

var (
	// ErrClosed is returned by operations on a closed endpoint.
	ErrClosed = errors.New("mem: endpoint closed")
	// ErrUnknownToken is returned by Poll for a token it never issued or already released.
	ErrUnknownToken = errors.New("mem: unknown token")
	// ErrTruncated reports a message whose length differs from the posted receive.
	ErrTruncated = errors.New("mem: message length mismatch")
	// ErrPeer reports a peer rank outside the group.
	ErrPeer = errors.New("mem: peer out of range")
)

type key struct {
	src int
	tag api.Tag
}

type message struct {
	data []byte
}

type op struct {
	buf      []byte
	done     bool
	canceled bool
	err      error
}

// Fabric connects a fixed set of endpoints.
type Fabric struct {
	mu        sync.Mutex
	endpoints []*Endpoint

	delivered atomic.Int64
}

// Endpoint is one rank's attachment to a Fabric. It is safe for concurrent use.
type Endpoint struct {
	fabric   *Fabric
	rank     int // rank inside the local group, seen by peers as the source
	global   int
	peerBase int // global index of peer 0
	peers    int

	unexpected map[key]*queue.Queue
	posted     map[key]*queue.Queue
	tokens     map[api.Token]*op
	next       api.Token
	closed     bool
}

var (
	_ api.Transport     = (*Endpoint)(nil)
	_ api.TokenCanceler = (*Endpoint)(nil)
)

// NewFabric creates n endpoints forming one intra group.
func NewFabric(n int) *Fabric {
	f := &Fabric{}
	for i := 0; i < n; i++ {
		f.endpoints = append(f.endpoints, f.newEndpoint(i, i, 0, n))
	}
	return f
}

// NewInterFabric creates two groups of sizes a and b. Endpoints 0..a-1 form
// group A and address group B's ranks as peers; endpoints a..a+b-1 form
// group B and address group A.
func NewInterFabric(a, b int) *Fabric {
	f := &Fabric{}
	for i := 0; i < a; i++ {
		f.endpoints = append(f.endpoints, f.newEndpoint(i, i, a, b))
	}
	for i := 0; i < b; i++ {
		f.endpoints = append(f.endpoints, f.newEndpoint(i, a+i, 0, a))
	}
	return f
}

func (f *Fabric) newEndpoint(rank, global, base, peers int) *Endpoint {
	return &Endpoint{
		fabric:     f,
		rank:       rank,
		global:     global,
		peerBase:   base,
		peers:      peers,
		unexpected: make(map[key]*queue.Queue),
		posted:     make(map[key]*queue.Queue),
		tokens:     make(map[api.Token]*op),
	}
}

// Endpoint returns the endpoint with global index i.
func (f *Fabric) Endpoint(i int) *Endpoint { return f.endpoints[i] }

// Len is the number of endpoints.
func (f *Fabric) Len() int { return len(f.endpoints) }

// Delivered counts messages matched to a receive so far.
func (f *Fabric) Delivered() int64 { return f.delivered.Load() }

// Rank is the endpoint's rank in its own group.
func (e *Endpoint) Rank() int { return e.rank }

// Peers is the number of addressable peers.
func (e *Endpoint) Peers() int { return e.peers }

// Close fails every later post. Receives still pending complete with ErrClosed.
func (e *Endpoint) Close() {
	e.fabric.mu.Lock()
	defer e.fabric.mu.Unlock()
	e.closed = true
	for _, o := range e.tokens {
		if !o.done {
			o.done, o.err = true, ErrClosed
		}
	}
}

func (e *Endpoint) issue(o *op) api.Token {
	e.next++
	e.tokens[e.next] = o
	return e.next
}

func pop(m map[key]*queue.Queue, k key) any {
	q := m[k]
	if q == nil || q.Length() == 0 {
		return nil
	}
	v := q.Remove()
	if q.Length() == 0 {
		delete(m, k)
	}
	return v
}

func push(m map[key]*queue.Queue, k key, v any) {
	q := m[k]
	if q == nil {
		q = queue.New()
		m[k] = q
	}
	q.Add(v)
}

func fill(o *op, data []byte) {
	if len(data) != len(o.buf) {
		o.err = fmt.Errorf("%w: got %d bytes, expected %d", ErrTruncated, len(data), len(o.buf))
	} else {
		copy(o.buf, data)
	}
	o.done = true
}

// PostSend implements api.Transport.
func (e *Endpoint) PostSend(dest int, tag api.Tag, data []byte) (api.Token, error) {
	f := e.fabric
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}
	if dest < 0 || dest >= e.peers {
		return 0, fmt.Errorf("%w: %d of %d", ErrPeer, dest, e.peers)
	}
	target := f.endpoints[e.peerBase+dest]
	k := key{src: e.rank, tag: tag}
	delivered := false
	for {
		v := pop(target.posted, k)
		if v == nil {
			break
		}
		if r := v.(*op); !r.canceled {
			fill(r, data)
			delivered = true
			break
		}
	}
	if delivered {
		f.delivered.Add(1)
	} else {
		push(target.unexpected, k, &message{data: append([]byte(nil), data...)})
	}
	return e.issue(&op{done: true}), nil
}

// PostRecv implements api.Transport.
func (e *Endpoint) PostRecv(src int, tag api.Tag, buf []byte) (api.Token, error) {
	f := e.fabric
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}
	if src < 0 || src >= e.peers {
		return 0, fmt.Errorf("%w: %d of %d", ErrPeer, src, e.peers)
	}
	o := &op{buf: buf}
	k := key{src: src, tag: tag}
	if v := pop(e.unexpected, k); v != nil {
		fill(o, v.(*message).data)
		f.delivered.Add(1)
	} else {
		push(e.posted, k, o)
	}
	return e.issue(o), nil
}

// Poll implements api.Transport.
func (e *Endpoint) Poll(tok api.Token) (bool, error) {
	e.fabric.mu.Lock()
	defer e.fabric.mu.Unlock()
	o, ok := e.tokens[tok]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownToken, tok)
	}
	if !o.done {
		return false, nil
	}
	delete(e.tokens, tok)
	return true, o.err
}

// CancelToken withdraws a pending receive. Completed tokens are released.
func (e *Endpoint) CancelToken(tok api.Token) {
	e.fabric.mu.Lock()
	defer e.fabric.mu.Unlock()
	if o, ok := e.tokens[tok]; ok {
		o.canceled = true
		delete(e.tokens, tok)
	}
}

// Pending reports queued unexpected messages and posted receives.
func (e *Endpoint) Pending() (unexpected, posted int) {
	e.fabric.mu.Lock()
	defer e.fabric.mu.Unlock()
	for _, q := range e.unexpected {
		unexpected += q.Length()
	}
	for _, q := range e.posted {
		posted += q.Length()
	}
	return unexpected, posted
}
