// File: api/comm.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "sync/atomic"

// CommKind distinguishes intra- from intercommunicators.
type CommKind int

const (
	IntraComm CommKind = iota
	InterComm
)

func (k CommKind) String() string {
	if k == InterComm {
		return "inter"
	}
	return "intra"
}

// Comm is a group of ranks bound to a transport endpoint. It is owned by the
// surrounding runtime; collectives only read it, except for the tag sequence.
type Comm struct {
	rank       int
	size       int
	remoteSize int
	kind       CommKind
	contextID  uint32
	transport  Transport

	seq   atomic.Uint32
	freed atomic.Bool
}

// NewIntraComm describes rank out of size ranks communicating over t.
func NewIntraComm(t Transport, rank, size int, contextID uint32) (*Comm, error) {
	if t == nil {
		return nil, Errorf(ErrCodeInvalidArgument, "nil transport")
	}
	if size <= 0 || rank < 0 || rank >= size {
		return nil, Errorf(ErrCodeInvalidArgument, "rank %d outside communicator of size %d", rank, size)
	}
	return &Comm{rank: rank, size: size, kind: IntraComm, contextID: contextID, transport: t}, nil
}

// NewInterComm describes rank of a localSize group talking to a remoteSize group.
func NewInterComm(t Transport, rank, localSize, remoteSize int, contextID uint32) (*Comm, error) {
	if remoteSize <= 0 {
		return nil, Errorf(ErrCodeInvalidArgument, "remote group size %d", remoteSize)
	}
	c, err := NewIntraComm(t, rank, localSize, contextID)
	if err != nil {
		return nil, err
	}
	c.kind = InterComm
	c.remoteSize = remoteSize
	return c, nil
}

func (c *Comm) Rank() int { return c.rank }
func (c *Comm) Size() int { return c.size }
func (c *Comm) Kind() CommKind { return c.kind }
func (c *Comm) IsInter() bool { return c.kind == InterComm }
func (c *Comm) ContextID() uint32 { return c.contextID }
func (c *Comm) Transport() Transport { return c.transport }

// RemoteSize is the size of the remote group, zero for intracommunicators.
func (c *Comm) RemoteSize() int { return c.remoteSize }

// PeerCount is the number of ranks data is gathered from: the remote group
// for an intercommunicator, the local group otherwise.
func (c *Comm) PeerCount() int {
	if c.kind == InterComm {
		return c.remoteSize
	}
	return c.size
}

// NextTag reserves the tag of the next collective call.
func (c *Comm) NextTag() Tag {
	return MakeTag(c.contextID, c.seq.Add(1))
}

// Free invalidates the handle; later use fails with ErrCodeInvalidHandle.
func (c *Comm) Free() { c.freed.Store(true) }

// Valid reports handle validity.
func (c *Comm) Valid() error {
	if c == nil || c.freed.Load() {
		return Errorf(ErrCodeInvalidHandle, "invalid communicator handle")
	}
	return nil
}
