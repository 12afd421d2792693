// File: rma/window.go
// Package rma implements one-sided windows with generalized active target
// synchronization (post/start/complete/wait).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// An origin opens an access epoch with Start, queues puts and accumulates,
// and flushes them with Complete. A target opens an exposure epoch with Post
// and closes it with Wait, which applies incoming operations in arrival order
// until every origin of its group has signalled completion.

package rma

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/concurrency"
	"github.com/momentics/hioload-coll/internal/reduce"
	"github.com/momentics/hioload-coll/internal/schedule"
)

// contextBit separates window traffic from collective traffic on a communicator.
const contextBit = 1 << 31

type pending struct {
	target int
	hdr    header
	data   []byte
}

// Window exposes Buf to the other ranks of an intracommunicator.
type Window struct {
	comm *api.Comm
	buf  []byte
	tag  api.Tag
	log  *slog.Logger

	mu       sync.Mutex
	freed    bool
	access   []int // start group, nil when no access epoch is open
	exposure []int // post group, nil when no exposure epoch is open
	queue    []pending
}

// New creates a window over buf. Every rank of comm must create its windows
// in the same order. A nil logger falls back to slog.Default.
func New(comm *api.Comm, buf []byte, log *slog.Logger) (*Window, error) {
	if err := comm.Valid(); err != nil {
		return nil, err
	}
	if comm.IsInter() {
		return nil, api.Errorf(api.ErrCodeNotSupported, "windows over intercommunicators")
	}
	if log == nil {
		log = slog.Default()
	}
	// epochs are delimited by done markers, so one tag serves the window's lifetime
	seq := uint32(comm.NextTag())
	return &Window{
		comm: comm,
		buf:  buf,
		tag:  api.MakeTag(comm.ContextID()|contextBit, seq),
		log:  log.With("component", "rma", "rank", comm.Rank()),
	}, nil
}

// Buf is the exposed memory.
func (w *Window) Buf() []byte { return w.buf }

func (w *Window) valid() error {
	if w == nil || w.freed {
		return api.Errorf(api.ErrCodeInvalidHandle, "invalid window handle")
	}
	return w.comm.Valid()
}

func (w *Window) checkGroup(group []int) ([]int, error) {
	if len(group) == 0 {
		return nil, api.Errorf(api.ErrCodeInvalidArgument, "empty group")
	}
	seen := make(map[int]bool, len(group))
	for _, r := range group {
		if r < 0 || r >= w.comm.Size() {
			return nil, api.Errorf(api.ErrCodeInvalidArgument, "rank %d outside window of size %d", r, w.comm.Size())
		}
		if seen[r] {
			return nil, api.Errorf(api.ErrCodeInvalidArgument, "rank %d listed twice", r)
		}
		seen[r] = true
	}
	return append([]int(nil), group...), nil
}

// Post opens an exposure epoch for the origins in group.
func (w *Window) Post(group []int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.valid(); err != nil {
		return err
	}
	if w.exposure != nil {
		return api.Errorf(api.ErrCodeRMASync, "exposure epoch already open")
	}
	g, err := w.checkGroup(group)
	if err != nil {
		return err
	}
	w.exposure = g
	return nil
}

// Start opens an access epoch to the targets in group.
func (w *Window) Start(group []int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.valid(); err != nil {
		return err
	}
	if w.access != nil {
		return api.Errorf(api.ErrCodeRMASync, "access epoch already open")
	}
	g, err := w.checkGroup(group)
	if err != nil {
		return err
	}
	w.access = g
	return nil
}

func (w *Window) enqueue(target int, h header, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.valid(); err != nil {
		return err
	}
	if w.access == nil {
		return api.Errorf(api.ErrCodeRMASync, "no access epoch open")
	}
	member := false
	for _, r := range w.access {
		member = member || r == target
	}
	if !member {
		return api.Errorf(api.ErrCodeRMASync, "rank %d is not in the access group", target)
	}
	h.length = uint64(len(data))
	w.queue = append(w.queue, pending{target: target, hdr: h, data: append([]byte(nil), data...)})
	return nil
}

// Put queues a copy of data to offset in target's window.
func (w *Window) Put(target int, offset uint64, data []byte) error {
	return w.enqueue(target, header{kind: msgPut, offset: offset}, data)
}

// Accumulate queues target[offset:] = data op target[offset:], data being
// packed elements of the contiguous type t.
func (w *Window) Accumulate(target int, offset uint64, data []byte, op api.ReduceOp, t api.Datatype) error {
	if !t.IsContiguous() || t.Lanes != 1 {
		return api.Errorf(api.ErrCodeInvalidDatatype, "accumulate needs a predefined type, got %q", t.Name)
	}
	if err := reduce.Check(op, t); err != nil {
		return err
	}
	if int64(len(data))%t.Size() != 0 {
		return api.Errorf(api.ErrCodeInvalidCount, "%d bytes is not a whole number of %s", len(data), t.Name)
	}
	return w.enqueue(target, header{kind: msgAccumulate, op: op, elem: t.Kind, offset: offset}, data)
}

// Complete flushes queued operations, sends the completion marker to every
// target of the access group and closes the access epoch.
func (w *Window) Complete(ctx context.Context) error {
	w.mu.Lock()
	if err := w.valid(); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.access == nil {
		w.mu.Unlock()
		return api.Errorf(api.ErrCodeRMASync, "complete without an open access epoch")
	}
	group, ops := w.access, w.queue
	w.access, w.queue = nil, nil
	w.mu.Unlock()

	// one phase: per-target FIFO matching keeps operation order
	s := schedule.New(w.tag, w.comm.Size(), nil)
	headers := make([]byte, headerLen*(len(ops)+len(group)))
	next := func(h header) api.Region {
		b := headers[:headerLen:headerLen]
		headers = headers[headerLen:]
		h.encode(b)
		return api.NewRegion(b, headerLen, api.Byte)
	}
	for _, op := range ops {
		if err := s.Send(op.target, next(op.hdr)); err != nil {
			return err
		}
		if len(op.data) > 0 {
			if err := s.Send(op.target, api.NewRegion(op.data, len(op.data), api.Byte)); err != nil {
				return err
			}
		}
	}
	for _, target := range group {
		if err := s.Send(target, next(header{kind: msgDone})); err != nil {
			return err
		}
	}
	w.log.Debug("access epoch complete", "ops", len(ops), "targets", len(group))
	return schedule.RunBlocking(ctx, s, w.comm.Transport())
}

// origin tracks the receive currently posted for one origin during Wait.
type origin struct {
	rank    int
	hdrBuf  []byte
	hdr     header
	payload []byte
	token   api.Token
	inBody  bool
	done    bool
}

// Wait applies operations from every origin of the exposure group until each
// has completed its access epoch, then closes the exposure epoch. If ctx ends
// first the epoch stays open.
func (w *Window) Wait(ctx context.Context) error {
	w.mu.Lock()
	if err := w.valid(); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.exposure == nil {
		w.mu.Unlock()
		return api.Errorf(api.ErrCodeRMASync, "wait without an open exposure epoch")
	}
	group, tag := w.exposure, w.tag
	w.mu.Unlock()

	t := w.comm.Transport()
	origins := make([]*origin, len(group))
	for i, r := range group {
		o := &origin{rank: r, hdrBuf: make([]byte, headerLen)}
		if err := w.postHeader(t, tag, o); err != nil {
			return err
		}
		origins[i] = o
	}
	cancelAll := func() {
		if c, ok := t.(api.TokenCanceler); ok {
			for _, o := range origins {
				if !o.done {
					c.CancelToken(o.token)
				}
			}
		}
	}

	bo := concurrency.NewBackoff(time.Microsecond, time.Millisecond)
	defer bo.Stop()
	remaining := len(origins)
	for remaining > 0 {
		progressed := false
		for _, o := range origins {
			if o.done {
				continue
			}
			ok, err := t.Poll(o.token)
			if err != nil {
				o.done = true
				cancelAll()
				return api.WrapError(api.ErrCodeTransportFailure, err, "rma receive").WithContext("origin", o.rank)
			}
			if !ok {
				continue
			}
			progressed = true
			if err := w.step(t, tag, o); err != nil {
				o.done = true
				cancelAll()
				return err
			}
			if o.done {
				remaining--
			}
		}
		if progressed {
			bo.Reset()
			continue
		}
		if err := bo.Wait(ctx, nil); err != nil {
			cancelAll()
			return api.WrapError(api.ErrCodeCanceled, err, "rma wait interrupted")
		}
	}

	w.mu.Lock()
	w.exposure = nil
	w.mu.Unlock()
	w.log.Debug("exposure epoch complete", "origins", len(group))
	return nil
}

func (w *Window) postHeader(t api.Transport, tag api.Tag, o *origin) error {
	tok, err := t.PostRecv(o.rank, tag, o.hdrBuf)
	if err != nil {
		return api.WrapError(api.ErrCodeTransportFailure, err, "post rma header receive").WithContext("origin", o.rank)
	}
	o.token, o.inBody = tok, false
	return nil
}

// step handles a completed receive of o and posts the next one.
func (w *Window) step(t api.Transport, tag api.Tag, o *origin) error {
	if o.inBody {
		if err := w.apply(o.hdr, o.payload); err != nil {
			return err
		}
		return w.postHeader(t, tag, o)
	}
	h, err := decodeHeader(o.hdrBuf)
	if err != nil {
		return err
	}
	switch {
	case h.kind == msgDone:
		o.done = true
		return nil
	case h.length == 0:
		return w.postHeader(t, tag, o)
	}
	if size := uint64(len(w.buf)); h.length > size || h.offset > size-h.length {
		return api.Errorf(api.ErrCodeBufferOverflowRisk, "rma access [%d,+%d) outside window of %d bytes", h.offset, h.length, len(w.buf)).
			WithContext("origin", o.rank)
	}
	o.hdr = h
	o.payload = make([]byte, h.length)
	tok, err := t.PostRecv(o.rank, tag, o.payload)
	if err != nil {
		return api.WrapError(api.ErrCodeTransportFailure, err, "post rma payload receive").WithContext("origin", o.rank)
	}
	o.token, o.inBody = tok, true
	return nil
}

func (w *Window) apply(h header, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	dst := w.buf[h.offset : h.offset+h.length]
	switch h.kind {
	case msgPut:
		copy(dst, data)
	case msgAccumulate:
		t, ok := predefined(h.elem)
		if !ok {
			return api.Errorf(api.ErrCodeInvalidDatatype, "unknown element kind %d", h.elem)
		}
		if err := reduce.Check(h.op, t); err != nil {
			return err
		}
		reduce.Apply(h.op, dst, data, len(data)/int(t.Size()), t)
	}
	return nil
}

func predefined(k api.Kind) (api.Datatype, bool) {
	for _, t := range []api.Datatype{api.Byte, api.Int32, api.Int64, api.Uint32, api.Uint64, api.Float32, api.Float64} {
		if t.Kind == k {
			return t, true
		}
	}
	return api.Datatype{}, false
}

// Free invalidates the window. Open epochs must be closed first.
func (w *Window) Free() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.valid(); err != nil {
		return err
	}
	if w.access != nil || w.exposure != nil {
		return api.Errorf(api.ErrCodeRMASync, "window freed with an open epoch")
	}
	w.freed = true
	return nil
}
