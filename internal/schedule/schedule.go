// File: internal/schedule/schedule.go
// Package schedule expresses a collective as an ordered list of steps
// separated by barriers, advanced cooperatively against a transport.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A schedule is a tagged-variant instruction list with a program counter
// pointing at the first step of the current phase. Steps between two barriers
// form a phase and may complete in any order; a phase begins only once every
// step of the previous phase is done. Advance never blocks: it starts what is
// startable, polls what is in flight and returns.

package schedule

import (
	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/extent"
	"github.com/momentics/hioload-coll/internal/reduce"
)

// StepKind tags a step variant.
type StepKind uint8

const (
	StepSend StepKind = iota
	StepRecv
	StepCopy
	StepReduce
	StepBarrier
)

func (k StepKind) String() string {
	switch k {
	case StepSend:
		return "send"
	case StepRecv:
		return "recv"
	case StepCopy:
		return "copy"
	case StepReduce:
		return "reduce"
	default:
		return "barrier"
	}
}

type stepState uint8

const (
	statePending stepState = iota
	stateStarted
	stateDone
)

// Step is one instruction. Send reads Src, Recv writes Dst, Copy and Reduce
// read Src and write Dst.
type Step struct {
	Kind StepKind
	Peer int
	Src  api.Region
	Dst  api.Region
	Op   api.ReduceOp

	state stepState
	token api.Token
	stage []byte
}

// Schedule is owned by exactly one request and is not safe for concurrent use.
type Schedule struct {
	tag   api.Tag
	peers int
	pool  api.BytePool

	steps   []Step
	pc      int
	started bool
	done    bool
	err     error

	completed int
	scratch   [][]byte
}

// New creates an empty schedule whose messages carry tag and whose peers are
// ranks in [0, peers). pool may be nil, in which case scratch is heap allocated.
func New(tag api.Tag, peers int, pool api.BytePool) *Schedule {
	return &Schedule{tag: tag, peers: peers, pool: pool}
}

// Tag returns the message tag of the schedule.
func (s *Schedule) Tag() api.Tag { return s.tag }

func (s *Schedule) checkPeer(p int) error {
	if p < 0 || p >= s.peers {
		return api.Errorf(api.ErrCodeInvalidArgument, "peer %d outside [0,%d)", p, s.peers)
	}
	return nil
}

func (s *Schedule) push(st Step) error {
	if s.started {
		return api.Errorf(api.ErrCodeAlreadyInProgress, "schedule already started")
	}
	s.steps = append(s.steps, st)
	return nil
}

// Send appends a send of r to dest.
func (s *Schedule) Send(dest int, r api.Region) error {
	if err := s.checkPeer(dest); err != nil {
		return err
	}
	return s.push(Step{Kind: StepSend, Peer: dest, Src: r})
}

// Recv appends a receive from src into r.
func (s *Schedule) Recv(src int, r api.Region) error {
	if err := s.checkPeer(src); err != nil {
		return err
	}
	return s.push(Step{Kind: StepRecv, Peer: src, Dst: r})
}

// Copy appends a local copy; the packed sizes of src and dst must match.
func (s *Schedule) Copy(src, dst api.Region) error {
	if src.Bytes() != dst.Bytes() {
		return api.Errorf(api.ErrCodeInvalidCount, "copy of %d bytes into %d bytes", src.Bytes(), dst.Bytes())
	}
	return s.push(Step{Kind: StepCopy, Src: src, Dst: dst})
}

// Reduce appends dst = src op dst; both regions must share count and type.
func (s *Schedule) Reduce(op api.ReduceOp, src, dst api.Region) error {
	if src.Count != dst.Count || src.Type != dst.Type {
		return api.Errorf(api.ErrCodeInvalidDatatype, "reduce operands differ in layout")
	}
	if err := reduce.Check(op, dst.Type); err != nil {
		return err
	}
	return s.push(Step{Kind: StepReduce, Op: op, Src: src, Dst: dst})
}

// Barrier closes the current phase. Leading and repeated barriers are dropped.
func (s *Schedule) Barrier() {
	if n := len(s.steps); n == 0 || s.steps[n-1].Kind == StepBarrier {
		return
	}
	_ = s.push(Step{Kind: StepBarrier})
}

// Scratch returns an n-byte temporary owned by the schedule until Release.
func (s *Schedule) Scratch(n int) []byte {
	var b []byte
	if s.pool != nil {
		b = s.pool.Acquire(n)
	} else {
		b = make([]byte, n)
	}
	s.scratch = append(s.scratch, b)
	return b
}

// Release returns scratch buffers to the pool. It is idempotent.
func (s *Schedule) Release() {
	if s.pool != nil {
		for _, b := range s.scratch {
			s.pool.Release(b)
		}
	}
	s.scratch = nil
}

// Len is the number of non-barrier steps.
func (s *Schedule) Len() int {
	n := 0
	for i := range s.steps {
		if s.steps[i].Kind != StepBarrier {
			n++
		}
	}
	return n
}

// Phases returns the steps grouped by barrier, without the barrier markers.
func (s *Schedule) Phases() [][]Step {
	var out [][]Step
	var cur []Step
	for _, st := range s.steps {
		if st.Kind == StepBarrier {
			out = append(out, cur)
			cur = nil
			continue
		}
		cur = append(cur, st)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// Started reports whether any step has been issued.
func (s *Schedule) Started() bool { return s.started }

// Done reports whether the schedule finished, successfully or not.
func (s *Schedule) Done() bool { return s.done }

// Err is the first failure, if any.
func (s *Schedule) Err() error { return s.err }

// Completed counts finished steps; it grows monotonically while advancing.
func (s *Schedule) Completed() int { return s.completed }

// Abort finishes the schedule with err before it has started.
func (s *Schedule) Abort(err error) error {
	if s.started {
		return api.Errorf(api.ErrCodeAlreadyInProgress, "schedule already started")
	}
	s.done = true
	s.err = err
	s.Release()
	return nil
}

// Stop finishes an unfinished schedule with err: in-flight operations the
// transport can cancel are withdrawn and scratch is released. After Stop no
// step touches the caller's buffers.
func (s *Schedule) Stop(t api.Transport, err error) {
	if s.done {
		return
	}
	s.fail(t, err)
}

// Advance makes as much progress as possible without blocking and reports
// whether the schedule is finished together with its terminal error.
func (s *Schedule) Advance(t api.Transport) (bool, error) {
	for !s.done {
		end := s.pc
		for end < len(s.steps) && s.steps[end].Kind != StepBarrier {
			end++
		}
		complete := true
		for i := s.pc; i < end; i++ {
			st := &s.steps[i]
			if st.state == statePending {
				s.started = true
				if err := s.start(st, t); err != nil {
					s.fail(t, err)
					return true, s.err
				}
			}
			if st.state == stateStarted {
				ok, err := t.Poll(st.token)
				if err != nil {
					s.fail(t, api.WrapError(api.ErrCodeTransportFailure, err, st.Kind.String()+" failed").
						WithContext("peer", st.Peer))
					return true, s.err
				}
				if ok {
					s.finish(st)
				}
			}
			if st.state != stateDone {
				complete = false
			}
		}
		if !complete {
			return false, nil
		}
		if end >= len(s.steps) {
			s.done = true
			s.Release()
			break
		}
		s.pc = end + 1
	}
	return true, s.err
}

func (s *Schedule) start(st *Step, t api.Transport) error {
	switch st.Kind {
	case StepSend:
		data := st.Src.Buf[:extent.PackedLen(st.Src.Count, st.Src.Type)]
		if !st.Src.Type.IsContiguous() {
			data = make([]byte, extent.PackedLen(st.Src.Count, st.Src.Type))
			extent.Pack(data, st.Src.Buf, st.Src.Count, st.Src.Type)
		}
		tok, err := t.PostSend(st.Peer, s.tag, data)
		if err != nil {
			return api.WrapError(api.ErrCodeTransportFailure, err, "post send").WithContext("peer", st.Peer)
		}
		st.token, st.state = tok, stateStarted
	case StepRecv:
		buf := st.Dst.Buf[:extent.PackedLen(st.Dst.Count, st.Dst.Type)]
		if !st.Dst.Type.IsContiguous() {
			st.stage = make([]byte, extent.PackedLen(st.Dst.Count, st.Dst.Type))
			buf = st.stage
		}
		tok, err := t.PostRecv(st.Peer, s.tag, buf)
		if err != nil {
			return api.WrapError(api.ErrCodeTransportFailure, err, "post recv").WithContext("peer", st.Peer)
		}
		st.token, st.state = tok, stateStarted
	case StepCopy:
		extent.Convert(st.Dst.Buf, st.Dst.Count, st.Dst.Type, st.Src.Buf, st.Src.Count, st.Src.Type)
		s.finish(st)
	case StepReduce:
		reduce.Apply(st.Op, st.Dst.Buf, st.Src.Buf, st.Dst.Count, st.Dst.Type)
		s.finish(st)
	}
	return nil
}

func (s *Schedule) finish(st *Step) {
	if st.Kind == StepRecv && st.stage != nil {
		extent.Unpack(st.Dst.Buf, st.stage, st.Dst.Count, st.Dst.Type)
		st.stage = nil
	}
	st.state = stateDone
	s.completed++
}

// fail records err, withdraws in-flight operations the transport can cancel
// and stops the schedule.
func (s *Schedule) fail(t api.Transport, err error) {
	if c, ok := t.(api.TokenCanceler); ok {
		for i := s.pc; i < len(s.steps) && s.steps[i].Kind != StepBarrier; i++ {
			if s.steps[i].state == stateStarted {
				c.CancelToken(s.steps[i].token)
			}
		}
	}
	s.err = err
	s.done = true
	s.Release()
}
