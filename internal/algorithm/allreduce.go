// File: internal/algorithm/allreduce.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package algorithm

import (
	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/extent"
	"github.com/momentics/hioload-coll/internal/schedule"
)

// ReduceBuilder is the shared signature of allreduce patterns. send and recv
// hold count elements each; recv receives the reduction over all ranks.
type ReduceBuilder func(send, recv api.Region, op api.ReduceOp, comm *api.Comm, s *schedule.Schedule) error

// Allreduce emits alg into s.
func Allreduce(alg api.Algorithm, send, recv api.Region, op api.ReduceOp, comm *api.Comm, s *schedule.Schedule) error {
	switch alg {
	case api.AlgRecursiveDoubling:
		return AllreduceRecursiveDoubling(send, recv, op, comm, s)
	case api.AlgRing:
		return AllreduceRing(send, recv, op, comm, s)
	}
	return api.Errorf(api.ErrCodeNotSupported, "no allreduce builder for %s", alg)
}

func allreduceCheck(comm *api.Comm) error {
	if comm.IsInter() {
		return api.Errorf(api.ErrCodeNotSupported, "allreduce on an intercommunicator")
	}
	return nil
}

// AllreduceRecursiveDoubling exchanges the whole partial result with
// rank XOR 2^k in round k and folds it in. The lower rank's operand always
// comes first so every rank computes the same value.
func AllreduceRecursiveDoubling(send, recv api.Region, op api.ReduceOp, comm *api.Comm, s *schedule.Schedule) error {
	if err := allreduceCheck(comm); err != nil {
		return err
	}
	if zero(send, recv) {
		return nil
	}
	n, rank := comm.Size(), comm.Rank()
	if !IsPowerOfTwo(n) {
		return api.Errorf(api.ErrCodeNotSupported, "recursive doubling needs a power-of-two size, got %d", n)
	}
	span, err := extent.CheckHighest(recv.Buf, 1, recv.Count, recv.Type.Extent)
	if err != nil {
		return err
	}
	acc := api.NewRegion(recv.Buf[:span], recv.Count, recv.Type)
	if !send.IsInPlace() {
		if err := s.Copy(send, acc); err != nil {
			return err
		}
		s.Barrier()
	}
	if n == 1 {
		return nil
	}
	tmp := api.NewRegion(s.Scratch(int(span)), recv.Count, recv.Type)

	for mask := 1; mask < n; mask <<= 1 {
		dst := rank ^ mask
		if err := s.Send(dst, acc); err != nil {
			return err
		}
		if err := s.Recv(dst, tmp); err != nil {
			return err
		}
		s.Barrier()
		if dst < rank {
			if err := s.Reduce(op, tmp, acc); err != nil {
				return err
			}
		} else {
			if err := s.Reduce(op, acc, tmp); err != nil {
				return err
			}
			s.Barrier()
			if err := s.Copy(tmp, acc); err != nil {
				return err
			}
		}
		s.Barrier()
	}
	return nil
}

// AllreduceRing gathers every contribution with the ring allgather into a
// scratch buffer, then folds the blocks locally in rank order.
func AllreduceRing(send, recv api.Region, op api.ReduceOp, comm *api.Comm, s *schedule.Schedule) error {
	if err := allreduceCheck(comm); err != nil {
		return err
	}
	if zero(send, recv) {
		return nil
	}
	n := comm.Size()
	span, err := extent.CheckHighest(recv.Buf, 1, recv.Count, recv.Type.Extent)
	if err != nil {
		return err
	}
	local := send
	if send.IsInPlace() {
		local = api.NewRegion(recv.Buf[:span], recv.Count, recv.Type)
	}
	all := blocks{buf: s.Scratch(int(span) * n), count: recv.Count, t: recv.Type}
	if err := Ring(local, api.NewRegion(all.buf, recv.Count, recv.Type), comm, s); err != nil {
		return err
	}
	s.Barrier()

	acc := api.NewRegion(recv.Buf[:span], recv.Count, recv.Type)
	if err := s.Copy(all.slot(0), acc); err != nil {
		return err
	}
	s.Barrier()
	// acc = acc op block_i keeps lower ranks on the left
	for i := 1; i < n; i++ {
		blk := all.slot(i)
		if err := s.Reduce(op, acc, blk); err != nil {
			return err
		}
		s.Barrier()
		if err := s.Copy(blk, acc); err != nil {
			return err
		}
		s.Barrier()
	}
	return nil
}
