// File: internal/algorithm/recursive_doubling.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package algorithm

import (
	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/extent"
	"github.com/momentics/hioload-coll/internal/schedule"
)

// RecursiveDoubling runs log2(n) rounds; in round k the rank exchanges with
// rank XOR 2^k every block it knows so far, which is the contiguous run of
// 2^k blocks starting at its subtree root. Only power-of-two sizes are
// supported; other sizes are routed to Brucks by the caller.
func RecursiveDoubling(send, recv api.Region, comm *api.Comm, s *schedule.Schedule) error {
	if zero(send, recv) {
		return nil
	}
	n, rank := comm.Size(), comm.Rank()
	if !IsPowerOfTwo(n) {
		return api.Errorf(api.ErrCodeNotSupported, "recursive doubling needs a power-of-two size, got %d", n)
	}
	if _, err := extent.CheckHighest(recv.Buf, n, recv.Count, recv.Type.Extent); err != nil {
		return err
	}
	b := newBlocks(recv)

	if !send.IsInPlace() {
		if err := s.Copy(send, b.slot(rank)); err != nil {
			return err
		}
		s.Barrier()
	}

	for mask, i := 1, 0; mask < n; mask, i = mask<<1, i+1 {
		dst := rank ^ mask
		myRoot := rank >> i << i
		dstRoot := dst >> i << i
		if err := s.Send(dst, b.run(myRoot, mask)); err != nil {
			return err
		}
		if err := s.Recv(dst, b.run(dstRoot, mask)); err != nil {
			return err
		}
		s.Barrier()
	}
	return nil
}
