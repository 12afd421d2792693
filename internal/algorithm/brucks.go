// File: internal/algorithm/brucks.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package algorithm

import (
	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/extent"
	"github.com/momentics/hioload-coll/internal/schedule"
)

// Brucks is the dissemination allgather of Bruck et al. Blocks are assembled
// in a scratch buffer where block i holds the contribution of rank
// (rank+i) mod n. Round k sends everything gathered so far to rank-2^k and
// receives as much from rank+2^k; a last partial round covers the remainder
// when n is not a power of two. The final step shifts the scratch buffer by
// rank positions into the receive buffer to restore rank order.
func Brucks(send, recv api.Region, comm *api.Comm, s *schedule.Schedule) error {
	if zero(send, recv) {
		return nil
	}
	n, rank := comm.Size(), comm.Rank()
	span, err := extent.CheckHighest(recv.Buf, n, recv.Count, recv.Type.Extent)
	if err != nil {
		return err
	}
	b := newBlocks(recv)
	tmp := blocks{buf: s.Scratch(int(span)), count: recv.Count, t: recv.Type}

	local := send
	if send.IsInPlace() {
		local = b.slot(rank)
	}
	if err := s.Copy(local, tmp.slot(0)); err != nil {
		return err
	}
	s.Barrier()

	have, pof2 := 1, 1
	for pof2 <= n/2 {
		src := (rank + pof2) % n
		dst := (rank - pof2 + n) % n
		if err := s.Send(dst, tmp.run(0, have)); err != nil {
			return err
		}
		if err := s.Recv(src, tmp.run(have, have)); err != nil {
			return err
		}
		s.Barrier()
		have *= 2
		pof2 *= 2
	}
	if rem := n - pof2; rem > 0 {
		src := (rank + pof2) % n
		dst := (rank - pof2 + n) % n
		if err := s.Send(dst, tmp.run(0, rem)); err != nil {
			return err
		}
		if err := s.Recv(src, tmp.run(have, rem)); err != nil {
			return err
		}
		s.Barrier()
	}

	// shift by rank positions: tmp[0, n-rank) -> recv[rank, n), tmp[n-rank, n) -> recv[0, rank)
	if err := s.Copy(tmp.run(0, n-rank), b.run(rank, n-rank)); err != nil {
		return err
	}
	if rank > 0 {
		if err := s.Copy(tmp.run(n-rank, rank), b.run(0, rank)); err != nil {
			return err
		}
	}
	s.Barrier()
	return nil
}
