// File: internal/algorithm/ring.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package algorithm

import (
	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/extent"
	"github.com/momentics/hioload-coll/internal/schedule"
)

// Ring passes blocks to the right neighbor for n-1 rounds. Round k forwards
// the block received in round k-1 (the local block in round 1) and receives
// the block of rank (rank-k) mod n from the left, so the receive buffer
// fills in reverse rank order. Each round ends in a barrier because the
// block just received is the one forwarded next.
func Ring(send, recv api.Region, comm *api.Comm, s *schedule.Schedule) error {
	if zero(send, recv) {
		return nil
	}
	n, rank := comm.Size(), comm.Rank()
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

	left := (n + rank - 1) % n
	right := (rank + 1) % n
	j, jnext := rank, left
	for i := 1; i < n; i++ {
		if err := s.Send(right, b.slot(j)); err != nil {
			return err
		}
		// concurrent with the send, no barrier between them
		if err := s.Recv(left, b.slot(jnext)); err != nil {
			return err
		}
		s.Barrier()
		j = jnext
		jnext = (n + jnext - 1) % n
	}
	return nil
}

// RingRecvSlot is the slot filled in round k (1-based) of the ring on rank.
func RingRecvSlot(rank, k, n int) int {
	return ((rank-k)%n + n) % n
}
