// File: internal/algorithm/generic_inter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package algorithm

import (
	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/extent"
	"github.com/momentics/hioload-coll/internal/schedule"
)

// GenericInter is the pairwise allgather for intercommunicators: every rank
// sends its block to each rank of the remote group and receives remote rank
// p's block into slot p. Pairs are issued starting at remote rank
// (rank+k) mod remoteSize to spread load, all in a single phase so the
// pattern cannot deadlock on rendezvous transports.
func GenericInter(send, recv api.Region, comm *api.Comm, s *schedule.Schedule) error {
	if zero(send, recv) {
		return nil
	}
	if !comm.IsInter() {
		return api.Errorf(api.ErrCodeNotSupported, "generic allgather needs an intercommunicator")
	}
	if send.IsInPlace() {
		return api.Errorf(api.ErrCodeInvalidBuffer, "IN_PLACE is not valid on an intercommunicator")
	}
	rs, rank := comm.RemoteSize(), comm.Rank()
	if _, err := extent.CheckHighest(recv.Buf, rs, recv.Count, recv.Type.Extent); err != nil {
		return err
	}
	b := newBlocks(recv)
	for k := 0; k < rs; k++ {
		peer := (rank + k) % rs
		if err := s.Send(peer, send); err != nil {
			return err
		}
		if err := s.Recv(peer, b.slot(peer)); err != nil {
			return err
		}
	}
	s.Barrier()
	return nil
}
