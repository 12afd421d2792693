// File: internal/algorithm/neighbor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package algorithm

import (
	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/extent"
	"github.com/momentics/hioload-coll/internal/schedule"
)

// NeighborAllgather sends the local block to every out-neighbor and receives
// slot i from in-neighbor i. There are no dependencies between the messages,
// so they all share one phase.
func NeighborAllgather(send, recv api.Region, topo api.Topology, comm *api.Comm, s *schedule.Schedule) error {
	if send.IsInPlace() {
		return api.Errorf(api.ErrCodeInvalidBuffer, "IN_PLACE is not valid for neighborhood collectives")
	}
	if zero(send, recv) {
		return nil
	}
	if _, err := extent.CheckHighest(recv.Buf, len(topo.Sources), recv.Count, recv.Type.Extent); err != nil {
		return err
	}
	b := newBlocks(recv)
	for _, dst := range topo.Destinations {
		if err := s.Send(dst, send); err != nil {
			return err
		}
	}
	for i, src := range topo.Sources {
		if err := s.Recv(src, b.slot(i)); err != nil {
			return err
		}
	}
	s.Barrier()
	return nil
}
