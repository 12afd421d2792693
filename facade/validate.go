// File: facade/validate.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Argument validation performed at every public entry point before any
// schedule exists. Failures are reported with the matching error kind.

package facade

import (
	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/extent"
	"github.com/momentics/hioload-coll/internal/reduce"
)

func checkType(t api.Datatype, what string) error {
	if !t.Committed() {
		return api.Errorf(api.ErrCodeInvalidDatatype, "%s datatype %q is not committed", what, t.Name)
	}
	if err := t.Valid(); err != nil {
		return err
	}
	if t.Size() == 0 {
		return api.Errorf(api.ErrCodeInvalidDatatype, "%s datatype %q has zero size", what, t.Name)
	}
	return nil
}

// checkRegion validates count and type of r and that blocks of it fit in Buf.
// It returns the span in bytes.
func checkRegion(r api.Region, blocks int, what string) (int64, error) {
	if r.Count < 0 {
		return 0, api.Errorf(api.ErrCodeInvalidCount, "negative %s count %d", what, r.Count)
	}
	if err := checkType(r.Type, what); err != nil {
		return 0, err
	}
	if r.Count > 0 && blocks > 0 && r.Buf == nil {
		return 0, api.Errorf(api.ErrCodeInvalidBuffer, "nil %s buffer", what)
	}
	span, err := extent.CheckHighest(r.Buf, blocks, r.Count, r.Type.Extent)
	if err != nil {
		return 0, err
	}
	return span, nil
}

// checkPair validates send against recv: signature match and no aliasing.
// recvBlocks is the number of per-rank blocks recv holds.
func checkPair(send, recv api.Region, recvBlocks int, allowInPlace bool) error {
	recvSpan, err := checkRegion(recv, recvBlocks, "receive")
	if err != nil {
		return err
	}
	if send.IsInPlace() {
		if !allowInPlace {
			return api.Errorf(api.ErrCodeInvalidBuffer, "IN_PLACE is not allowed here")
		}
		return nil
	}
	sendSpan, err := checkRegion(send, 1, "send")
	if err != nil {
		return err
	}
	if send.Bytes() != recv.Bytes() {
		return api.Errorf(api.ErrCodeInvalidCount, "type signatures differ: send %d bytes, receive %d bytes per block",
			send.Bytes(), recv.Bytes()).
			WithContext("send_count", send.Count).WithContext("recv_count", recv.Count)
	}
	if extent.Overlaps(send.Buf[:sendSpan], recv.Buf[:recvSpan]) {
		return api.Errorf(api.ErrCodeAliasing, "send buffer overlaps the receive buffer; use IN_PLACE")
	}
	return nil
}

func validateAllgather(send, recv api.Region, comm *api.Comm) error {
	if err := comm.Valid(); err != nil {
		return err
	}
	return checkPair(send, recv, comm.PeerCount(), !comm.IsInter())
}

func validateAllreduce(send, recv api.Region, op api.ReduceOp, comm *api.Comm) error {
	if err := comm.Valid(); err != nil {
		return err
	}
	if comm.IsInter() {
		return api.Errorf(api.ErrCodeNotSupported, "allreduce on an intercommunicator")
	}
	if err := checkPair(send, recv, 1, true); err != nil {
		return err
	}
	if !send.IsInPlace() && (send.Type.Kind != recv.Type.Kind || send.Count*send.Type.Lanes != recv.Count*recv.Type.Lanes) {
		return api.Errorf(api.ErrCodeInvalidDatatype, "allreduce operands differ: %s vs %s", send.Type.Name, recv.Type.Name)
	}
	return reduce.Check(op, recv.Type)
}

func validateNeighbor(send, recv api.Region, topo api.Topology, comm *api.Comm) error {
	if err := comm.Valid(); err != nil {
		return err
	}
	if comm.IsInter() {
		return api.Errorf(api.ErrCodeNotSupported, "neighborhood collectives on an intercommunicator")
	}
	for _, list := range [][]int{topo.Sources, topo.Destinations} {
		for _, p := range list {
			if p < 0 || p >= comm.Size() {
				return api.Errorf(api.ErrCodeInvalidArgument, "neighbor %d outside communicator of size %d", p, comm.Size())
			}
		}
	}
	return checkPair(send, recv, len(topo.Sources), false)
}
