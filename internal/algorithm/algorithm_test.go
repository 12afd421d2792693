package algorithm_test

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/algorithm"
	"github.com/momentics/hioload-coll/internal/schedule"
	"github.com/momentics/hioload-coll/pool"
	"github.com/momentics/hioload-coll/transport/mem"
)

var ne = binary.NativeEndian

func int32s(vals ...int32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		ne.PutUint32(b[4*i:], uint32(v))
	}
	return b
}

func readInt32s(b []byte) []int32 {
	out := make([]int32, len(b)/4)
	for i := range out {
		out[i] = int32(ne.Uint32(b[4*i:]))
	}
	return out
}

func runSchedule(ctx context.Context, comm *api.Comm, build func(s *schedule.Schedule) error) error {
	s := schedule.New(comm.NextTag(), comm.PeerCount(), pool.Default())
	if err := build(s); err != nil {
		s.Release()
		return err
	}
	return schedule.RunBlocking(ctx, s, comm.Transport())
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// allgatherWorld runs an allgather of count int32 values per rank where rank
// r contributes r*100+i, and returns every rank's receive buffer.
func allgatherWorld(t *testing.T, alg api.Algorithm, n, count int, inPlace bool) [][]int32 {
	t.Helper()
	results := make([][]int32, n)
	err := mem.Run(testCtx(t), n, func(ctx context.Context, ep *mem.Endpoint) error {
		comm, err := api.NewIntraComm(ep, ep.Rank(), n, 1)
		if err != nil {
			return err
		}
		vals := make([]int32, count)
		for i := range vals {
			vals[i] = int32(ep.Rank()*100 + i)
		}
		recvBuf := make([]byte, 4*count*n)
		send := api.NewRegion(int32s(vals...), count, api.Int32)
		if inPlace {
			copy(recvBuf[4*count*ep.Rank():], send.Buf)
			send = api.InPlace()
		}
		recv := api.NewRegion(recvBuf, count, api.Int32)
		err = runSchedule(ctx, comm, func(s *schedule.Schedule) error {
			return algorithm.Allgather(alg, send, recv, comm, s)
		})
		results[ep.Rank()] = readInt32s(recvBuf)
		return err
	})
	require.NoError(t, err)
	return results
}

func expected(n, count int) []int32 {
	out := make([]int32, 0, n*count)
	for r := 0; r < n; r++ {
		for i := 0; i < count; i++ {
			out = append(out, int32(r*100+i))
		}
	}
	return out
}

func TestAllgatherAlgorithms(t *testing.T) {
	cases := []struct {
		alg   api.Algorithm
		sizes []int
	}{
		{api.AlgRing, []int{1, 2, 3, 4, 5, 8, 9}},
		{api.AlgBrucks, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 13}},
		{api.AlgRecursiveDoubling, []int{1, 2, 4, 8, 16}},
	}
	for _, c := range cases {
		for _, n := range c.sizes {
			for _, inPlace := range []bool{false, true} {
				t.Run(fmt.Sprintf("%s/n=%d/inplace=%v", c.alg, n, inPlace), func(t *testing.T) {
					for r, got := range allgatherWorld(t, c.alg, n, 3, inPlace) {
						assert.Equal(t, expected(n, 3), got, "rank %d", r)
					}
				})
			}
		}
	}
}

func TestAllgatherFourRanksOneInt(t *testing.T) {
	for _, alg := range []api.Algorithm{api.AlgRing, api.AlgBrucks, api.AlgRecursiveDoubling} {
		for _, got := range allgatherWorld(t, alg, 4, 1, false) {
			assert.Equal(t, []int32{0, 100, 200, 300}, got)
		}
	}
}

func TestRingRecvSlot(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 8, 9} {
		for rank := 0; rank < n; rank++ {
			seen := map[int]bool{rank: true}
			for k := 1; k < n; k++ {
				slot := algorithm.RingRecvSlot(rank, k, n)
				assert.Equal(t, ((rank-k)%n+n)%n, slot)
				assert.False(t, seen[slot], "slot %d filled twice", slot)
				seen[slot] = true
			}
			assert.Len(t, seen, n)
		}
	}
}

// The ring schedule itself receives into slot (rank-k) mod n in round k.
func TestRingScheduleMatchesSlots(t *testing.T) {
	const n, rank = 5, 2
	comm, err := api.NewIntraComm(mem.NewFabric(n).Endpoint(rank), rank, n, 1)
	require.NoError(t, err)
	recvBuf := make([]byte, 4*n)
	s := schedule.New(1, n, nil)
	require.NoError(t, algorithm.Ring(api.NewRegion(make([]byte, 4), 1, api.Int32), api.NewRegion(recvBuf, 1, api.Int32), comm, s))

	phases := s.Phases()
	require.Len(t, phases, n)
	for k := 1; k < n; k++ {
		ph := phases[k]
		require.Len(t, ph, 2)
		assert.Equal(t, schedule.StepSend, ph[0].Kind)
		assert.Equal(t, (rank+1)%n, ph[0].Peer)
		assert.Equal(t, schedule.StepRecv, ph[1].Kind)
		assert.Equal(t, (rank-1+n)%n, ph[1].Peer)
		want := recvBuf[4*algorithm.RingRecvSlot(rank, k, n):]
		assert.Same(t, &want[0], &ph[1].Dst.Buf[0])
	}
}

func TestZeroCountSchedulesNothing(t *testing.T) {
	comm, err := api.NewIntraComm(mem.NewFabric(4).Endpoint(0), 0, 4, 1)
	require.NoError(t, err)
	for _, alg := range []api.Algorithm{api.AlgRing, api.AlgBrucks, api.AlgRecursiveDoubling} {
		s := schedule.New(1, 4, nil)
		require.NoError(t, algorithm.Allgather(alg, api.NewRegion(nil, 0, api.Int32), api.NewRegion(nil, 0, api.Int32), comm, s))
		assert.Equal(t, 0, s.Len())
	}
}

func TestOverflowGuardBeforeAnyStep(t *testing.T) {
	comm, err := api.NewIntraComm(mem.NewFabric(4).Endpoint(1), 1, 4, 1)
	require.NoError(t, err)
	huge, err := api.Resized(api.Byte, 1<<40)
	require.NoError(t, err)
	for _, alg := range []api.Algorithm{api.AlgRing, api.AlgBrucks, api.AlgRecursiveDoubling} {
		s := schedule.New(1, 4, nil)
		err := algorithm.Allgather(alg, api.NewRegion(make([]byte, 1), 1, api.Byte),
			api.NewRegion(make([]byte, 16), 1<<30, huge), comm, s)
		assert.ErrorIs(t, err, api.ErrBufferOverflow, alg.String())
		assert.Equal(t, 0, s.Len())
	}

	// a receive buffer shorter than its addressed span
	s := schedule.New(1, 4, nil)
	err = algorithm.Ring(api.NewRegion(make([]byte, 4), 1, api.Int32), api.NewRegion(make([]byte, 12), 1, api.Int32), comm, s)
	assert.ErrorIs(t, err, api.ErrBufferOverflow)
}

func TestRecursiveDoublingRejectsOddSizes(t *testing.T) {
	comm, err := api.NewIntraComm(mem.NewFabric(3).Endpoint(0), 0, 3, 1)
	require.NoError(t, err)
	s := schedule.New(1, 3, nil)
	err = algorithm.RecursiveDoubling(api.NewRegion(make([]byte, 4), 1, api.Int32), api.NewRegion(make([]byte, 12), 1, api.Int32), comm, s)
	assert.ErrorIs(t, err, api.ErrNotSupported)
}

func TestPaddedReceiveType(t *testing.T) {
	padded, err := api.Resized(api.Int32, 8)
	require.NoError(t, err)
	padded = padded.Commit()
	const n = 3
	results := make([][]byte, n)
	require.NoError(t, mem.Run(testCtx(t), n, func(ctx context.Context, ep *mem.Endpoint) error {
		comm, err := api.NewIntraComm(ep, ep.Rank(), n, 2)
		if err != nil {
			return err
		}
		buf := make([]byte, 8*n)
		for i := range buf {
			buf[i] = 0xEE
		}
		results[ep.Rank()] = buf
		return runSchedule(ctx, comm, func(s *schedule.Schedule) error {
			return algorithm.Brucks(api.NewRegion(int32s(int32(ep.Rank()+1)), 1, api.Int32), api.NewRegion(buf, 1, padded), comm, s)
		})
	}))
	for _, buf := range results {
		for r := 0; r < n; r++ {
			assert.Equal(t, int32(r+1), int32(ne.Uint32(buf[8*r:])))
			assert.Equal(t, []byte{0xEE, 0xEE, 0xEE, 0xEE}, buf[8*r+4:8*r+8], "padding must stay untouched")
		}
	}
}

func TestGenericInter(t *testing.T) {
	const a, b = 2, 3
	results := make(map[string][]int32)
	var mu sync.Mutex
	require.NoError(t, mem.RunInter(testCtx(t), a, b, func(ctx context.Context, group int, ep *mem.Endpoint) error {
		local, remote := a, b
		if group == 1 {
			local, remote = b, a
		}
		comm, err := api.NewInterComm(ep, ep.Rank(), local, remote, 9)
		if err != nil {
			return err
		}
		recvBuf := make([]byte, 4*remote)
		send := api.NewRegion(int32s(int32(group*10+ep.Rank())), 1, api.Int32)
		err = runSchedule(ctx, comm, func(s *schedule.Schedule) error {
			return algorithm.GenericInter(send, api.NewRegion(recvBuf, 1, api.Int32), comm, s)
		})
		mu.Lock()
		results[fmt.Sprintf("%d/%d", group, ep.Rank())] = readInt32s(recvBuf)
		mu.Unlock()
		return err
	}))
	for r := 0; r < a; r++ {
		assert.Equal(t, []int32{10, 11, 12}, results[fmt.Sprintf("0/%d", r)])
	}
	for r := 0; r < b; r++ {
		assert.Equal(t, []int32{0, 1}, results[fmt.Sprintf("1/%d", r)])
	}
}

func TestGenericInterRejectsInPlace(t *testing.T) {
	f := mem.NewInterFabric(1, 1)
	comm, err := api.NewInterComm(f.Endpoint(0), 0, 1, 1, 1)
	require.NoError(t, err)
	err = algorithm.GenericInter(api.InPlace(), api.NewRegion(make([]byte, 4), 1, api.Int32), comm, schedule.New(1, 1, nil))
	assert.ErrorIs(t, err, api.ErrInvalidBuffer)
}

func allreduceWorld(t *testing.T, alg api.Algorithm, n int, op api.ReduceOp, inPlace bool) [][]int32 {
	t.Helper()
	results := make([][]int32, n)
	require.NoError(t, mem.Run(testCtx(t), n, func(ctx context.Context, ep *mem.Endpoint) error {
		comm, err := api.NewIntraComm(ep, ep.Rank(), n, 4)
		if err != nil {
			return err
		}
		r := int32(ep.Rank())
		in := int32s(r+1, -r, 7)
		out := make([]byte, len(in))
		send := api.NewRegion(in, 3, api.Int32)
		if inPlace {
			copy(out, in)
			send = api.InPlace()
		}
		err = runSchedule(ctx, comm, func(s *schedule.Schedule) error {
			return algorithm.Allreduce(alg, send, api.NewRegion(out, 3, api.Int32), op, comm, s)
		})
		results[ep.Rank()] = readInt32s(out)
		return err
	}))
	return results
}

func TestAllreduce(t *testing.T) {
	cases := []struct {
		alg   api.Algorithm
		sizes []int
	}{
		{api.AlgRecursiveDoubling, []int{1, 2, 4, 8}},
		{api.AlgRing, []int{1, 2, 3, 5, 6}},
	}
	for _, c := range cases {
		for _, n := range c.sizes {
			var sum, neg int32
			for r := 0; r < n; r++ {
				sum += int32(r + 1)
				neg -= int32(r)
			}
			for _, inPlace := range []bool{false, true} {
				for _, got := range allreduceWorld(t, c.alg, n, api.OpSum, inPlace) {
					assert.Equal(t, []int32{sum, neg, int32(7 * n)}, got, "%s n=%d", c.alg, n)
				}
			}
			for _, got := range allreduceWorld(t, c.alg, n, api.OpMax, false) {
				assert.Equal(t, []int32{int32(n), 0, 7}, got)
			}
		}
	}
}

func TestAllreduceRejectsInter(t *testing.T) {
	f := mem.NewInterFabric(1, 1)
	comm, err := api.NewInterComm(f.Endpoint(0), 0, 1, 1, 1)
	require.NoError(t, err)
	r := api.NewRegion(make([]byte, 4), 1, api.Int32)
	assert.ErrorIs(t, algorithm.AllreduceRing(r, r, api.OpSum, comm, schedule.New(1, 1, nil)), api.ErrNotSupported)
}

func TestNeighborAllgatherRing(t *testing.T) {
	const n = 4
	results := make([][]int32, n)
	require.NoError(t, mem.Run(testCtx(t), n, func(ctx context.Context, ep *mem.Endpoint) error {
		comm, err := api.NewIntraComm(ep, ep.Rank(), n, 5)
		if err != nil {
			return err
		}
		r := ep.Rank()
		topo := api.Topology{Sources: []int{(r + n - 1) % n, (r + 1) % n}, Destinations: []int{(r + 1) % n, (r + n - 1) % n}}
		out := make([]byte, 8)
		err = runSchedule(ctx, comm, func(s *schedule.Schedule) error {
			return algorithm.NeighborAllgather(api.NewRegion(int32s(int32(r)), 1, api.Int32), api.NewRegion(out, 1, api.Int32), topo, comm, s)
		})
		results[r] = readInt32s(out)
		return err
	}))
	for r := 0; r < n; r++ {
		assert.Equal(t, []int32{int32((r + n - 1) % n), int32((r + 1) % n)}, results[r])
	}
}
