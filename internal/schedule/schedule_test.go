package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/fake"
	"github.com/momentics/hioload-coll/internal/schedule"
	"github.com/momentics/hioload-coll/transport/mem"
)

func bytesRegion(b []byte) api.Region { return api.NewRegion(b, len(b), api.Byte) }

func TestBarrierCollapsing(t *testing.T) {
	s := schedule.New(1, 2, nil)
	s.Barrier()
	require.NoError(t, s.Copy(bytesRegion(make([]byte, 1)), bytesRegion(make([]byte, 1))))
	s.Barrier()
	s.Barrier()
	require.NoError(t, s.Send(1, bytesRegion(make([]byte, 1))))
	assert.Equal(t, 2, s.Len())
	assert.Len(t, s.Phases(), 2)
}

func TestBuilderValidation(t *testing.T) {
	s := schedule.New(1, 2, nil)
	assert.ErrorIs(t, s.Send(2, bytesRegion(nil)), api.ErrInvalidArgument)
	assert.ErrorIs(t, s.Recv(-1, bytesRegion(nil)), api.ErrInvalidArgument)
	assert.ErrorIs(t, s.Copy(bytesRegion(make([]byte, 2)), bytesRegion(make([]byte, 3))), api.ErrInvalidCount)

	f := api.NewRegion(make([]byte, 8), 2, api.Float32)
	assert.ErrorIs(t, s.Reduce(api.OpBXOR, f, f), api.ErrInvalidOp)
	assert.Equal(t, 0, s.Len())
}

// Two ranks exchange a byte; the copy in phase two observes the receive.
func TestAdvancePhasesInOrder(t *testing.T) {
	f := mem.NewFabric(2)
	out := make([][]byte, 2)
	scheds := make([]*schedule.Schedule, 2)
	for r := 0; r < 2; r++ {
		in := []byte{byte(10 + r)}
		got := make([]byte, 1)
		out[r] = make([]byte, 1)
		s := schedule.New(api.MakeTag(3, 1), 2, nil)
		require.NoError(t, s.Send(1-r, bytesRegion(in)))
		require.NoError(t, s.Recv(1-r, bytesRegion(got)))
		s.Barrier()
		require.NoError(t, s.Copy(bytesRegion(got), bytesRegion(out[r])))
		scheds[r] = s
	}

	done, err := scheds[0].Advance(f.Endpoint(0))
	require.NoError(t, err)
	assert.False(t, done)
	assert.True(t, scheds[0].Started())
	assert.Equal(t, byte(0), out[0][0])

	done, err = scheds[1].Advance(f.Endpoint(1))
	require.NoError(t, err)
	assert.True(t, done)

	done, err = scheds[0].Advance(f.Endpoint(0))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []byte{11}, out[0])
	assert.Equal(t, []byte{10}, out[1])
	assert.Equal(t, 3, scheds[0].Completed())
}

func TestReduceStep(t *testing.T) {
	a := api.NewRegion([]byte{1, 0, 0, 0, 2, 0, 0, 0}, 2, api.Int32)
	b := api.NewRegion([]byte{5, 0, 0, 0, 6, 0, 0, 0}, 2, api.Int32)
	s := schedule.New(0, 1, nil)
	require.NoError(t, s.Reduce(api.OpSum, a, b))
	done, err := s.Advance(mem.NewFabric(1).Endpoint(0))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []byte{6, 0, 0, 0, 8, 0, 0, 0}, b.Buf)
}

func TestPaddedRecvUnpacks(t *testing.T) {
	padded, err := api.Resized(api.Int32, 8)
	require.NoError(t, err)
	f := mem.NewFabric(2)

	dst := make([]byte, 16)
	for i := range dst {
		dst[i] = 0xFF
	}
	recv := schedule.New(7, 2, nil)
	require.NoError(t, recv.Recv(0, api.NewRegion(dst, 2, padded)))
	send := schedule.New(7, 2, nil)
	require.NoError(t, send.Send(1, api.NewRegion([]byte{1, 0, 0, 0, 2, 0, 0, 0}, 2, api.Int32)))

	_, err = send.Advance(f.Endpoint(0))
	require.NoError(t, err)
	done, err := recv.Advance(f.Endpoint(1))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []byte{1, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF, 2, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF}, dst)
}

func TestFailureStopsAndReleases(t *testing.T) {
	pool := &fake.BytePool{}
	ft := fake.NewTransport(mem.NewFabric(2).Endpoint(0))
	s := schedule.New(1, 2, pool)
	scratch := s.Scratch(4)
	require.NoError(t, s.Recv(1, bytesRegion(scratch)))
	require.NoError(t, s.Send(1, bytesRegion(scratch)))
	s.Barrier()
	require.NoError(t, s.Send(1, bytesRegion(scratch)))

	ft.FailSendAfter(0, fake.ErrInjected)
	done, err := s.Advance(ft)
	assert.True(t, done)
	assert.ErrorIs(t, err, api.ErrTransportFailure)
	assert.ErrorIs(t, err, fake.ErrInjected)
	assert.Equal(t, 1, ft.Canceled())
	assert.Equal(t, 0, pool.Outstanding())
	assert.Empty(t, ft.GetSentData())

	// terminal state is sticky
	done, err2 := s.Advance(ft)
	assert.True(t, done)
	assert.Equal(t, err, err2)
}

func TestPollFailure(t *testing.T) {
	ft := fake.NewTransport(mem.NewFabric(2).Endpoint(0))
	s := schedule.New(1, 2, nil)
	require.NoError(t, s.Recv(1, bytesRegion(make([]byte, 1))))
	ft.SetPollError(fake.ErrInjected)
	_, err := s.Advance(ft)
	assert.Equal(t, api.ErrCodeTransportFailure, api.CodeOf(err))
}

func TestAbort(t *testing.T) {
	pool := &fake.BytePool{}
	s := schedule.New(1, 1, pool)
	s.Scratch(8)
	require.NoError(t, s.Abort(api.ErrCanceled))
	assert.True(t, s.Done())
	assert.ErrorIs(t, s.Err(), api.ErrCanceled)
	assert.Equal(t, 0, pool.Outstanding())

	started := schedule.New(1, 2, nil)
	require.NoError(t, started.Recv(1, bytesRegion(make([]byte, 1))))
	_, _ = started.Advance(mem.NewFabric(2).Endpoint(0))
	assert.ErrorIs(t, started.Abort(api.ErrCanceled), api.ErrAlreadyInProgress)
	assert.ErrorIs(t, started.Send(1, bytesRegion(nil)), api.ErrAlreadyInProgress)
}

func TestRunBlockingContext(t *testing.T) {
	s := schedule.New(1, 2, nil)
	require.NoError(t, s.Recv(1, bytesRegion(make([]byte, 1))))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := schedule.RunBlocking(ctx, s, mem.NewFabric(2).Endpoint(0))
	assert.ErrorIs(t, err, api.ErrCanceled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// A receive abandoned by an interrupted blocking run must not land later.
func TestRunBlockingContextWithdrawsReceives(t *testing.T) {
	f := mem.NewFabric(2)
	pool := &fake.BytePool{}
	ft := fake.NewTransport(f.Endpoint(0))
	tag := api.MakeTag(5, 1)
	s := schedule.New(tag, 2, pool)
	s.Scratch(16)
	got := []byte{7}
	require.NoError(t, s.Recv(1, bytesRegion(got)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := schedule.RunBlocking(ctx, s, ft)
	assert.ErrorIs(t, err, api.ErrCanceled)
	assert.True(t, s.Done())
	assert.Equal(t, 1, ft.Canceled())
	assert.Equal(t, 0, pool.Outstanding())

	_, err = f.Endpoint(1).PostSend(0, tag, []byte{42})
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, got)
	unexpected, _ := f.Endpoint(0).Pending()
	assert.Equal(t, 1, unexpected)

	// stopping a finished schedule changes nothing
	s.Stop(ft, api.ErrTransportFailure)
	assert.ErrorIs(t, s.Err(), api.ErrCanceled)
}
