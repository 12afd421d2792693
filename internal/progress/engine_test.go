package progress_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/fake"
	"github.com/momentics/hioload-coll/internal/progress"
	"github.com/momentics/hioload-coll/internal/schedule"
	"github.com/momentics/hioload-coll/transport/mem"
)

func region(b []byte) api.Region { return api.NewRegion(b, len(b), api.Byte) }

// exchange builds the two halves of a one-byte swap between ranks 0 and 1.
func exchange(t *testing.T, f *mem.Fabric) (s0, s1 *schedule.Schedule, out0, out1 []byte) {
	t.Helper()
	out0, out1 = make([]byte, 1), make([]byte, 1)
	s0 = schedule.New(1, 2, nil)
	require.NoError(t, s0.Send(1, region([]byte{'a'})))
	require.NoError(t, s0.Recv(1, region(out0)))
	s1 = schedule.New(1, 2, nil)
	require.NoError(t, s1.Send(0, region([]byte{'b'})))
	require.NoError(t, s1.Recv(0, region(out1)))
	return
}

func TestLifecycle(t *testing.T) {
	e := progress.NewEngine(nil)
	f := mem.NewFabric(2)
	s0, s1, out0, out1 := exchange(t, f)
	r0 := e.NewRequest("test.swap", s0, f.Endpoint(0))
	r1 := e.NewRequest("test.swap", s1, f.Endpoint(1))
	assert.Equal(t, progress.StateCreated, r0.State())

	require.NoError(t, e.Start(r0))
	assert.ErrorIs(t, e.Start(r0), api.ErrAlreadyInProgress)
	assert.Equal(t, progress.StateScheduled, r0.State())

	done, err := e.Test(r0)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, e.Start(r1))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx, r0))
	require.NoError(t, e.Wait(ctx, r1))
	assert.Equal(t, []byte{'b'}, out0)
	assert.Equal(t, []byte{'a'}, out1)

	// reclaimed handles must not be queried again
	assert.ErrorIs(t, e.Wait(ctx, r0), api.ErrAlreadyInProgress)
	_, err = e.Test(r1)
	assert.ErrorIs(t, err, api.ErrAlreadyInProgress)

	started, completed := e.Stats()
	assert.EqualValues(t, 2, started)
	assert.EqualValues(t, 2, completed)
	e.Progress()
	assert.Equal(t, 0, e.Active())
}

func TestTestReclaimsOnce(t *testing.T) {
	e := progress.NewEngine(nil)
	s := schedule.New(1, 1, nil)
	require.NoError(t, s.Copy(region([]byte{1}), region(make([]byte, 1))))
	r := e.NewRequest("test.copy", s, mem.NewFabric(1).Endpoint(0))
	require.NoError(t, e.Start(r))

	done, err := e.Test(r)
	require.NoError(t, err)
	assert.True(t, done)
	_, err = e.Test(r)
	assert.ErrorIs(t, err, api.ErrAlreadyInProgress)
}

func TestCompletedRequest(t *testing.T) {
	e := progress.NewEngine(nil)
	r := e.CompletedRequest("allgather.zero", nil)
	assert.Equal(t, progress.StateComplete, r.State())
	done, err := e.Test(r)
	assert.True(t, done)
	assert.NoError(t, err)
	assert.ErrorIs(t, r.Cancel(), api.ErrAlreadyInProgress)
}

func TestFailureAttachedToRequest(t *testing.T) {
	e := progress.NewEngine(nil)
	ft := fake.NewTransport(mem.NewFabric(2).Endpoint(0))
	ft.SetSendError(fake.ErrInjected)
	s := schedule.New(1, 2, nil)
	require.NoError(t, s.Send(1, region([]byte{1})))
	r := e.NewRequest("test.fail", s, ft)
	require.NoError(t, e.Start(r))

	err := e.Wait(context.Background(), r)
	assert.ErrorIs(t, err, api.ErrTransportFailure)
	assert.ErrorIs(t, r.Err(), fake.ErrInjected)
}

func TestCancelBeforeStart(t *testing.T) {
	e := progress.NewEngine(nil)
	f := mem.NewFabric(2)
	s0, _, _, _ := exchange(t, f)
	r := e.NewRequest("test.swap", s0, f.Endpoint(0))
	require.NoError(t, e.Start(r))
	require.NoError(t, r.Cancel())

	assert.ErrorIs(t, e.Wait(context.Background(), r), api.ErrCanceled)
	assert.ErrorIs(t, r.Cancel(), api.ErrAlreadyInProgress)
	e.Progress()
	u, p := f.Endpoint(0).Pending()
	assert.Zero(t, u+p, "canceled request must not post anything")
}

func TestCancelAfterStartFails(t *testing.T) {
	e := progress.NewEngine(nil)
	f := mem.NewFabric(2)
	s0, s1, _, _ := exchange(t, f)
	r0 := e.NewRequest("test.swap", s0, f.Endpoint(0))
	require.NoError(t, e.Start(r0))
	e.Progress()
	assert.ErrorIs(t, r0.Cancel(), api.ErrAlreadyInProgress)

	r1 := e.NewRequest("test.swap", s1, f.Endpoint(1))
	require.NoError(t, e.Start(r1))
	require.NoError(t, e.Wait(context.Background(), r0))
	require.NoError(t, e.Wait(context.Background(), r1))
}

func TestWaitContextEndsLeavesRequest(t *testing.T) {
	e := progress.NewEngine(nil)
	f := mem.NewFabric(2)
	s0, s1, _, _ := exchange(t, f)
	r0 := e.NewRequest("test.swap", s0, f.Endpoint(0))
	require.NoError(t, e.Start(r0))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Wait(ctx, r0), api.ErrCanceled)

	require.NoError(t, e.Start(e.NewRequest("test.swap", s1, f.Endpoint(1))))
	require.NoError(t, e.Wait(context.Background(), r0))
}

func TestBackgroundRun(t *testing.T) {
	e := progress.NewEngine(nil)
	var hooked atomic.Int32
	e.OnComplete(func(r *progress.Request) { hooked.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	f := mem.NewFabric(2)
	s0, s1, out0, _ := exchange(t, f)
	r0 := e.NewRequest("test.swap", s0, f.Endpoint(0))
	r1 := e.NewRequest("test.swap", s1, f.Endpoint(1))
	require.NoError(t, e.Start(r0))
	require.NoError(t, e.Start(r1))

	select {
	case <-r0.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("background loop made no progress")
	}
	<-r1.Done()
	assert.Equal(t, []byte{'b'}, out0)
	assert.Eventually(t, func() bool { return hooked.Load() == 2 }, time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-errCh)
}
