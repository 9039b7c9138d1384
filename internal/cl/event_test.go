package cl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserEventLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ev, err := env.ctx.CreateUserEvent()
	require.NoError(t, err)
	assert.True(t, ev.IsUser())

	s, err := ev.Status()
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, s)

	requireKind(t, ev.SetStatus(StatusRunning), ErrInvalidArgument)
	require.NoError(t, ev.Complete())
	requireKind(t, ev.Complete(), ErrInvalidOperation)
	require.NoError(t, ev.Wait())

	s, err = ev.Status()
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, s)
	require.NoError(t, ev.Release())
}

func TestSetStatusOnCommandEvent(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 4, MemReadWrite, nil)
	var ev *Event
	require.NoError(t, env.queue.WriteBuffer(b, 0, []byte{1, 2, 3, 4}, Completion(&ev)))
	defer ev.Release()
	assert.False(t, ev.IsUser())
	requireKind(t, ev.SetStatus(StatusComplete), ErrInvalidOperation)
	require.NoError(t, ev.Wait())
}

func TestUserEventGatesCommands(t *testing.T) {
	env := newTestEnv(t)
	gate, err := env.ctx.CreateUserEvent()
	require.NoError(t, err)
	defer gate.Release()

	b := env.buffer(t, 4, MemReadWrite, nil)
	var ev *Event
	require.NoError(t, Write(env.queue, b, 0, []int32{42}, WaitFor(gate), Completion(&ev)))
	defer ev.Release()
	require.NoError(t, env.queue.Flush())

	time.Sleep(10 * time.Millisecond)
	s, err := ev.Status()
	require.NoError(t, err)
	assert.Greater(t, int32(s), int32(StatusComplete), "command ran before its wait list completed")

	_, err = ev.Profile()
	requireKind(t, err, ErrProfilingUnavailable)

	require.NoError(t, gate.Complete())
	require.NoError(t, ev.Wait())
	got := make([]int32, 1)
	require.NoError(t, Read(env.queue, b, 0, got, Blocking()))
	assert.Equal(t, int32(42), got[0])
}

func TestEventReferenceCounting(t *testing.T) {
	env := newTestEnv(t)
	ev, err := env.ctx.CreateUserEvent()
	require.NoError(t, err)

	n, err := ev.ReferenceCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	held, err := ev.Retain()
	require.NoError(t, err)
	n, err = held.ReferenceCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, ev.Release())
	require.NoError(t, ev.Release())
	requireKind(t, ev.Wait(), ErrInvalidEvent)

	n, err = held.ReferenceCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, held.Complete())
	require.NoError(t, held.Release())
}

func TestWaitListHoldsReference(t *testing.T) {
	env := newTestEnv(t)
	gate, err := env.ctx.CreateUserEvent()
	require.NoError(t, err)

	var marker *Event
	require.NoError(t, env.queue.Marker(WaitFor(gate), Completion(&marker)))
	n, err := gate.ReferenceCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// The queued marker keeps the gate alive after the host lets go of it.
	held, err := gate.Retain()
	require.NoError(t, err)
	require.NoError(t, gate.Release())
	n, err = held.ReferenceCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, held.Complete())
	require.NoError(t, marker.Wait())
	require.NoError(t, env.queue.Finish())
	assert.Eventually(t, func() bool {
		n, err := held.ReferenceCount()
		return err == nil && n == 1
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, held.Release())
	require.NoError(t, marker.Release())
}

func TestReleaseWhileAwaited(t *testing.T) {
	env := newTestEnv(t)
	ev, err := env.ctx.CreateUserEvent()
	require.NoError(t, err)
	waiter, err := ev.Retain()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		defer waiter.Release()
		done <- waiter.Wait()
	}()

	require.NoError(t, ev.SetStatus(StatusComplete))
	require.NoError(t, ev.Release())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not observe completion")
	}
}

func TestReleaseAll(t *testing.T) {
	env := newTestEnv(t)
	ev, err := env.ctx.CreateUserEvent()
	require.NoError(t, err)
	other, err := ev.Retain()
	require.NoError(t, err)
	_, err = ev.Retain()
	require.NoError(t, err)

	n, err := ev.ReferenceCount()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.NoError(t, ev.ReleaseAll())
	_, err = other.ReferenceCount()
	requireKind(t, err, ErrInvalidEvent)
	require.NoError(t, ev.Release())
}

func TestWaitContextTimeout(t *testing.T) {
	env := newTestEnv(t)
	ev, err := env.ctx.CreateUserEvent()
	require.NoError(t, err)
	defer ev.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = ev.WaitContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, ev.Complete())
	require.NoError(t, ev.WaitContext(context.Background()))
}

func TestWaitAll(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 8, MemReadWrite, nil)
	var e1, e2 *Event
	require.NoError(t, Write(env.queue, b, 0, []int32{1}, Completion(&e1)))
	require.NoError(t, Write(env.queue, b, 1, []int32{2}, Completion(&e2)))
	defer e1.Release()
	defer e2.Release()
	require.NoError(t, WaitAll(e1, e2))
	require.NoError(t, WaitAll())

	gate, err := env.ctx.CreateUserEvent()
	require.NoError(t, err)
	defer gate.Release()
	require.NoError(t, gate.SetStatus(-1))
	requireKind(t, WaitAll(e1, gate), ErrDeviceUnavailable)
}

func TestProfilingTimestamps(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 64*4, MemReadWrite, nil)
	k := env.kernel(t, "scale")
	require.NoError(t, k.SetArgs(b, float32(2)))

	for range 5 {
		var ev *Event
		require.NoError(t, env.queue.Dispatch(k, NDRange{Global: []int{64}}, Completion(&ev)))
		require.NoError(t, ev.Wait())
		p, err := ev.Profile()
		require.NoError(t, err)
		assert.LessOrEqual(t, p.Queued, p.Submitted)
		assert.LessOrEqual(t, p.Submitted, p.Started)
		assert.LessOrEqual(t, p.Started, p.Ended)

		run, err := ev.RunTime()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, run, time.Duration(0))
		assert.Equal(t, p.RunTime(), run)
		queued, err := ev.QueuedTime()
		require.NoError(t, err)
		assert.Equal(t, p.QueuedTime(), queued)
		require.NoError(t, ev.Release())
	}
}

func TestProfilingDisabled(t *testing.T) {
	env := newTestEnv(t)
	q, err := env.ctx.CreateQueue(false)
	require.NoError(t, err)
	defer q.Release()
	assert.False(t, q.Profiling())

	b := env.buffer(t, 4, MemReadWrite, nil)
	var ev *Event
	require.NoError(t, q.WriteBuffer(b, 0, []byte{1, 2, 3, 4}, Completion(&ev)))
	defer ev.Release()
	require.NoError(t, ev.Wait())
	_, err = ev.RunTime()
	requireKind(t, err, ErrProfilingUnavailable)
}

func TestBlockingCompletionEvent(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 4, MemReadWrite, nil)
	var ev *Event
	require.NoError(t, env.queue.WriteBuffer(b, 0, []byte{1, 2, 3, 4}, Blocking(), Completion(&ev)))
	defer ev.Release()
	s, err := ev.Status()
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, s)
}
