package cl

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clhost/internal/driver"
	"github.com/cwbudde/clhost/internal/driver/host"
)

func TestBufferRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	for _, size := range []int{1, 7, 64, 4096} {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i*31 + 7)
		}
		b := env.buffer(t, size, MemReadWrite, nil)
		require.NoError(t, env.queue.WriteBuffer(b, 0, data))
		got := make([]byte, size)
		require.NoError(t, env.queue.ReadBuffer(b, 0, got, Blocking()))
		assert.Equal(t, data, got, "size %d", size)
	}
}

func TestTypedRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 8*4, MemReadWrite, nil)
	require.NoError(t, Write(env.queue, b, 2, []float32{1.5, -2, 3.25}))
	got := make([]float32, 3)
	require.NoError(t, Read(env.queue, b, 2, got, Blocking()))
	assert.Equal(t, []float32{1.5, -2, 3.25}, got)
}

func TestCopyHostPtr(t *testing.T) {
	env := newTestEnv(t)
	src := []byte("device memory")
	b := env.buffer(t, len(src), MemReadOnly|MemCopyHostPtr, src)
	src[0] = 'X'
	got := make([]byte, len(src))
	require.NoError(t, env.queue.ReadBuffer(b, 0, got, Blocking()))
	assert.Equal(t, "device memory", string(got))
}

func TestHostPointerContract(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ctx.CreateBuffer(16, MemReadWrite, make([]byte, 16))
	requireKind(t, err, ErrInvalidArgument)
	_, err = env.ctx.CreateBuffer(16, MemReadWrite|MemUseHostPtr, nil)
	requireKind(t, err, ErrInvalidArgument)
	_, err = env.ctx.CreateBuffer(16, MemReadWrite|MemCopyHostPtr, make([]byte, 8))
	requireKind(t, err, ErrInvalidArgument)
	_, err = env.ctx.CreateBuffer(0, MemReadWrite, nil)
	requireKind(t, err, ErrInvalidArgument)
}

func TestAllocationFailure(t *testing.T) {
	env := newTestEnv(t, host.WithGlobalMemSize(4096))
	first, err := env.ctx.CreateBuffer(3000, MemReadWrite, nil)
	require.NoError(t, err)
	_, err = env.ctx.CreateBuffer(2000, MemReadWrite, nil)
	requireKind(t, err, ErrAllocationFailure)

	require.NoError(t, first.Release())
	second, err := env.ctx.CreateBuffer(2000, MemReadWrite, nil)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestReadWriteRange(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 16, MemReadWrite, nil)
	requireKind(t, env.queue.WriteBuffer(b, 12, make([]byte, 8)), ErrInvalidArgument)
	requireKind(t, env.queue.ReadBuffer(b, -1, make([]byte, 4)), ErrInvalidArgument)
	requireKind(t, env.queue.ReadBuffer(b, 0, nil), ErrInvalidArgument)
}

func TestHostAccessFlags(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 16, MemReadWrite|MemHostNoAccess, nil)
	requireKind(t, env.queue.ReadBuffer(b, 0, make([]byte, 16), Blocking()), ErrInvalidOperation)
}

func TestWriteBufferRect(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 16, MemReadWrite, nil)
	require.NoError(t, Fill[uint8](env.queue, b, 0))

	src := []byte{1, 2, 3, 4}
	err := env.queue.WriteBufferRect(b, Rect{
		BufferOrigin:   [3]int{1, 1, 0},
		Region:         [3]int{2, 2, 1},
		BufferRowPitch: 4,
	}, src)
	require.NoError(t, err)

	got := make([]byte, 16)
	require.NoError(t, env.queue.ReadBuffer(b, 0, got, Blocking()))
	want := []byte{
		0, 0, 0, 0,
		0, 1, 2, 0,
		0, 3, 4, 0,
		0, 0, 0, 0,
	}
	assert.Equal(t, want, got)

	err = env.queue.WriteBufferRect(b, Rect{BufferOrigin: [3]int{3, 3, 0}, Region: [3]int{2, 2, 1}, BufferRowPitch: 4}, src)
	requireKind(t, err, ErrInvalidArgument)
}

func TestCopyBuffer(t *testing.T) {
	env := newTestEnv(t)
	src := env.buffer(t, 8, MemReadWrite|MemCopyHostPtr, []byte("abcdefgh"))
	dst := env.buffer(t, 8, MemReadWrite, nil)
	require.NoError(t, env.queue.CopyBuffer(src, dst))
	got := make([]byte, 8)
	require.NoError(t, env.queue.ReadBuffer(dst, 0, got, Blocking()))
	assert.Equal(t, "abcdefgh", string(got))

	small := env.buffer(t, 4, MemReadWrite, nil)
	requireKind(t, env.queue.CopyBuffer(src, small), ErrInvalidArgument)
}

func TestCopyOverlap(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 16, MemReadWrite|MemCopyHostPtr, []byte("0123456789abcdef"))
	requireKind(t, env.queue.CopyBufferRange(b, b, 0, 4, 8), ErrMemCopyOverlap)

	require.NoError(t, env.queue.CopyBufferRange(b, b, 0, 8, 8))
	got := make([]byte, 16)
	require.NoError(t, env.queue.ReadBuffer(b, 0, got, Blocking()))
	assert.Equal(t, "0123456701234567", string(got))
}

func TestFillBuffer(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 64, MemReadWrite, nil)
	require.NoError(t, Fill(env.queue, b, float32(2.5)))
	got := make([]float32, 16)
	require.NoError(t, Read(env.queue, b, 0, got, Blocking()))
	for i, v := range got {
		assert.Equal(t, float32(2.5), v, "element %d", i)
	}
	requireKind(t, env.queue.FillBuffer(b, []byte{1, 2, 3}), ErrInvalidArgument)
}

func TestInOrderExecution(t *testing.T) {
	env := newTestEnv(t)
	dst := env.buffer(t, 4, MemReadWrite, nil)
	k := env.kernel(t, "delayed_store")
	require.NoError(t, k.SetArgs(dst, int32(1)))

	var slow, fast *Event
	require.NoError(t, env.queue.Dispatch(k, NDRange{Global: []int{1}}, Completion(&slow)))
	require.NoError(t, Write(env.queue, dst, 0, []int32{2}, Completion(&fast)))
	defer slow.Release()
	defer fast.Release()

	got := make([]int32, 1)
	require.NoError(t, Read(env.queue, dst, 0, got, Blocking()))
	assert.Equal(t, int32(2), got[0])

	a, err := slow.Profile()
	require.NoError(t, err)
	b, err := fast.Profile()
	require.NoError(t, err)
	assert.LessOrEqual(t, a.Ended, b.Started)
}

func TestCrossQueueWaitList(t *testing.T) {
	env := newTestEnv(t)
	other, err := env.ctx.CreateQueue(false)
	require.NoError(t, err)
	defer other.Release()

	dst := env.buffer(t, 4, MemReadWrite, nil)
	k := env.kernel(t, "delayed_store")
	require.NoError(t, k.SetArgs(dst, int32(7)))

	var done *Event
	require.NoError(t, env.queue.Dispatch(k, NDRange{Global: []int{1}}, Completion(&done)))
	defer done.Release()
	require.NoError(t, env.queue.Flush())

	got := make([]int32, 1)
	require.NoError(t, Read(other, dst, 0, got, WaitFor(done), Blocking()))
	assert.Equal(t, int32(7), got[0])
}

func TestOutOfOrderBarrier(t *testing.T) {
	env := newTestEnv(t)
	q, err := env.ctx.CreateQueueWithOptions(QueueOptions{OutOfOrder: true, Profiling: true})
	require.NoError(t, err)
	defer q.Release()
	assert.True(t, q.OutOfOrder())

	dst := env.buffer(t, 8, MemReadWrite, nil)
	k := env.kernel(t, "delayed_store")
	require.NoError(t, k.SetArgs(dst, int32(5)))
	require.NoError(t, q.Dispatch(k, NDRange{Global: []int{1}}))
	require.NoError(t, Write(q, dst, 1, []int32{9}))
	require.NoError(t, q.Barrier())

	got := make([]int32, 2)
	require.NoError(t, Read(q, dst, 0, got, Blocking()))
	assert.Equal(t, []int32{5, 9}, got)
}

func TestMarker(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 4, MemReadWrite, nil)
	var w, m *Event
	require.NoError(t, Write(env.queue, b, 0, []int32{1}, Completion(&w)))
	require.NoError(t, env.queue.Marker(WaitFor(w), Completion(&m)))
	require.NoError(t, m.Wait())
	s, err := w.Status()
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, s)
	require.NoError(t, w.Release())
	require.NoError(t, m.Release())
}

func TestDependencyFailure(t *testing.T) {
	env := newTestEnv(t)
	gate, err := env.ctx.CreateUserEvent()
	require.NoError(t, err)
	defer gate.Release()

	b := env.buffer(t, 4, MemReadWrite, nil)
	var ev *Event
	require.NoError(t, Write(env.queue, b, 0, []int32{1}, WaitFor(gate), Completion(&ev)))
	defer ev.Release()

	require.NoError(t, gate.SetStatus(ExecStatus(driver.OutOfResources)))
	requireKind(t, ev.Wait(), ErrDependencyFailed)
	_, err = ev.Status()
	requireKind(t, err, ErrDependencyFailed)
}

func TestKernelFailure(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 4, MemReadWrite, nil)
	k := env.kernel(t, "broken")
	require.NoError(t, k.SetArg(0, b))

	var ev *Event
	require.NoError(t, env.queue.Dispatch(k, NDRange{Global: []int{1}}, Completion(&ev)))
	defer ev.Release()
	requireKind(t, ev.Wait(), ErrResourceExhausted)

	requireKind(t, env.queue.Dispatch(k, NDRange{Global: []int{1}}, Blocking()), ErrResourceExhausted)
}

func TestDispatchAdd(t *testing.T) {
	env := newTestEnv(t)
	const n = 256
	a, b := make([]float32, n), make([]float32, n)
	for i := range a {
		a[i], b[i] = float32(i), float32(2*i)
	}
	ba := env.buffer(t, 4*n, MemReadOnly|MemCopyHostPtr, Bytes(a))
	bb := env.buffer(t, 4*n, MemReadOnly|MemCopyHostPtr, Bytes(b))
	bc := env.buffer(t, 4*n, MemWriteOnly, nil)

	k := env.kernel(t, "add")
	require.NoError(t, k.SetArgs(ba, bb, bc))
	require.NoError(t, env.queue.Dispatch(k, NDRange{Global: []int{n}, Local: []int{64}}))

	got := make([]float32, n)
	require.NoError(t, Read(env.queue, bc, 0, got, Blocking()))
	for i := range got {
		require.Equal(t, float32(3*i), got[i], "element %d", i)
	}
}

func TestDispatchWorkSize(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 64*4, MemReadWrite, nil)
	k := env.kernel(t, "scale")
	require.NoError(t, k.SetArgs(b, float32(2)))

	tests := []struct {
		name string
		r    NDRange
	}{
		{"no dimensions", NDRange{}},
		{"four dimensions", NDRange{Global: []int{1, 1, 1, 1}}},
		{"local rank mismatch", NDRange{Global: []int{8, 8}, Local: []int{4}}},
		{"offset rank mismatch", NDRange{Global: []int{8}, Offset: []int{0, 0}}},
		{"zero global", NDRange{Global: []int{0}}},
		{"zero local", NDRange{Global: []int{8}, Local: []int{0}}},
		{"not divisible", NDRange{Global: []int{10}, Local: []int{4}}},
		{"group too large", NDRange{Global: []int{64}, Local: []int{64}}},
	}
	env2 := newTestEnv(t, host.WithMaxWorkGroupSize(32))
	b2 := env2.buffer(t, 64*4, MemReadWrite, nil)
	k2 := env2.kernel(t, "scale")
	require.NoError(t, k2.SetArgs(b2, float32(2)))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireKind(t, env2.queue.Dispatch(k2, tt.r), ErrInvalidWorkSize)
		})
	}
	require.NoError(t, env.queue.Dispatch(k, NDRange{Global: []int{64}, Local: []int{16}}, Blocking()))
}

func TestNonUniformWorkGroups(t *testing.T) {
	env := newTestEnv(t, host.WithNonUniformWorkGroups(true))
	b := env.buffer(t, 10*4, MemReadWrite, nil)
	require.NoError(t, Fill(env.queue, b, float32(1)))
	k := env.kernel(t, "scale")
	require.NoError(t, k.SetArgs(b, float32(3)))
	require.NoError(t, env.queue.Dispatch(k, NDRange{Global: []int{10}, Local: []int{4}}))

	got := make([]float32, 10)
	require.NoError(t, Read(env.queue, b, 0, got, Blocking()))
	for i, v := range got {
		assert.Equal(t, float32(3), v, "element %d", i)
	}
}

func TestDispatchOffset(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 8*4, MemReadWrite, nil)
	require.NoError(t, Fill(env.queue, b, float32(1)))
	k := env.kernel(t, "scale")
	require.NoError(t, k.SetArgs(b, float32(4)))
	require.NoError(t, env.queue.Dispatch(k, NDRange{Offset: []int{4}, Global: []int{4}}))

	got := make([]float32, 8)
	require.NoError(t, Read(env.queue, b, 0, got, Blocking()))
	assert.Equal(t, []float32{1, 1, 1, 1, 4, 4, 4, 4}, got)
}

func TestDispatchUnboundArguments(t *testing.T) {
	env := newTestEnv(t)
	k := env.kernel(t, "add")
	requireKind(t, env.queue.Dispatch(k, NDRange{Global: []int{4}}), ErrInvalidArgument)
}

func TestLocalMemory(t *testing.T) {
	env := newTestEnv(t)
	out := env.buffer(t, 4, MemReadWrite, nil)
	k := env.kernel(t, "scratch")
	require.NoError(t, k.SetArgs(out, Local(64*4)))
	require.NoError(t, env.queue.Dispatch(k, NDRange{Global: []int{64}, Local: []int{64}}, Blocking()))

	require.NoError(t, k.SetArg(1, Local(1<<20)))
	requireKind(t, env.queue.Dispatch(k, NDRange{Global: []int{64}, Local: []int{64}}), ErrResourceExhausted)
}

func TestMapBuffer(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 16, MemReadWrite, nil)
	require.NoError(t, Fill[uint8](env.queue, b, 0))

	m, err := env.queue.MapBuffer(b, MapWrite, 4, 8, Blocking())
	require.NoError(t, err)
	assert.True(t, m.Writable())
	assert.True(t, b.Mapped())
	copy(m.Bytes(), "mappedXY")

	requireKind(t, env.queue.WriteBuffer(b, 0, []byte{1}), ErrInvalidOperation)
	k := env.kernel(t, "scale")
	require.NoError(t, k.SetArgs(b, float32(1)))
	requireKind(t, env.queue.Dispatch(k, NDRange{Global: []int{4}}), ErrInvalidOperation)

	require.NoError(t, env.queue.Unmap(m))
	requireKind(t, env.queue.Unmap(m), ErrInvalidArgument)
	assert.False(t, b.Mapped())

	got := make([]byte, 16)
	require.NoError(t, env.queue.ReadBuffer(b, 0, got, Blocking()))
	assert.Equal(t, "mappedXY", string(got[4:12]))
	assert.True(t, bytes.Equal(got[:4], []byte{0, 0, 0, 0}))
}

func TestMapFlags(t *testing.T) {
	env := newTestEnv(t)
	b := env.buffer(t, 16, MemReadWrite, nil)
	_, err := env.queue.MapBuffer(b, 0, 0, 16)
	requireKind(t, err, ErrInvalidArgument)
	_, err = env.queue.MapBuffer(b, MapRead|MapWriteInvalidateRegion, 0, 16)
	requireKind(t, err, ErrInvalidArgument)

	m, err := env.queue.MapBuffer(b, MapRead, 0, 16, Blocking())
	require.NoError(t, err)
	require.NoError(t, env.queue.WriteBuffer(b, 0, []byte{1}))
	require.NoError(t, env.queue.Unmap(m))
}

func TestUseHostPtrAliasing(t *testing.T) {
	env := newTestEnv(t)
	backing := make([]byte, 8)
	b := env.buffer(t, 8, MemReadWrite|MemUseHostPtr, backing)
	require.NoError(t, env.queue.WriteBuffer(b, 0, []byte("aliased!"), Blocking()))

	m, err := env.queue.MapBuffer(b, MapRead, 0, 8, Blocking())
	require.NoError(t, err)
	assert.Equal(t, "aliased!", string(m.Bytes()))
	require.NoError(t, env.queue.Unmap(m, Blocking()))
	assert.Equal(t, "aliased!", string(backing))
}

func TestImageRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	format := ImageFormat{Order: driver.ChannelRGBA, Type: driver.UnsignedInt8}
	img, err := env.ctx.CreateImage(MemReadWrite, format, 4, 3, 0, nil)
	require.NoError(t, err)
	defer img.Release()

	px := make([]byte, 2*2*4)
	for i := range px {
		px[i] = byte(i + 1)
	}
	require.NoError(t, env.queue.WriteImage(img, [2]int{1, 1}, [2]int{2, 2}, px))
	got := make([]byte, len(px))
	require.NoError(t, env.queue.ReadImage(img, [2]int{1, 1}, [2]int{2, 2}, got, Blocking()))
	assert.Equal(t, px, got)

	requireKind(t, env.queue.ReadImage(img, [2]int{3, 0}, [2]int{2, 1}, got), ErrInvalidArgument)
}

func TestMapImage(t *testing.T) {
	env := newTestEnv(t)
	format := ImageFormat{Order: driver.ChannelR, Type: driver.UnsignedInt8}
	img, err := env.ctx.CreateImage(MemReadWrite, format, 4, 4, 0, nil)
	require.NoError(t, err)
	defer img.Release()

	m, err := env.queue.MapImage(img, MapWrite, [2]int{0, 0}, [2]int{4, 4}, Blocking())
	require.NoError(t, err)
	require.Equal(t, 4, m.RowPitch())
	for y := range 4 {
		m.Bytes()[y*m.RowPitch()+y] = 9
	}
	require.NoError(t, env.queue.Unmap(m))

	got := make([]byte, 16)
	require.NoError(t, env.queue.ReadImage(img, [2]int{0, 0}, [2]int{4, 4}, got, Blocking()))
	for y := range 4 {
		assert.Equal(t, byte(9), got[y*4+y])
	}
}

func TestCopyBufferToImage(t *testing.T) {
	env := newTestEnv(t)
	format := ImageFormat{Order: driver.ChannelRGBA, Type: driver.Float}
	img, err := env.ctx.CreateImage(MemReadOnly, format, 2, 2, 0, nil)
	require.NoError(t, err)
	defer img.Release()

	pixels := []float32{
		0.25, 0, 0, 1, 0.5, 0, 0, 1,
		0.75, 0, 0, 1, 1, 0, 0, 1,
	}
	src := env.buffer(t, len(pixels)*4, MemReadOnly|MemCopyHostPtr, Bytes(pixels))
	require.NoError(t, env.queue.CopyBufferToImage(src, img, 0, [2]int{0, 0}, [2]int{2, 2}))

	out := env.buffer(t, 4, MemWriteOnly, nil)
	k := env.kernel(t, "sample_pixel")
	require.NoError(t, k.SetArgs(img, out))
	require.NoError(t, env.queue.Dispatch(k, NDRange{Global: []int{1}}))
	got := make([]float32, 1)
	require.NoError(t, Read(env.queue, out, 0, got, Blocking()))
	assert.Equal(t, float32(0.25), got[0])

	requireKind(t, env.queue.CopyBufferToImage(src, img, 16, [2]int{0, 0}, [2]int{2, 2}), ErrInvalidArgument)
}

func TestSharedTexture(t *testing.T) {
	env := newTestEnv(t)
	format := ImageFormat{Order: driver.ChannelRGBA, Type: driver.Float}
	env.drv.RegisterTexture(7, format, 1, 1, Bytes([]float32{0.5, 0, 0, 1}))

	tex, err := env.ctx.CreateImageFromTexture(MemReadOnly, 7, format, 1, 1)
	require.NoError(t, err)
	defer tex.Release()
	assert.True(t, tex.Interop())

	out := env.buffer(t, 4, MemWriteOnly, nil)
	k := env.kernel(t, "sample_pixel")
	require.NoError(t, k.SetArgs(tex, out))
	requireKind(t, env.queue.Dispatch(k, NDRange{Global: []int{1}}), ErrInvalidOperation)

	shared := []MemoryObject{tex}
	require.NoError(t, env.queue.AcquireShared(shared))
	requireKind(t, env.queue.AcquireShared(shared), ErrInvalidOperation)
	require.NoError(t, env.queue.Dispatch(k, NDRange{Global: []int{1}}))
	require.NoError(t, env.queue.ReleaseShared(shared))

	got := make([]float32, 1)
	require.NoError(t, Read(env.queue, out, 0, got, Blocking()))
	assert.Equal(t, float32(0.5), got[0])

	requireKind(t, env.queue.AcquireShared([]MemoryObject{out}), ErrInvalidArgument)
	_, err = env.ctx.CreateImageFromTexture(MemReadOnly, 99, format, 1, 1)
	requireKind(t, err, ErrInvalidMemObject)
}

func TestContextMismatch(t *testing.T) {
	env := newTestEnv(t)
	other, err := env.platform.CreateContext(env.device)
	require.NoError(t, err)
	defer other.Release()

	foreign, err := other.CreateBuffer(4, MemReadWrite, nil)
	require.NoError(t, err)
	defer foreign.Release()
	requireKind(t, env.queue.WriteBuffer(foreign, 0, []byte{1}), ErrInvalidContext)

	k := env.kernel(t, "broken")
	requireKind(t, k.SetArg(0, foreign), ErrInvalidContext)

	ev, err := other.CreateUserEvent()
	require.NoError(t, err)
	defer ev.Release()
	requireKind(t, env.queue.Marker(WaitFor(ev)), ErrInvalidContext)
}

func TestReleasedQueue(t *testing.T) {
	env := newTestEnv(t)
	q, err := env.ctx.CreateQueue(false)
	require.NoError(t, err)
	require.NoError(t, q.Release())
	require.NoError(t, q.Release())
	requireKind(t, q.Finish(), ErrInvalidQueue)
	requireKind(t, q.Barrier(), ErrInvalidQueue)
}

func TestQueueLimit(t *testing.T) {
	env := newTestEnv(t, host.WithMaxQueues(1))
	_, err := env.ctx.CreateQueue(false)
	requireKind(t, err, ErrResourceExhausted)
}

func TestReleasedWaitEvent(t *testing.T) {
	env := newTestEnv(t)
	ev, err := env.ctx.CreateUserEvent()
	require.NoError(t, err)
	require.NoError(t, ev.Release())
	requireKind(t, env.queue.Marker(WaitFor(ev)), ErrInvalidEvent)
	requireKind(t, env.queue.Marker(WaitFor(nil)), ErrInvalidEvent)
}
