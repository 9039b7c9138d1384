package cl

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clhost/internal/driver/host"
)

const testSource = `
// Kernels used by the package tests.
__kernel void scale(__global float* data, float factor) {
	data[get_global_id(0)] *= factor;
}

__kernel void add(__global const float* a, __global const float* b, __global float* c) {
	int i = get_global_id(0);
	c[i] = a[i] + b[i];
}

__kernel void delayed_store(__global int* dst, int value) {
	dst[0] = value;
}

__kernel void broken(__global int* dst) {
	dst[0] = 1;
}

__kernel void sample_pixel(__read_only image2d_t img, __global float* out) {
	out[0] = read_imagef(img, (int2)(0, 0)).x;
}

__kernel void scratch(__global int* out, __local int* tmp) {
	tmp[get_local_id(0)] = 1;
}
`

// storeDelay keeps delayed_store running long enough for ordering tests to
// observe overlap.
const storeDelay = 30 * time.Millisecond

var scaleCalls atomic.Int64

func testLibrary() *host.Library {
	return host.NewLibrary().
		Register("scale", func(g *host.Group) error {
			scaleCalls.Add(1)
			data, factor := g.Float32s(0), g.Float32(1)
			g.ForEach(func(it host.Item) { data[it.Global[0]] *= factor })
			return nil
		}).
		Register("add", func(g *host.Group) error {
			a, b, c := g.Float32s(0), g.Float32s(1), g.Float32s(2)
			g.ForEach(func(it host.Item) {
				i := it.Global[0]
				c[i] = a[i] + b[i]
			})
			return nil
		}).
		Register("delayed_store", func(g *host.Group) error {
			time.Sleep(storeDelay)
			g.Int32s(0)[0] = g.Int32(1)
			return nil
		}).
		Register("broken", func(g *host.Group) error {
			return errors.New("kernel fault")
		}).
		Register("sample_pixel", func(g *host.Group) error {
			g.Float32s(1)[0] = g.Image(0).ReadFloat(0, 0)[0]
			return nil
		}).
		Register("scratch", func(g *host.Group) error {
			tmp := g.Int32s(1)
			g.ForEach(func(it host.Item) { tmp[it.Local[0]] = 1 })
			return nil
		})
}

type testEnv struct {
	drv      *host.Driver
	platform *Platform
	device   *Device
	ctx      *Context
	queue    *Queue
}

// newTestEnv opens a host device with the test kernels, one context and an
// in-order profiling queue.
func newTestEnv(t *testing.T, opts ...host.Option) *testEnv {
	t.Helper()
	drv := host.New(append([]host.Option{host.WithLibrary(testLibrary())}, opts...)...)
	p, err := Open(drv)
	require.NoError(t, err)
	dev, err := p.SelectDevice(DeviceTypeAll)
	require.NoError(t, err)
	ctx, err := p.CreateContext(dev)
	require.NoError(t, err)
	q, err := ctx.CreateQueue(true)
	require.NoError(t, err)
	t.Cleanup(func() {
		q.Finish()
		q.Release()
		ctx.Release()
	})
	return &testEnv{drv: drv, platform: p, device: dev, ctx: ctx, queue: q}
}

func (e *testEnv) program(t *testing.T) *Program {
	t.Helper()
	p, err := e.ctx.CreateProgramFromSource("test.cl", testSource)
	require.NoError(t, err)
	require.NoError(t, p.Build())
	t.Cleanup(func() { p.Release() })
	return p
}

func (e *testEnv) kernel(t *testing.T, name string) *Kernel {
	t.Helper()
	k, err := e.program(t).Kernel(name)
	require.NoError(t, err)
	t.Cleanup(func() { k.Release() })
	return k
}

func (e *testEnv) buffer(t *testing.T, size int, flags MemFlags, host []byte) *Buffer {
	t.Helper()
	b, err := e.ctx.CreateBuffer(size, flags, host)
	require.NoError(t, err)
	t.Cleanup(func() { b.Release() })
	return b
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind, "got %v", err)
}
