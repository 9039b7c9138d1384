package cl

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clhost/internal/driver/host"
)

func TestOpenAndSelect(t *testing.T) {
	p, err := Open(host.New())
	require.NoError(t, err)
	require.Len(t, p.Devices(), 1)
	assert.Equal(t, "host", p.Driver().Name())
	assert.NotEmpty(t, p.Info().Name)

	dev, err := p.SelectDevice(DeviceTypeAll)
	require.NoError(t, err)
	assert.Equal(t, DeviceTypeCPU, dev.Type())

	_, err = p.SelectDevice(DeviceTypeGPU)
	requireKind(t, err, ErrDeviceUnavailable)

	gpu, err := Open(host.New(host.WithDeviceType(DeviceTypeGPU), host.WithName("Emulated GPU")))
	require.NoError(t, err)
	dev, err = gpu.SelectDevice(DeviceTypeAll)
	require.NoError(t, err)
	assert.Equal(t, "Emulated GPU", dev.Name())
}

func TestDeviceInfoSnapshot(t *testing.T) {
	p, err := Open(host.New())
	require.NoError(t, err)
	dev := p.Devices()[0]

	info := dev.Info()
	require.NotEmpty(t, info.MaxWorkItemSizes)
	info.MaxWorkItemSizes[0] = 1
	assert.NotEqual(t, uint64(1), dev.Info().MaxWorkItemSizes[0])

	major, minor := dev.Version()
	assert.Equal(t, [2]int{2, 0}, [2]int{major, minor})
	assert.True(t, dev.SupportsProfiling())
	assert.True(t, dev.SupportsOutOfOrder())
	assert.True(t, dev.HasExtension("cl_khr_gl_sharing"))
	assert.False(t, dev.HasExtension("cl_khr_gl"))
}

func TestDeviceQueue(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ctx.CreateDeviceQueue(0)
	requireKind(t, err, ErrUnsupportedFeature)

	env = newTestEnv(t, host.WithDeviceEnqueue(true))
	q, err := env.ctx.CreateDeviceQueue(0)
	require.NoError(t, err)
	defer q.Release()
	assert.True(t, q.OnDevice())
	assert.True(t, q.OutOfOrder())
}

func TestProfilingUnsupported(t *testing.T) {
	p, err := Open(host.New(host.WithProfiling(false)))
	require.NoError(t, err)
	ctx, err := p.CreateContext(p.Devices()[0])
	require.NoError(t, err)
	defer ctx.Release()
	assert.False(t, ctx.Device().SupportsProfiling())

	_, err = ctx.CreateQueue(true)
	requireKind(t, err, ErrUnsupportedFeature)

	q, err := ctx.CreateQueueWithOptions(QueueOptions{OutOfOrder: true})
	require.NoError(t, err)
	assert.True(t, q.OutOfOrder())
	require.NoError(t, q.Release())
}

func TestContextRetain(t *testing.T) {
	env := newTestEnv(t)
	c2, err := env.ctx.Retain()
	require.NoError(t, err)
	require.NoError(t, c2.Release())
	require.NoError(t, c2.Release())
	_, err = c2.CreateBuffer(4, MemReadWrite, nil)
	requireKind(t, err, ErrInvalidContext)

	b := env.buffer(t, 4, MemReadWrite, nil)
	require.NoError(t, env.queue.WriteBuffer(b, 0, []byte{1, 2, 3, 4}, Blocking()))
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer SetLogger(nil)

	env := newTestEnv(t)
	env.program(t)
	assert.Contains(t, buf.String(), "Building program")
	assert.Contains(t, buf.String(), "program=test.cl")
}
