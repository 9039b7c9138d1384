package cl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clhost/internal/driver"
	"github.com/cwbudde/clhost/internal/driver/host"
)

func TestProgramStates(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.ctx.CreateProgramFromSource("test.cl", testSource)
	require.NoError(t, err)
	defer p.Release()
	assert.Equal(t, ProgramUncompiled, p.State())

	_, err = p.Kernel("scale")
	requireKind(t, err, ErrInvalidOperation)

	require.NoError(t, p.Build("-D TILE=4"))
	assert.Equal(t, ProgramBuilt, p.State())
	assert.Contains(t, p.Options(), "-D TILE=4")
	assert.Contains(t, p.Options(), "-cl-std=CL2.0")

	k, err := p.Kernel("scale")
	require.NoError(t, err)
	assert.Equal(t, 2, k.NumArgs())

	requireKind(t, p.Build(), ErrInvalidOperation)
	assert.Equal(t, ProgramBuilt, p.State())
	require.NoError(t, k.Release())
	require.NoError(t, p.Build())
}

func TestBuildFailureCarriesLog(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.ctx.CreateProgramFromSource("bad.cl", "__kernel void scale(__global float* data, float factor) {\n\tdata[0] = factor;\n")
	require.NoError(t, err)
	defer p.Release()

	err = p.Build()
	requireKind(t, err, ErrBuildFailure)
	var clErr *Error
	require.True(t, errors.As(err, &clErr))
	assert.NotEmpty(t, clErr.Log)
	assert.Equal(t, clErr.Log, p.BuildLog())
	assert.Equal(t, ProgramBuildFailed, p.State())

	_, err = p.Kernel("scale")
	requireKind(t, err, ErrInvalidOperation)
}

// silentLogDriver fails every build log query.
type silentLogDriver struct{ *host.Driver }

func (silentLogDriver) ProgramBuildLog(driver.Program, driver.DeviceID) (string, driver.Status) {
	return "", driver.InvalidProgram
}

func TestBuildFailureWithoutLog(t *testing.T) {
	p, err := Open(silentLogDriver{host.New(host.WithLibrary(testLibrary()))})
	require.NoError(t, err)
	ctx, err := p.CreateContext(p.Devices()[0])
	require.NoError(t, err)
	defer ctx.Release()

	prog, err := ctx.CreateProgramFromSource("bad.cl", "__kernel void scale(__global float* data {")
	require.NoError(t, err)
	defer prog.Release()

	err = prog.Build()
	requireKind(t, err, ErrBuildFailure)
	var clErr *Error
	require.True(t, errors.As(err, &clErr))
	assert.Empty(t, clErr.Log)
	assert.Contains(t, clErr.Msg, "build log unavailable")
	assert.Contains(t, err.Error(), "build log unavailable")
}

func TestBuildFailureMissingImplementation(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.ctx.CreateProgramFromSource("extra.cl", "__kernel void nowhere(__global int* x) { x[0] = 0; }")
	require.NoError(t, err)
	defer p.Release()

	err = p.Build()
	requireKind(t, err, ErrBuildFailure)
	assert.Contains(t, err.Error(), "nowhere")
}

func TestInvalidBuildOption(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.ctx.CreateProgramFromSource("test.cl", testSource)
	require.NoError(t, err)
	defer p.Release()
	requireKind(t, p.Build("-fno-such-flag"), ErrInvalidArgument)
	assert.Contains(t, p.BuildLog(), "-fno-such-flag")
}

func TestLanguageVersionClamp(t *testing.T) {
	env := newTestEnv(t, host.WithVersion("OpenCL 1.2 clhost"))
	p := env.program(t)
	assert.Contains(t, p.Options(), "-cl-std=CL1.2")

	q, err := env.ctx.CreateProgramFromSource("test.cl", testSource)
	require.NoError(t, err)
	defer q.Release()
	requireKind(t, q.Build("-cl-std=CL2.0"), ErrBuildFailure)
}

func TestCreateProgramFromFile(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "kernels.cl")
	require.NoError(t, os.WriteFile(path, []byte(testSource), 0o644))

	p, err := env.ctx.CreateProgram(path)
	require.NoError(t, err)
	defer p.Release()
	assert.Equal(t, "kernels.cl", p.Name())
	assert.Equal(t, ProgramBuilt, p.State())

	_, err = env.ctx.CreateProgram(filepath.Join(dir, "missing.cl"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.cl")
	require.NoError(t, os.WriteFile(bad, []byte("__kernel int f() { return 0; }"), 0o644))
	_, err = env.ctx.CreateProgram(bad)
	requireKind(t, err, ErrBuildFailure)
}

func TestKernelNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.program(t).Kernel("missing")
	requireKind(t, err, ErrKernelNotFound)
}

func TestSetArgValidation(t *testing.T) {
	env := newTestEnv(t)
	k := env.kernel(t, "scale")
	b := env.buffer(t, 16, MemReadWrite, nil)

	requireKind(t, k.SetArg(2, float32(1)), ErrInvalidArgIndex)
	requireKind(t, k.SetArg(-1, float32(1)), ErrInvalidArgIndex)
	requireKind(t, k.SetArg(1, float64(1)), ErrInvalidArgSize)
	requireKind(t, k.SetArgBytes(1, []byte{1, 2}), ErrInvalidArgSize)
	requireKind(t, k.SetArg(1, "text"), ErrInvalidArgument)
	requireKind(t, k.SetArg(0, (*Buffer)(nil)), ErrInvalidMemObject)
	require.NoError(t, k.SetArg(0, b))
	require.NoError(t, k.SetArg(1, float32(1)))
	require.NoError(t, k.SetArg(1, 3))

	released, err := env.ctx.CreateBuffer(4, MemReadWrite, nil)
	require.NoError(t, err)
	require.NoError(t, released.Release())
	requireKind(t, k.SetArg(0, released), ErrInvalidMemObject)
}

func TestKernelWorkGroupInfo(t *testing.T) {
	env := newTestEnv(t, host.WithPreferredWorkGroupMultiple(32), host.WithMaxWorkGroupSize(128))
	k := env.kernel(t, "scale")

	size, err := k.WorkGroupSize()
	require.NoError(t, err)
	assert.Equal(t, 128, size)

	multiple, err := k.PreferredWorkGroupSizeMultiple()
	require.NoError(t, err)
	assert.Equal(t, 32, multiple)

	tile, err := k.SquareWorkGroupSize2D()
	require.NoError(t, err)
	assert.Equal(t, [2]int{8, 4}, tile)

	_, err = k.LocalMemSize()
	require.NoError(t, err)
	_, err = k.PrivateMemSize()
	require.NoError(t, err)
}

func TestKernelRetainSharesArguments(t *testing.T) {
	env := newTestEnv(t)
	k := env.kernel(t, "scale")
	b := env.buffer(t, 4*4, MemReadWrite, nil)
	require.NoError(t, Fill(env.queue, b, float32(1)))
	require.NoError(t, k.SetArgs(b, float32(5)))

	k2, err := k.Retain()
	require.NoError(t, err)
	require.NoError(t, k.Release())
	require.NoError(t, env.queue.Dispatch(k2, NDRange{Global: []int{4}}))
	require.NoError(t, k2.Release())

	requireKind(t, env.queue.Dispatch(k, NDRange{Global: []int{4}}), ErrInvalidKernel)
	got := make([]float32, 4)
	require.NoError(t, Read(env.queue, b, 0, got, Blocking()))
	assert.Equal(t, []float32{5, 5, 5, 5}, got)
}
