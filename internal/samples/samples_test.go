package samples

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clhost/internal/cl"
	"github.com/cwbudde/clhost/internal/driver/host"
)

func newEnv(t *testing.T, profiling bool, opts ...host.Option) Env {
	t.Helper()
	drv := host.New(append([]host.Option{host.WithLibrary(Library())}, opts...)...)
	p, err := cl.Open(drv)
	require.NoError(t, err)
	dev, err := p.SelectDevice(cl.DeviceTypeAll)
	require.NoError(t, err)
	ctx, err := p.CreateContext(dev)
	require.NoError(t, err)
	q, err := ctx.CreateQueue(profiling)
	require.NoError(t, err)
	t.Cleanup(func() {
		q.Release()
		ctx.Release()
	})
	return Env{Context: ctx, Queue: q}
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.N = 4096
	cfg.Width, cfg.Height = 64, 48
	return cfg
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"add", "enqueue", "image", "sort"}, Names())
	s, ok := Lookup("sort")
	require.True(t, ok)
	assert.NotEmpty(t, s.Description)
	_, ok = Lookup("missing")
	assert.False(t, ok)

	enq, _ := Lookup("enqueue")
	assert.True(t, enq.NeedsDeviceQueue)
}

func TestEmbeddedSourcesBuild(t *testing.T) {
	env := newEnv(t, false)
	for _, tc := range []struct {
		file    string
		options []string
		kernels []string
	}{
		{"add.cl", nil, []string{"Add"}},
		{"enqueue.cl", nil, []string{"compute"}},
		{"image_read.cl", nil, []string{"RandomImageRead"}},
		{"sort.cl", []string{"-D WORK_GROUP_SIZE=64"}, []string{"bitonicSortLocal", "merge"}},
	} {
		t.Run(tc.file, func(t *testing.T) {
			p, err := buildProgram(env.Context, Config{}, tc.file, tc.options...)
			require.NoError(t, err)
			defer p.Release()
			for _, name := range tc.kernels {
				k, err := p.Kernel(name)
				require.NoError(t, err, name)
				require.NoError(t, k.Release())
			}
		})
	}
}

func TestSortRequiresGroupSize(t *testing.T) {
	env := newEnv(t, false)
	_, err := buildProgram(env.Context, Config{}, "sort.cl")
	require.ErrorIs(t, err, cl.ErrBuildFailure)
	assert.Contains(t, err.Error(), "WORK_GROUP_SIZE must be defined")
}

func TestAdd(t *testing.T) {
	env := newEnv(t, true)
	res, err := runAdd(env, smallConfig())
	require.NoError(t, err)
	assert.Equal(t, "add", res.Sample)
	assert.Equal(t, 4096, res.Items)
	assert.Positive(t, res.Total)
}

func TestAddWithoutProfiling(t *testing.T) {
	env := newEnv(t, false)
	res, err := runAdd(env, smallConfig())
	require.NoError(t, err)
	assert.Zero(t, res.KernelTime)
}

func TestEnqueue(t *testing.T) {
	env := newEnv(t, true, host.WithDeviceEnqueue(true))
	res, err := runEnqueue(env, smallConfig())
	require.NoError(t, err)
	assert.Equal(t, 10, res.Items)
}

func TestEnqueueWithoutDeviceQueue(t *testing.T) {
	env := newEnv(t, true)
	_, err := runEnqueue(env, smallConfig())
	require.ErrorIs(t, err, cl.ErrResourceExhausted)
}

func TestImageRead(t *testing.T) {
	env := newEnv(t, true)
	res, err := runImageRead(env, smallConfig())
	require.NoError(t, err)
	assert.Equal(t, 64*48, res.Items)
	require.NotEmpty(t, res.Fields)
	assert.Equal(t, "64x48 R/UINT8", res.Fields[0].Value)
}

func TestSort(t *testing.T) {
	for _, tc := range []struct {
		name       string
		n          int
		descending bool
	}{
		{"power of two", 4096, false},
		{"descending", 4096, true},
		{"uneven chunks", 3000, false},
		{"single group", 128, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newEnv(t, true)
			cfg := smallConfig()
			cfg.N = tc.n
			cfg.Descending = tc.descending
			res, err := runSort(env, cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.n, res.Items)
		})
	}
}

func TestSortGroupSize(t *testing.T) {
	assert.Equal(t, 256, sortGroupSize(256, 1<<20))
	assert.Equal(t, 8, sortGroupSize(256, 3000))
	assert.Equal(t, 1, sortGroupSize(256, 7))
	assert.Equal(t, 64, sortGroupSize(100, 4096))
}

func TestKernelDirOverride(t *testing.T) {
	dir := t.TempDir()
	src, err := Source("add.cl")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "add.cl"), []byte(src), 0o644))

	env := newEnv(t, true)
	cfg := smallConfig()
	cfg.KernelDir = dir
	_, err = runAdd(env, cfg)
	require.NoError(t, err)

	cfg.KernelDir = filepath.Join(dir, "missing")
	_, err = runAdd(env, cfg)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestInvalidSizes(t *testing.T) {
	env := newEnv(t, false)
	cfg := Config{}
	for _, s := range All() {
		_, err := s.Run(env, cfg)
		assert.Error(t, err, s.Name)
	}
}

func TestCompletionEventOwnedByScope(t *testing.T) {
	env := newEnv(t, true)
	var scope cl.Scope

	prog, err := buildProgram(env.Context, Config{}, "add.cl")
	require.NoError(t, err)
	scope.Add(prog)
	k, err := prog.Kernel("Add")
	require.NoError(t, err)
	scope.Add(k)
	args := make([]any, 0, 4)
	for range 3 {
		b, err := env.Context.CreateBuffer(4*64, cl.MemReadWrite, nil)
		require.NoError(t, err)
		scope.Add(b)
		args = append(args, b)
	}
	require.NoError(t, k.SetArgs(append(args, uint32(1))...))

	var ev *cl.Event
	require.NoError(t, env.Queue.Dispatch(k, cl.NDRange{Global: []int{64}}, cl.Completion(&ev)))
	scope.Add(ev)
	require.NoError(t, env.Queue.Finish())

	// Reading the time does not give up the event.
	_, err = kernelTime(env.Queue, ev)
	require.NoError(t, err)
	_, err = kernelTime(env.Queue, ev)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		n, err := ev.ReferenceCount()
		return err == nil && n == 1
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, scope.Close())
	_, err = ev.ReferenceCount()
	assert.ErrorIs(t, err, cl.ErrInvalidEvent)
}
