package samples

import (
	"time"

	"github.com/pkg/errors"

	"github.com/cwbudde/clhost/internal/cl"
)

func init() {
	register(Sample{
		Name:        "add",
		Description: "Add two uint buffers and a constant into a third buffer",
		Run:         runAdd,
	})
}

const addDelta = 50

func runAdd(env Env, cfg Config) (res *Result, err error) {
	start := time.Now()
	n := cfg.N
	if n <= 0 {
		return nil, errors.Errorf("add: invalid size %d", n)
	}
	ctx, q := env.Context, env.Queue

	var scope cl.Scope
	defer func() {
		if cerr := scope.Close(); err == nil {
			err = cerr
		}
	}()

	inputA := make([]uint32, n)
	inputB := make([]uint32, n)
	for i := range inputA {
		inputA[i] = uint32(i)
		inputB[i] = uint32(i)
	}

	a, err := ctx.CreateBuffer(4*n, cl.MemReadOnly, nil)
	if err != nil {
		return nil, err
	}
	scope.Add(a)
	b, err := ctx.CreateBuffer(4*n, cl.MemReadOnly, nil)
	if err != nil {
		return nil, err
	}
	scope.Add(b)
	out, err := ctx.CreateBuffer(4*n, cl.MemWriteOnly, nil)
	if err != nil {
		return nil, err
	}
	scope.Add(out)

	prog, err := buildProgram(ctx, cfg, "add.cl", "-I kernels/", "-D MYDEF=2")
	if err != nil {
		return nil, err
	}
	scope.Add(prog)
	k, err := prog.Kernel("Add")
	if err != nil {
		return nil, err
	}
	scope.Add(k)
	if err := k.SetArgs(a, b, out, uint32(addDelta)); err != nil {
		return nil, err
	}

	if err := cl.Write(q, a, 0, inputA); err != nil {
		return nil, err
	}
	if err := cl.Write(q, b, 0, inputB); err != nil {
		return nil, err
	}
	var ev *cl.Event
	if err := q.Dispatch(k, cl.NDRange{Global: []int{n}}, cl.Completion(&ev)); err != nil {
		return nil, err
	}
	scope.Add(ev)
	output := make([]uint32, n)
	if err := cl.Read(q, out, 0, output, cl.Blocking()); err != nil {
		return nil, err
	}
	if err := q.Finish(); err != nil {
		return nil, err
	}
	kt, err := kernelTime(q, ev)
	if err != nil {
		return nil, err
	}

	for i, v := range output {
		if want := uint32(2*i + addDelta); v != want {
			return nil, errors.Errorf("add: output[%d] = %d, want %d", i, v, want)
		}
	}
	return &Result{Sample: "add", Items: n, Total: time.Since(start), KernelTime: kt}, nil
}
