package samples

import (
	"time"

	"github.com/pkg/errors"

	"github.com/cwbudde/clhost/internal/cl"
)

func init() {
	register(Sample{
		Name:             "enqueue",
		Description:      "Launch a copy kernel from inside another kernel (OpenCL 2.0)",
		NeedsDeviceQueue: true,
		Run:              runEnqueue,
	})
}

func runEnqueue(env Env, cfg Config) (res *Result, err error) {
	start := time.Now()
	n := cfg.EnqueueN
	if n <= 0 {
		return nil, errors.Errorf("enqueue: invalid size %d", n)
	}
	ctx, q := env.Context, env.Queue

	var scope cl.Scope
	defer func() {
		if cerr := scope.Close(); err == nil {
			err = cerr
		}
	}()

	in := make([]float32, n)
	for i := range in {
		in[i] = float32(i)
	}

	inBuf, err := ctx.CreateBuffer(4*n, cl.MemReadOnly|cl.MemHostWriteOnly, nil)
	if err != nil {
		return nil, err
	}
	scope.Add(inBuf)
	outBuf, err := ctx.CreateBuffer(4*n, cl.MemWriteOnly|cl.MemHostReadOnly, nil)
	if err != nil {
		return nil, err
	}
	scope.Add(outBuf)

	if err := cl.Write(q, inBuf, 0, in); err != nil {
		return nil, err
	}

	prog, err := buildProgram(ctx, cfg, "enqueue.cl", "-cl-kernel-arg-info")
	if err != nil {
		return nil, err
	}
	scope.Add(prog)
	k, err := prog.Kernel("compute")
	if err != nil {
		return nil, err
	}
	scope.Add(k)
	if err := k.SetArgs(inBuf, outBuf); err != nil {
		return nil, err
	}

	// Kernels launched from the device land on the default device queue;
	// without one the launch fails with CL_OUT_OF_RESOURCES.
	if ctx.Device().SupportsEnqueue() {
		dq, err := ctx.CreateDeviceQueue(0)
		if err != nil {
			return nil, err
		}
		scope.Add(dq)
	}

	var ev *cl.Event
	if err := q.Dispatch(k, cl.NDRange{Global: []int{n}}, cl.Completion(&ev)); err != nil {
		return nil, err
	}
	scope.Add(ev)
	if err := ev.Wait(); err != nil {
		return nil, err
	}
	out := make([]float32, n)
	if err := cl.Read(q, outBuf, 0, out, cl.Blocking()); err != nil {
		return nil, err
	}
	if err := q.Finish(); err != nil {
		return nil, err
	}
	kt, err := kernelTime(q, ev)
	if err != nil {
		return nil, err
	}

	for i, v := range out {
		if v != float32(i) {
			return nil, errors.Errorf("enqueue: output[%d] = %g, want %d", i, v, i)
		}
	}
	r := &Result{Sample: "enqueue", Items: n, Total: time.Since(start), KernelTime: kt}
	r.add("Device threads", "%d", n)
	return r, nil
}
