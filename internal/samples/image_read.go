package samples

import (
	"bytes"
	"time"

	"github.com/pkg/errors"

	"github.com/cwbudde/clhost/internal/cl"
	"github.com/cwbudde/clhost/internal/driver"
)

func init() {
	register(Sample{
		Name:        "image",
		Description: "Read pseudo-random pixels of a single channel uint8 image",
		Run:         runImageRead,
	})
}

var imageFormat = cl.ImageFormat{Order: driver.ChannelR, Type: driver.UnsignedInt8}

func runImageRead(env Env, cfg Config) (res *Result, err error) {
	start := time.Now()
	w, h := cfg.Width, cfg.Height
	if w <= 0 || h <= 0 {
		return nil, errors.Errorf("image: invalid size %dx%d", w, h)
	}
	n := w * h
	ctx, q := env.Context, env.Queue

	var scope cl.Scope
	defer func() {
		if cerr := scope.Close(); err == nil {
			err = cerr
		}
	}()

	input := bytes.Repeat([]byte{1}, n)

	outBuf, err := ctx.CreateBuffer(n, cl.MemWriteOnly, nil)
	if err != nil {
		return nil, err
	}
	scope.Add(outBuf)
	img, err := ctx.CreateImage(cl.MemReadOnly, imageFormat, w, h, 0, nil)
	if err != nil {
		return nil, err
	}
	scope.Add(img)

	prog, err := buildProgram(ctx, cfg, "image_read.cl")
	if err != nil {
		return nil, err
	}
	scope.Add(prog)
	k, err := prog.Kernel("RandomImageRead")
	if err != nil {
		return nil, err
	}
	scope.Add(k)
	if err := k.SetArgs(img, outBuf); err != nil {
		return nil, err
	}

	if err := q.WriteImage(img, [2]int{0, 0}, [2]int{w, h}, input); err != nil {
		return nil, err
	}
	var ev *cl.Event
	if err := q.Dispatch(k, cl.NDRange{Global: []int{n}}, cl.Completion(&ev)); err != nil {
		return nil, err
	}
	scope.Add(ev)
	output := make([]byte, n)
	if err := q.ReadBuffer(outBuf, 0, output, cl.Blocking()); err != nil {
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
		if v != 1 {
			return nil, errors.Errorf("image: output[%d] = %d, want 1", i, v)
		}
	}
	r := &Result{Sample: "image", Items: n, Total: time.Since(start), KernelTime: kt}
	r.add("Image", "%dx%d R/UINT8", w, h)
	return r, nil
}
