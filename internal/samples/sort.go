package samples

import (
	"cmp"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/cwbudde/clhost/internal/cl"
)

func init() {
	register(Sample{
		Name:        "sort",
		Description: "Bitonic sort of local chunks followed by iterative merges over mapped host memory",
		Run:         runSort,
	})
}

// sortGroupSize picks the largest power of two work-group size within the
// device limit that divides n.
func sortGroupSize(maxGroup, n int) int {
	size := 1
	for size*2 <= maxGroup && n%(size*2) == 0 {
		size *= 2
	}
	return size
}

func runSort(env Env, cfg Config) (res *Result, err error) {
	start := time.Now()
	n := cfg.N
	if n <= 0 {
		return nil, errors.Errorf("sort: invalid size %d", n)
	}
	ctx, q := env.Context, env.Queue

	var scope cl.Scope
	defer func() {
		if cerr := scope.Close(); err == nil {
			err = cerr
		}
	}()

	rng := rand.New(rand.NewSource(cfg.Seed))
	data := make([]float32, n)
	for i := range data {
		data[i] = rng.Float32()
	}
	scratch := make([]float32, n)

	// Both buffers alias the host slices, so the sorted values land in data.
	inBuf, err := ctx.CreateBuffer(4*n, cl.MemReadWrite|cl.MemUseHostPtr, cl.Bytes(data))
	if err != nil {
		return nil, err
	}
	scope.Add(inBuf)
	outBuf, err := ctx.CreateBuffer(4*n, cl.MemReadWrite|cl.MemUseHostPtr, cl.Bytes(scratch))
	if err != nil {
		return nil, err
	}
	scope.Add(outBuf)

	m, err := q.MapBuffer(inBuf, cl.MapRead, 0, inBuf.Size(), cl.Blocking())
	if err != nil {
		return nil, err
	}
	if &m.Bytes()[0] != &cl.Bytes(data)[0] {
		q.Unmap(m)
		return nil, errors.New("sort: mapping does not alias the host data")
	}
	if err := q.Unmap(m); err != nil {
		return nil, err
	}

	group := sortGroupSize(int(ctx.Device().Info().MaxWorkGroupSize), n)
	asc := !cfg.Descending
	prog, err := buildProgram(ctx, cfg, "sort.cl",
		fmt.Sprintf("-D WORK_GROUP_SIZE=%d", group),
		fmt.Sprintf("-D ASCENDING=%t", asc))
	if err != nil {
		return nil, err
	}
	scope.Add(prog)

	sortKernel, err := prog.Kernel("bitonicSortLocal")
	if err != nil {
		return nil, err
	}
	scope.Add(sortKernel)
	if err := sortKernel.SetArg(0, inBuf); err != nil {
		return nil, err
	}
	mergeKernel, err := prog.Kernel("merge")
	if err != nil {
		return nil, err
	}
	scope.Add(mergeKernel)
	if err := mergeKernel.SetArgs(inBuf, outBuf); err != nil {
		return nil, err
	}

	r := &Result{Sample: "sort", Items: n}
	if err := describeKernel(r, sortKernel); err != nil {
		return nil, err
	}
	r.add("Local chunks", "%d of %d values", n/group, group)

	var ev *cl.Event
	if err := q.Dispatch(sortKernel, cl.NDRange{Global: []int{n}, Local: []int{group}}, cl.Completion(&ev)); err != nil {
		return nil, err
	}
	scope.Add(ev)
	if err := q.Barrier(); err != nil {
		return nil, err
	}

	rounds := 0
	for chunk := group; chunk < n; chunk <<= 1 {
		if err := mergeKernel.SetArg(2, uint32(chunk)); err != nil {
			return nil, err
		}
		if err := q.Dispatch(mergeKernel, cl.NDRange{Global: []int{n}}); err != nil {
			return nil, err
		}
		if err := q.CopyBuffer(outBuf, inBuf); err != nil {
			return nil, err
		}
		rounds++
	}
	r.add("Merge rounds", "%d", rounds)

	m, err = q.MapBuffer(inBuf, cl.MapWrite, 0, inBuf.Size())
	if err != nil {
		return nil, err
	}
	if err := q.Unmap(m); err != nil {
		return nil, err
	}
	if err := q.Finish(); err != nil {
		return nil, err
	}
	if r.KernelTime, err = kernelTime(q, ev); err != nil {
		return nil, err
	}
	r.Total = time.Since(start)

	order := cmp.Compare[float32]
	if !asc {
		order = func(a, b float32) int { return cmp.Compare(b, a) }
	}
	if !slices.IsSortedFunc(data, order) {
		return nil, errors.New("sort: result is not sorted")
	}
	r.add("Sorted", "%t", true)
	return r, nil
}

// describeKernel records the work-group limits of k.
func describeKernel(r *Result, k *cl.Kernel) error {
	size, err := k.WorkGroupSize()
	if err != nil {
		return err
	}
	local, err := k.LocalMemSize()
	if err != nil {
		return err
	}
	private, err := k.PrivateMemSize()
	if err != nil {
		return err
	}
	multiple, err := k.PreferredWorkGroupSizeMultiple()
	if err != nil {
		return err
	}
	r.add("Max work-group size", "%d", size)
	r.add("Local mem size", "%d", local)
	r.add("Private mem size", "%d", private)
	r.add("Preferred work-group multiple", "%d", multiple)
	return nil
}
