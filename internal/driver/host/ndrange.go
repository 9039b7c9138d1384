package host

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/clhost/internal/driver"
)

// ErrNoDeviceQueue is returned by Group.EnqueueBlock when the context has no
// default on-device queue.
var ErrNoDeviceQueue = errors.New("no default device queue")

type boundArg struct {
	kind      paramKind
	mem       *memObject
	value     []byte
	localSize int
}

// dispatch is a snapshot of a kernel launch: sizes, bound arguments and
// defines are captured at enqueue time.
type dispatch struct {
	d       *Driver
	ctx     *hostContext
	name    string
	fn      KernelFunc
	dims    int
	offset  [3]int
	global  [3]int
	local   [3]int
	args    []boundArg
	defines map[string]string

	mu       sync.Mutex
	children []*dispatch
}

// chooseLocal picks, per dimension, the largest divisor of the global size
// that keeps the group within the device limits.
func (d *Driver) chooseLocal(dims int, global [3]int) [3]int {
	local := [3]int{1, 1, 1}
	budget := int(d.cfg.info.MaxWorkGroupSize)
	for i := 0; i < dims; i++ {
		limit := min(budget, int(d.cfg.info.MaxWorkItemSizes[i]))
		for n := limit; n >= 1; n-- {
			if global[i]%n == 0 {
				local[i] = n
				break
			}
		}
		budget /= local[i]
	}
	return local
}

func (d *Driver) prepare(ctx *hostContext, k *kernel, offset, global, local []int) (*dispatch, driver.Status) {
	dims := len(global)
	if dims < 1 || dims > int(d.cfg.info.MaxWorkItemDimensions) {
		return nil, driver.InvalidWorkDimension
	}
	if offset != nil && len(offset) != dims {
		return nil, driver.InvalidGlobalOffset
	}
	if local != nil && len(local) != dims {
		return nil, driver.InvalidWorkGroupSize
	}

	p := &dispatch{d: d, ctx: ctx, name: k.sig.name, fn: k.fn, dims: dims}
	p.global = [3]int{1, 1, 1}
	for i, g := range global {
		if g <= 0 {
			return nil, driver.InvalidGlobalWorkSize
		}
		p.global[i] = g
	}
	for i := range offset {
		if offset[i] < 0 {
			return nil, driver.InvalidGlobalOffset
		}
		p.offset[i] = offset[i]
	}

	if local == nil {
		p.local = d.chooseLocal(dims, p.global)
	} else {
		p.local = [3]int{1, 1, 1}
		product := 1
		for i, l := range local {
			if l <= 0 {
				return nil, driver.InvalidWorkGroupSize
			}
			if uint64(l) > d.cfg.info.MaxWorkItemSizes[i] {
				return nil, driver.InvalidWorkItemSize
			}
			if !d.cfg.nonUniform && p.global[i]%l != 0 {
				return nil, driver.InvalidWorkGroupSize
			}
			p.local[i] = l
			product *= l
		}
		if uint64(product) > d.cfg.info.MaxWorkGroupSize {
			return nil, driver.InvalidWorkGroupSize
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	p.defines = k.prog.defines
	p.args = make([]boundArg, len(k.args))
	var localBytes uint64
	for i, a := range k.args {
		if !a.set {
			return nil, driver.InvalidKernelArgs
		}
		param := k.sig.params[i]
		b := boundArg{kind: param.kind}
		switch param.kind {
		case paramLocal:
			b.localSize = a.size
			localBytes += uint64(a.size)
		case paramGlobal, paramImage:
			if h, _ := driver.DecodeMem(a.value); h != 0 {
				m, ok := d.objects[uintptr(h)].(*memObject)
				if !ok {
					return nil, driver.InvalidMemObject
				}
				if m.interop && !m.acquired {
					return nil, driver.InvalidOperation
				}
				b.mem = m
			}
		default:
			b.value = a.value
		}
		p.args[i] = b
	}
	if localBytes > d.cfg.info.LocalMemSize {
		return nil, driver.OutOfResources
	}
	return p, driver.Success
}

func (d *Driver) EnqueueNDRangeKernel(hq driver.Queue, hk driver.Kernel, offset, global, local []int, args driver.EventArgs) (driver.Event, driver.Status) {
	q, st := d.queue(hq)
	if !st.OK() {
		return 0, st
	}
	k, ok := lookup[*kernel](d, uintptr(hk))
	if !ok {
		return 0, driver.InvalidKernel
	}
	if k.prog.ctx != q.ctx {
		return 0, driver.InvalidContext
	}
	p, st := d.prepare(q.ctx, k, offset, global, local)
	if !st.OK() {
		return 0, st
	}
	return d.enqueue(q, args, false, command{run: p.run})
}

func (p *dispatch) run() driver.Status {
	if err := p.exec(); err != nil {
		p.d.logger.Warn("kernel execution failed", "kernel", p.name, "error", err)
		return driver.OutOfResources
	}
	return driver.Success
}

func (p *dispatch) groups() [3]int {
	var n [3]int
	for i := range n {
		n[i] = (p.global[i] + p.local[i] - 1) / p.local[i]
	}
	return n
}

// exec runs every work-group in parallel, then any blocks the groups enqueued
// on the device queue. The launch completes only after its children.
func (p *dispatch) exec() error {
	n := p.groups()
	total := n[0] * n[1] * n[2]

	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < total; i++ {
		id := [3]int{i % n[0], (i / n[0]) % n[1], i / (n[0] * n[1])}
		eg.Go(func() error {
			if err := p.fn(p.newGroup(id, n)); err != nil {
				return fmt.Errorf("work-group %v: %w", id, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	p.mu.Lock()
	children := p.children
	p.children = nil
	p.mu.Unlock()
	for _, child := range children {
		if err := child.exec(); err != nil {
			return fmt.Errorf("enqueued block: %w", err)
		}
	}
	return nil
}

func (p *dispatch) newGroup(id, groups [3]int) *Group {
	g := &Group{disp: p, id: id, groups: groups, locals: make([][]byte, len(p.args))}
	for i := range g.size {
		start := id[i] * p.local[i]
		g.size[i] = min(p.local[i], p.global[i]-start)
	}
	for i, a := range p.args {
		if a.kind == paramLocal {
			g.locals[i] = make([]byte, a.localSize)
		}
	}
	return g
}

// child creates a launch of fn over the given sizes that shares the parent's
// arguments.
func (p *dispatch) child(global, local []int, fn KernelFunc) (*dispatch, error) {
	p.d.mu.Lock()
	hasQueue := p.ctx.deviceQueue != nil
	p.d.mu.Unlock()
	if !hasQueue {
		return nil, ErrNoDeviceQueue
	}
	if len(global) < 1 || len(global) > 3 || (local != nil && len(local) != len(global)) {
		return nil, fmt.Errorf("invalid enqueue dimensions")
	}
	c := &dispatch{d: p.d, ctx: p.ctx, name: p.name + "/block", fn: fn, dims: len(global), args: p.args, defines: p.defines}
	c.global = [3]int{1, 1, 1}
	c.local = [3]int{1, 1, 1}
	for i, g := range global {
		if g <= 0 {
			return nil, fmt.Errorf("invalid global size %d", g)
		}
		c.global[i] = g
	}
	if local == nil {
		c.local = p.d.chooseLocal(c.dims, c.global)
	} else {
		for i, l := range local {
			if l <= 0 {
				return nil, fmt.Errorf("invalid local size %d", l)
			}
			c.local[i] = l
		}
	}
	return c, nil
}
