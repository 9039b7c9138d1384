package cl

import (
	"sync"

	"github.com/cwbudde/clhost/internal/driver"
)

// ProgramState is the build state of a program.
type ProgramState int32

const (
	ProgramUncompiled ProgramState = iota
	ProgramCompiling
	ProgramBuilt
	ProgramBuildFailed
)

func (s ProgramState) String() string {
	switch s {
	case ProgramUncompiled:
		return "uncompiled"
	case ProgramCompiling:
		return "compiling"
	case ProgramBuilt:
		return "built"
	case ProgramBuildFailed:
		return "build failed"
	}
	return "unknown"
}

// programState is shared by every wrapper of one program.
type programState struct {
	mu      sync.Mutex
	state   ProgramState
	log     string
	options string
}

// Program is kernel source compiled for the device of its context.
type Program struct {
	ctx    *Context
	handle driver.Program
	name   string
	state  *programState
	guard
}

func (p *Program) Handle() driver.Program { return p.handle }
func (p *Program) Name() string           { return p.name }
func (p *Program) Context() *Context      { return p.ctx }

func (p *Program) State() ProgramState {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	return p.state.state
}

// BuildLog returns the compiler output of the last build.
func (p *Program) BuildLog() string {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	return p.state.log
}

// Options returns the merged option string of the last build.
func (p *Program) Options() string {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	return p.state.options
}

// Build compiles the program with options plus the standard suffix. A
// compiler failure returns an *Error of kind ErrBuildFailure carrying the
// build log.
func (p *Program) Build(options ...string) error {
	op := "build program " + p.name
	if !p.live() {
		return fail(op, ErrInvalidOperation, "program released")
	}
	dev := p.ctx.device

	p.state.mu.Lock()
	if p.state.state == ProgramCompiling {
		p.state.mu.Unlock()
		return fail(op, ErrInvalidOperation, "build already in progress")
	}
	prev := p.state.state
	p.state.state = ProgramCompiling
	p.state.mu.Unlock()

	merged := MergeBuildOptions(options, dev.info.Version)
	Logger().Info("Building program", "program", p.name, "device", dev.Name(), "options", merged)
	st := p.ctx.drv.BuildProgram(p.handle, []driver.DeviceID{dev.id}, merged)

	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	if st == driver.InvalidOperation {
		p.state.state = prev
		return &Error{Kind: ErrInvalidOperation, Code: st, Op: op, Msg: "kernels of the program are still alive"}
	}
	log, logSt := p.ctx.drv.ProgramBuildLog(p.handle, dev.id)
	if !logSt.OK() {
		Logger().Warn("build log unavailable", "program", p.name, "status", logSt.String())
	}
	p.state.log = log
	p.state.options = merged
	if !st.OK() {
		p.state.state = ProgramBuildFailed
		Logger().Warn("program build failed", "program", p.name, "status", st.String())
		err := &Error{Kind: KindOf(st), Code: st, Op: op, Log: log}
		if !logSt.OK() {
			err.Msg = "build log unavailable: " + logSt.String()
		}
		return err
	}
	p.state.state = ProgramBuilt
	return nil
}

// Kernel creates the kernel with the given entry point name.
func (p *Program) Kernel(name string) (*Kernel, error) {
	op := "create kernel " + name
	if !p.live() {
		return nil, fail(op, ErrInvalidOperation, "program released")
	}
	if s := p.State(); s != ProgramBuilt {
		return nil, fail(op, ErrInvalidOperation, "program %s is %s", p.name, s)
	}
	h, st := p.ctx.drv.CreateKernel(p.handle, name)
	if err := check(op, st); err != nil {
		return nil, err
	}
	n, st := p.ctx.drv.KernelNumArgs(h)
	if err := check(op, st); err != nil {
		p.ctx.drv.ReleaseKernel(h)
		return nil, err
	}
	return &Kernel{
		prog:    p,
		handle:  h,
		name:    name,
		numArgs: int(n),
		args:    &kernelArgs{mems: make(map[int]MemoryObject)},
	}, nil
}

// Retain returns a second wrapper holding its own reference to the program.
func (p *Program) Retain() (*Program, error) {
	if !p.live() {
		return nil, fail("retain program", ErrInvalidOperation, "program released")
	}
	if err := check("retain program", p.ctx.drv.RetainProgram(p.handle)); err != nil {
		return nil, err
	}
	return &Program{ctx: p.ctx, handle: p.handle, name: p.name, state: p.state}, nil
}

// Release drops the wrapper's reference. Subsequent calls are no-ops.
func (p *Program) Release() error {
	if !p.take() {
		return nil
	}
	return check("release program", p.ctx.drv.ReleaseProgram(p.handle))
}
