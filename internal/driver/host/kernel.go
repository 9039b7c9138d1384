package host

import (
	"sort"
	"sync"

	"github.com/cwbudde/clhost/internal/driver"
)

// KernelFunc executes one work-group of a kernel. A non-nil error aborts the
// dispatch and fails its command with OutOfResources.
type KernelFunc func(g *Group) error

// Library maps kernel names to their Go implementations.
type Library struct {
	mu    sync.RWMutex
	funcs map[string]KernelFunc
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{funcs: make(map[string]KernelFunc)}
}

// Register adds or replaces the implementation of the named kernel.
func (l *Library) Register(name string, fn KernelFunc) *Library {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.funcs[name] = fn
	return l
}

// Lookup returns the implementation of the named kernel.
func (l *Library) Lookup(name string) (KernelFunc, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn, ok := l.funcs[name]
	return fn, ok
}

// Names lists the registered kernels in sorted order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.funcs))
	for name := range l.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type argValue struct {
	set   bool
	size  int
	value []byte
}

type kernel struct {
	refs
	id   driver.Kernel
	prog *program
	sig  *signature
	fn   KernelFunc

	// Guarded by Driver.mu.
	args []argValue
}

func (d *Driver) CreateKernel(h driver.Program, name string) (driver.Kernel, driver.Status) {
	p, ok := lookup[*program](d, uintptr(h))
	if !ok {
		return 0, driver.InvalidProgram
	}
	d.mu.Lock()
	if !p.built {
		d.mu.Unlock()
		return 0, driver.InvalidProgramExecutable
	}
	sig, ok := p.sigs[name]
	if !ok {
		d.mu.Unlock()
		return 0, driver.InvalidKernelName
	}
	p.attached++
	d.mu.Unlock()

	fn, _ := d.cfg.lib.Lookup(name)
	k := &kernel{refs: refs{1}, prog: p, sig: sig, fn: fn, args: make([]argValue, len(sig.params))}
	k.id = driver.Kernel(d.register(k))
	d.logger.Debug("kernel created", "kernel", k.id, "name", name)
	return k.id, driver.Success
}

func (d *Driver) KernelNumArgs(h driver.Kernel) (uint32, driver.Status) {
	k, ok := lookup[*kernel](d, uintptr(h))
	if !ok {
		return 0, driver.InvalidKernel
	}
	return uint32(len(k.sig.params)), driver.Success
}

func (d *Driver) SetKernelArg(h driver.Kernel, index uint32, size int, value []byte) driver.Status {
	k, ok := lookup[*kernel](d, uintptr(h))
	if !ok {
		return driver.InvalidKernel
	}
	if int(index) >= len(k.sig.params) {
		return driver.InvalidArgIndex
	}
	p := k.sig.params[index]

	switch p.kind {
	case paramLocal:
		if value != nil {
			return driver.InvalidArgValue
		}
		if size <= 0 {
			return driver.InvalidArgSize
		}
	case paramGlobal, paramImage:
		if size != driver.MemArgSize {
			return driver.InvalidArgSize
		}
		if value != nil {
			h, ok := driver.DecodeMem(value)
			if !ok {
				return driver.InvalidArgValue
			}
			if h != 0 {
				m, ok := lookup[*memObject](d, uintptr(h))
				if !ok {
					return driver.InvalidMemObject
				}
				if m.ctx != k.prog.ctx {
					return driver.InvalidContext
				}
				if (p.kind == paramImage) != (m.image != nil) {
					return driver.InvalidArgValue
				}
			}
		} else if p.kind == paramImage {
			return driver.InvalidArgValue
		}
	default:
		if size != p.size {
			return driver.InvalidArgSize
		}
		if len(value) < size {
			return driver.InvalidArgValue
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	var stored []byte
	if value != nil {
		stored = append([]byte(nil), value[:size]...)
	}
	k.args[index] = argValue{set: true, size: size, value: stored}
	return driver.Success
}

func (d *Driver) KernelWorkGroupInfo(h driver.Kernel, id driver.DeviceID, param driver.WorkGroupInfo) (uint64, driver.Status) {
	k, ok := lookup[*kernel](d, uintptr(h))
	if !ok {
		return 0, driver.InvalidKernel
	}
	if id != d.device {
		return 0, driver.InvalidDevice
	}
	switch param {
	case driver.KernelWorkGroupSize:
		return d.cfg.info.MaxWorkGroupSize, driver.Success
	case driver.KernelCompileWorkGroupSize:
		return 0, driver.Success
	case driver.KernelLocalMemSize:
		d.mu.Lock()
		defer d.mu.Unlock()
		var total uint64
		for i, p := range k.sig.params {
			if p.kind == paramLocal && k.args[i].set {
				total += uint64(k.args[i].size)
			}
		}
		return total, driver.Success
	case driver.KernelPreferredWorkGroupSizeMultiple:
		return d.cfg.preferredMultiple, driver.Success
	case driver.KernelPrivateMemSize:
		return d.cfg.privateMemSize, driver.Success
	}
	return 0, driver.InvalidValue
}

func (d *Driver) RetainKernel(h driver.Kernel) driver.Status {
	return retain[*kernel](d, uintptr(h), driver.InvalidKernel)
}

func (d *Driver) ReleaseKernel(h driver.Kernel) driver.Status {
	k, freed, st := release[*kernel](d, uintptr(h), driver.InvalidKernel)
	if freed {
		d.mu.Lock()
		k.prog.attached--
		d.mu.Unlock()
	}
	return st
}
