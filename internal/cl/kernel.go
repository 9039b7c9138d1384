package cl

import (
	"sync"

	"github.com/cwbudde/clhost/internal/driver"
)

// Local reserves the given number of bytes of work-group local memory for
// a __local kernel argument.
type Local int

// kernelArgs tracks the memory objects bound to a kernel.
type kernelArgs struct {
	mu   sync.Mutex
	mems map[int]MemoryObject
}

// Kernel is one entry point of a built program with its argument slots.
// Argument slots are shared by every dispatch of the kernel, so binding and
// dispatching from several goroutines must be serialized by the caller.
type Kernel struct {
	prog    *Program
	handle  driver.Kernel
	name    string
	numArgs int
	args    *kernelArgs
	guard
}

func (k *Kernel) Handle() driver.Kernel { return k.handle }
func (k *Kernel) Name() string          { return k.name }
func (k *Kernel) NumArgs() int          { return k.numArgs }
func (k *Kernel) Program() *Program     { return k.prog }

// SetArg binds value to argument index. Memory objects bind their handle,
// Local reserves local memory, []byte is passed verbatim and Go numbers are
// passed as the matching C scalar; int is passed as a 32-bit int.
func (k *Kernel) SetArg(index int, value any) error {
	switch v := value.(type) {
	case MemoryObject:
		return k.SetArgMem(index, v)
	case Local:
		return k.SetArgLocal(index, int(v))
	case []byte:
		return k.SetArgBytes(index, v)
	case int:
		return k.SetArgBytes(index, scalarBytes(int32(v)))
	case int8:
		return k.SetArgBytes(index, scalarBytes(v))
	case uint8:
		return k.SetArgBytes(index, scalarBytes(v))
	case int16:
		return k.SetArgBytes(index, scalarBytes(v))
	case uint16:
		return k.SetArgBytes(index, scalarBytes(v))
	case int32:
		return k.SetArgBytes(index, scalarBytes(v))
	case uint32:
		return k.SetArgBytes(index, scalarBytes(v))
	case int64:
		return k.SetArgBytes(index, scalarBytes(v))
	case uint64:
		return k.SetArgBytes(index, scalarBytes(v))
	case float32:
		return k.SetArgBytes(index, scalarBytes(v))
	case float64:
		return k.SetArgBytes(index, scalarBytes(v))
	}
	return fail("set kernel arg", ErrInvalidArgument, "%s argument %d: unsupported type %T", k.name, index, value)
}

// SetArgs binds values to arguments 0..len(values)-1.
func (k *Kernel) SetArgs(values ...any) error {
	for i, v := range values {
		if err := k.SetArg(i, v); err != nil {
			return err
		}
	}
	return nil
}

// SetArgMem binds a buffer or image.
func (k *Kernel) SetArgMem(index int, m MemoryObject) error {
	const op = "set kernel arg"
	if err := k.checkIndex(op, index); err != nil {
		return err
	}
	if m == nil || m.mem() == nil {
		return fail(op, ErrInvalidMemObject, "%s argument %d: nil memory object", k.name, index)
	}
	mem := m.mem()
	if !mem.live() {
		return fail(op, ErrInvalidMemObject, "%s argument %d: memory object released", k.name, index)
	}
	if !k.prog.ctx.same(mem.ctx) {
		return fail(op, ErrInvalidContext, "%s argument %d: memory object belongs to another context", k.name, index)
	}
	st := k.prog.ctx.drv.SetKernelArg(k.handle, uint32(index), driver.MemArgSize, driver.EncodeMem(mem.handle))
	if err := check(op, st); err != nil {
		return err
	}
	k.args.mu.Lock()
	k.args.mems[index] = m
	k.args.mu.Unlock()
	return nil
}

// SetArgLocal reserves size bytes of local memory for a __local argument.
func (k *Kernel) SetArgLocal(index, size int) error {
	const op = "set kernel arg"
	if err := k.checkIndex(op, index); err != nil {
		return err
	}
	if size <= 0 {
		return fail(op, ErrInvalidArgSize, "%s argument %d: local size %d", k.name, index, size)
	}
	return k.setRaw(op, index, size, nil)
}

// SetArgBytes binds raw argument bytes. Their length must equal the
// declared size of the parameter.
func (k *Kernel) SetArgBytes(index int, value []byte) error {
	const op = "set kernel arg"
	if err := k.checkIndex(op, index); err != nil {
		return err
	}
	if len(value) == 0 {
		return fail(op, ErrInvalidArgSize, "%s argument %d: empty value", k.name, index)
	}
	return k.setRaw(op, index, len(value), value)
}

func (k *Kernel) setRaw(op string, index, size int, value []byte) error {
	if err := check(op, k.prog.ctx.drv.SetKernelArg(k.handle, uint32(index), size, value)); err != nil {
		return err
	}
	k.args.mu.Lock()
	delete(k.args.mems, index)
	k.args.mu.Unlock()
	return nil
}

func (k *Kernel) checkIndex(op string, index int) error {
	if !k.live() {
		return fail(op, ErrInvalidKernel, "kernel %s released", k.name)
	}
	if index < 0 || index >= k.numArgs {
		return fail(op, ErrInvalidArgIndex, "%s has %d arguments, got index %d", k.name, k.numArgs, index)
	}
	return nil
}

// boundMems returns the memory objects currently bound to the kernel.
func (k *Kernel) boundMems() []MemoryObject {
	k.args.mu.Lock()
	defer k.args.mu.Unlock()
	mems := make([]MemoryObject, 0, len(k.args.mems))
	for _, m := range k.args.mems {
		mems = append(mems, m)
	}
	return mems
}

func (k *Kernel) workGroupInfo(param driver.WorkGroupInfo) (int, error) {
	v, st := k.prog.ctx.drv.KernelWorkGroupInfo(k.handle, k.prog.ctx.device.id, param)
	if err := check("kernel work-group info", st); err != nil {
		return 0, err
	}
	return int(v), nil
}

// WorkGroupSize is the largest work-group the kernel can run with.
func (k *Kernel) WorkGroupSize() (int, error) {
	return k.workGroupInfo(driver.KernelWorkGroupSize)
}

// PreferredWorkGroupSizeMultiple is the work-group size granularity the
// device runs most efficiently.
func (k *Kernel) PreferredWorkGroupSizeMultiple() (int, error) {
	return k.workGroupInfo(driver.KernelPreferredWorkGroupSizeMultiple)
}

func (k *Kernel) LocalMemSize() (int, error) {
	return k.workGroupInfo(driver.KernelLocalMemSize)
}

func (k *Kernel) PrivateMemSize() (int, error) {
	return k.workGroupInfo(driver.KernelPrivateMemSize)
}

// SquareWorkGroupSize2D applies SquareTile to the preferred work-group size
// multiple.
func (k *Kernel) SquareWorkGroupSize2D() ([2]int, error) {
	n, err := k.PreferredWorkGroupSizeMultiple()
	if err != nil {
		return [2]int{}, err
	}
	x, y := SquareTile(n)
	return [2]int{x, y}, nil
}

// Retain returns a second wrapper holding its own reference to the kernel.
// Both wrappers share the argument slots.
func (k *Kernel) Retain() (*Kernel, error) {
	if !k.live() {
		return nil, fail("retain kernel", ErrInvalidKernel, "kernel %s released", k.name)
	}
	if err := check("retain kernel", k.prog.ctx.drv.RetainKernel(k.handle)); err != nil {
		return nil, err
	}
	return &Kernel{prog: k.prog, handle: k.handle, name: k.name, numArgs: k.numArgs, args: k.args}, nil
}

// Release drops the wrapper's reference. Subsequent calls are no-ops.
func (k *Kernel) Release() error {
	if !k.take() {
		return nil
	}
	return check("release kernel", k.prog.ctx.drv.ReleaseKernel(k.handle))
}
