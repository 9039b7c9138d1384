package cl

import (
	"sync"

	"github.com/cwbudde/clhost/internal/driver"
)

// MemoryObject is a device allocation: a *Buffer or an *Image.
type MemoryObject interface {
	Handle() driver.Mem
	Context() *Context
	Size() int
	Flags() MemFlags
	Release() error

	mem() *memory
}

// memState is shared by every wrapper of one allocation.
type memState struct {
	mu        sync.Mutex
	readMaps  int
	writeMaps int
	interop   bool
	acquired  bool
}

type memory struct {
	ctx    *Context
	handle driver.Mem
	flags  MemFlags
	size   int
	state  *memState
	guard
}

func newMemory(c *Context, h driver.Mem, flags MemFlags, size int, interop bool) *memory {
	return &memory{ctx: c, handle: h, flags: flags, size: size, state: &memState{interop: interop}}
}

func (m *memory) Handle() driver.Mem { return m.handle }
func (m *memory) Context() *Context  { return m.ctx }
func (m *memory) Size() int          { return m.size }
func (m *memory) Flags() MemFlags    { return m.flags }

// Interop reports whether the object shares an external texture.
func (m *memory) Interop() bool { return m.state.interop }

// Mapped reports whether a host mapping of the object is outstanding.
func (m *memory) Mapped() bool {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.readMaps+m.state.writeMaps > 0
}

func (m *memory) retained() (*memory, error) {
	if !m.live() {
		return nil, fail("retain memory", ErrInvalidMemObject, "memory object released")
	}
	if err := check("retain memory", m.ctx.drv.RetainMem(m.handle)); err != nil {
		return nil, err
	}
	return &memory{ctx: m.ctx, handle: m.handle, flags: m.flags, size: m.size, state: m.state}, nil
}

// Release drops the wrapper's reference. Subsequent calls are no-ops.
func (m *memory) Release() error {
	if !m.take() {
		return nil
	}
	return check("release memory", m.ctx.drv.ReleaseMem(m.handle))
}

// usable rejects objects that are released, from another context, or mapped
// for writing.
func (m *memory) usable(op string, ctx *Context) error {
	if !m.live() {
		return fail(op, ErrInvalidMemObject, "memory object released")
	}
	if !ctx.same(m.ctx) {
		return fail(op, ErrInvalidContext, "memory object belongs to another context")
	}
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	if m.state.writeMaps > 0 {
		return fail(op, ErrInvalidOperation, "memory object is mapped for writing")
	}
	return nil
}

func (m *memory) addMap(write bool) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	if write {
		m.state.writeMaps++
	} else {
		m.state.readMaps++
	}
}

func (m *memory) dropMap(write bool) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	if write {
		m.state.writeMaps--
	} else {
		m.state.readMaps--
	}
}

func (m *memory) setAcquired(v bool) {
	m.state.mu.Lock()
	m.state.acquired = v
	m.state.mu.Unlock()
}

func (m *memory) isAcquired() bool {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.acquired
}

// Buffer is linear device memory.
type Buffer struct {
	*memory
}

func (b *Buffer) mem() *memory {
	if b == nil {
		return nil
	}
	return b.memory
}

// Retain returns a second wrapper holding its own reference to the buffer.
func (b *Buffer) Retain() (*Buffer, error) {
	m, err := b.retained()
	if err != nil {
		return nil, err
	}
	return &Buffer{memory: m}, nil
}

// Image is a 2D pixel grid in device memory.
type Image struct {
	*memory
	format        ImageFormat
	width, height int
}

func (img *Image) Format() ImageFormat { return img.format }
func (img *Image) Width() int          { return img.width }
func (img *Image) Height() int         { return img.height }

func (img *Image) mem() *memory {
	if img == nil {
		return nil
	}
	return img.memory
}

// Retain returns a second wrapper holding its own reference to the image.
func (img *Image) Retain() (*Image, error) {
	m, err := img.retained()
	if err != nil {
		return nil, err
	}
	return &Image{memory: m, format: img.format, width: img.width, height: img.height}, nil
}

// Mapping is a host view of a mapped region. Its bytes alias device memory
// until the mapping is passed to Queue.Unmap.
type Mapping struct {
	obj      MemoryObject
	data     []byte
	write    bool
	rowPitch int
	guard
}

// Bytes returns the mapped region. The slice must not be used after Unmap.
func (m *Mapping) Bytes() []byte { return m.data }

// RowPitch is the byte distance between image rows, zero for buffers.
func (m *Mapping) RowPitch() int { return m.rowPitch }

// Writable reports whether the mapping was requested for writing.
func (m *Mapping) Writable() bool { return m.write }
