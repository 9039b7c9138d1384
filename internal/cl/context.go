package cl

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/cwbudde/clhost/internal/driver"
)

// Context is an execution context bound to one device. It creates queues,
// memory objects, programs and user events; the products refer back to the
// context but do not keep it alive.
type Context struct {
	drv    driver.Driver
	handle driver.Context
	device *Device
	guard
}

func (c *Context) Device() *Device        { return c.device }
func (c *Context) Driver() driver.Driver  { return c.drv }
func (c *Context) Handle() driver.Context { return c.handle }
func (c *Context) same(o *Context) bool   { return o != nil && o.handle == c.handle && o.drv == c.drv }

func (c *Context) alive(op string) error {
	if !c.live() {
		return fail(op, ErrInvalidContext, "context released")
	}
	return nil
}

// Retain returns a second wrapper holding its own reference to the context.
func (c *Context) Retain() (*Context, error) {
	if err := c.alive("retain context"); err != nil {
		return nil, err
	}
	if err := check("retain context", c.drv.RetainContext(c.handle)); err != nil {
		return nil, err
	}
	return &Context{drv: c.drv, handle: c.handle, device: c.device}, nil
}

// Release drops the wrapper's reference. Subsequent calls are no-ops.
func (c *Context) Release() error {
	if !c.take() {
		return nil
	}
	Logger().Debug("context released", "device", c.device.Name())
	return check("release context", c.drv.ReleaseContext(c.handle))
}

// QueueOptions configure a host-side command queue.
type QueueOptions struct {
	// Profiling records the four timestamps of every command.
	Profiling bool
	// OutOfOrder lets commands without wait-list edges run in any order.
	OutOfOrder bool
}

// CreateQueue creates an in-order queue.
func (c *Context) CreateQueue(profiling bool) (*Queue, error) {
	return c.CreateQueueWithOptions(QueueOptions{Profiling: profiling})
}

// CreateQueueWithOptions creates a queue with the given ordering and
// profiling mode.
func (c *Context) CreateQueueWithOptions(opts QueueOptions) (*Queue, error) {
	var props driver.QueueProperties
	if opts.Profiling {
		props |= driver.QueueProfiling
	}
	if opts.OutOfOrder {
		if !c.device.SupportsOutOfOrder() {
			return nil, fail("create queue", ErrUnsupportedFeature, "device %q has no out-of-order queues", c.device.Name())
		}
		props |= driver.QueueOutOfOrder
	}
	return c.createQueue(props, 0)
}

// CreateDeviceQueue creates the default on-device queue used by kernels that
// enqueue nested work. A size of zero selects the driver default. Devices
// without device-side enqueue fail with ErrUnsupportedFeature.
func (c *Context) CreateDeviceQueue(size int) (*Queue, error) {
	if !c.device.SupportsEnqueue() {
		return nil, fail("create device queue", ErrUnsupportedFeature, "device %q does not support device-side enqueue", c.device.Name())
	}
	if size < 0 {
		return nil, fail("create device queue", ErrInvalidArgument, "negative queue size %d", size)
	}
	if size == 0 {
		size = driver.DefaultDeviceQueueSize
	}
	props := driver.QueueOutOfOrder | driver.QueueOnDevice | driver.QueueOnDeviceDefault
	return c.createQueue(props, uint32(size))
}

func (c *Context) createQueue(props driver.QueueProperties, size uint32) (*Queue, error) {
	if err := c.alive("create queue"); err != nil {
		return nil, err
	}
	h, st := c.drv.CreateQueue(c.handle, c.device.id, props, size)
	if err := check("create queue", st); err != nil {
		return nil, err
	}
	Logger().Debug("queue created", "device", c.device.Name(), "properties", uint64(props))
	return &Queue{ctx: c, handle: h, props: props}, nil
}

// CreateBuffer allocates size bytes of device memory. host must be non-nil
// exactly when flags include MemUseHostPtr or MemCopyHostPtr, and then hold
// at least size bytes.
func (c *Context) CreateBuffer(size int, flags MemFlags, host []byte) (*Buffer, error) {
	const op = "create buffer"
	if err := c.alive(op); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fail(op, ErrInvalidArgument, "size %d", size)
	}
	if err := validateHostPtr(op, flags, host, size); err != nil {
		return nil, err
	}
	h, st := c.drv.CreateBuffer(c.handle, flags, size, host)
	if err := check(op, st); err != nil {
		return nil, err
	}
	return &Buffer{memory: newMemory(c, h, flags, size, false)}, nil
}

// CreateImage allocates a 2D image. A non-zero rowPitch describes the host
// rows and requires host data.
func (c *Context) CreateImage(flags MemFlags, format ImageFormat, width, height, rowPitch int, host []byte) (*Image, error) {
	const op = "create image"
	if err := c.alive(op); err != nil {
		return nil, err
	}
	elem := format.ElementSize()
	if elem == 0 {
		return nil, fail(op, ErrUnsupportedFeature, "image format %#x/%#x", uint32(format.Order), uint32(format.Type))
	}
	if width <= 0 || height <= 0 {
		return nil, fail(op, ErrInvalidArgument, "shape %dx%d", width, height)
	}
	pitch := rowPitch
	if pitch == 0 {
		pitch = width * elem
	}
	if err := validateHostPtr(op, flags, host, (height-1)*pitch+width*elem); err != nil {
		return nil, err
	}
	desc := driver.ImageDesc{Type: driver.MemObjectImage2D, Width: width, Height: height, RowPitch: rowPitch}
	h, st := c.drv.CreateImage(c.handle, flags, format, desc, host)
	if err := check(op, st); err != nil {
		return nil, err
	}
	return &Image{
		memory: newMemory(c, h, flags, width*height*elem, false),
		format: format,
		width:  width,
		height: height,
	}, nil
}

// CreateImageFromTexture shares an externally owned 2D texture of the given
// format and shape. The image must be acquired on a queue before kernels use
// it.
func (c *Context) CreateImageFromTexture(flags MemFlags, texture uint32, format ImageFormat, width, height int) (*Image, error) {
	const op = "create image from texture"
	h, size, err := c.fromTexture(op, flags, driver.GLTexture2D, texture)
	if err != nil {
		return nil, err
	}
	if size != width*height*format.ElementSize() {
		c.drv.ReleaseMem(h)
		return nil, fail(op, ErrInvalidArgument, "texture %d holds %d bytes, not a %dx%d image", texture, size, width, height)
	}
	return &Image{memory: newMemory(c, h, flags, size, true), format: format, width: width, height: height}, nil
}

// CreateBufferFromTexture shares the storage of an externally owned buffer
// texture. It needs the same acquire and release bracketing as images.
func (c *Context) CreateBufferFromTexture(flags MemFlags, texture uint32) (*Buffer, error) {
	h, size, err := c.fromTexture("create buffer from texture", flags, driver.GLTextureBuffer, texture)
	if err != nil {
		return nil, err
	}
	return &Buffer{memory: newMemory(c, h, flags, size, true)}, nil
}

func (c *Context) fromTexture(op string, flags MemFlags, target, texture uint32) (driver.Mem, int, error) {
	if err := c.alive(op); err != nil {
		return 0, 0, err
	}
	if !c.device.HasExtension("cl_khr_gl_sharing") {
		return 0, 0, fail(op, ErrUnsupportedFeature, "device %q has no texture sharing", c.device.Name())
	}
	h, st := c.drv.CreateFromGLTexture(c.handle, flags, target, 0, texture)
	if err := check(op, st); err != nil {
		return 0, 0, err
	}
	size, st := c.drv.MemSize(h)
	if err := check(op, st); err != nil {
		c.drv.ReleaseMem(h)
		return 0, 0, err
	}
	return h, size, nil
}

// CreateProgram reads the kernel source at path and builds it for the
// context's device. On failure no program is returned.
func (c *Context) CreateProgram(path string, options ...string) (*Program, error) {
	p, err := c.LoadProgram(path)
	if err != nil {
		return nil, err
	}
	if err := p.Build(options...); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

// LoadProgram reads the kernel source at path without building it.
func (c *Context) LoadProgram(path string) (*Program, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read kernel source %s", path)
	}
	return c.CreateProgramFromSource(filepath.Base(path), string(source))
}

// CreateProgramFromSource creates an uncompiled program. name labels the
// program in logs and errors.
func (c *Context) CreateProgramFromSource(name, source string) (*Program, error) {
	const op = "create program"
	if err := c.alive(op); err != nil {
		return nil, err
	}
	if source == "" {
		return nil, fail(op, ErrInvalidArgument, "empty source for %s", name)
	}
	h, st := c.drv.CreateProgramWithSource(c.handle, source)
	if err := check(op, st); err != nil {
		return nil, err
	}
	return &Program{ctx: c, handle: h, name: name, state: new(programState)}, nil
}

// CreateUserEvent creates a host-controlled event in the submitted state.
// Complete it with SetStatus.
func (c *Context) CreateUserEvent() (*Event, error) {
	if err := c.alive("create user event"); err != nil {
		return nil, err
	}
	h, st := c.drv.CreateUserEvent(c.handle)
	if err := check("create user event", st); err != nil {
		return nil, err
	}
	return &Event{ctx: c, handle: h, user: true}, nil
}

func validateHostPtr(op string, flags MemFlags, host []byte, need int) error {
	wants := flags&driver.HostPtrFlags != 0
	switch {
	case wants && host == nil:
		return fail(op, ErrInvalidArgument, "host memory flag without host data")
	case !wants && host != nil:
		return fail(op, ErrInvalidArgument, "host data without a host memory flag")
	case flags&MemUseHostPtr != 0 && flags&MemCopyHostPtr != 0:
		return fail(op, ErrInvalidArgument, "use and copy host memory are exclusive")
	case host != nil && len(host) < need:
		return fail(op, ErrInvalidArgument, "host data holds %d of %d bytes", len(host), need)
	}
	return nil
}
