// Package host implements the driver interface on the host CPU.
//
// Commands execute asynchronously on goroutines with the ordering, wait-list
// and reference-count semantics of a native runtime. Kernels are Go functions
// registered in a Library under the name they carry in the kernel source;
// building a program parses the source for kernel signatures and binds each
// one to its Go implementation.
package host

import (
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/clhost/internal/driver"
)

const (
	// Name identifies the host driver.
	Name = "host"

	defaultGlobalMem = 1 << 30
	defaultMaxAlloc  = 256 << 20
	defaultMaxQueues = 64
)

// Driver is the host-emulated compute device. Create it with New.
type Driver struct {
	cfg    config
	logger *slog.Logger
	epoch  time.Time

	mu        sync.Mutex
	next      uintptr
	objects   map[uintptr]any
	device    driver.DeviceID
	allocated uint64
	queues    int
	textures  map[uint32]*texture
}

var _ driver.Driver = (*Driver)(nil)

func defaultInfo() driver.DeviceInfo {
	return driver.DeviceInfo{
		Name:                     "Host Emulated Device",
		Vendor:                   "clhost",
		Version:                  "OpenCL 2.0 clhost",
		DriverVersion:            "0.1.0",
		Extensions:               "cl_khr_byte_addressable_store cl_khr_global_int32_base_atomics cl_khr_local_int32_base_atomics cl_khr_fp16 cl_khr_gl_sharing",
		Type:                     driver.DeviceTypeCPU,
		MaxComputeUnits:          uint32(runtime.NumCPU()),
		MaxWorkItemDimensions:    3,
		MaxWorkItemSizes:         []uint64{1024, 1024, 64},
		MaxWorkGroupSize:         256,
		MaxClockFrequency:        1000,
		AddressBits:              64,
		MaxMemAllocSize:          defaultMaxAlloc,
		GlobalMemSize:            defaultGlobalMem,
		LocalMemSize:             32 << 10,
		MaxConstantBufferSize:    64 << 10,
		ProfilingTimerResolution: 1,
		QueueProperties:          driver.QueueOutOfOrder | driver.QueueProfiling,
		Available:                true,
		CompilerAvailable:        true,
		LittleEndian:             true,
		ImageSupport:             true,
	}
}

// New creates a host device with one device.
func New(opts ...Option) *Driver {
	cfg := config{
		info:              defaultInfo(),
		maxQueues:         defaultMaxQueues,
		preferredMultiple: 16,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.lib == nil {
		cfg.lib = NewLibrary()
	}
	if cfg.info.UUID == "" {
		// Derived from the device identity; stable across processes.
		cfg.info.UUID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(cfg.info.Vendor+"/"+cfg.info.Name+"/"+cfg.info.Version)).String()
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	d := &Driver{
		cfg:      cfg,
		logger:   cfg.logger.With("driver", Name),
		epoch:    time.Now(),
		objects:  make(map[uintptr]any),
		textures: make(map[uint32]*texture),
	}
	d.device = driver.DeviceID(d.register(&cfg.info))
	return d
}

// Library returns the kernel implementations this device builds against.
func (d *Driver) Library() *Library { return d.cfg.lib }

func (d *Driver) Name() string { return Name }

func (d *Driver) Platform() (driver.PlatformInfo, driver.Status) {
	return driver.PlatformInfo{
		Name:    "clhost",
		Vendor:  d.cfg.info.Vendor,
		Version: d.cfg.info.Version,
	}, driver.Success
}

func (d *Driver) Devices(t driver.DeviceType) ([]driver.DeviceID, driver.Status) {
	if t == 0 {
		return nil, driver.InvalidDeviceType
	}
	if t != driver.DeviceTypeAll && t&d.cfg.info.Type == 0 && t != driver.DeviceTypeDefault {
		return nil, driver.DeviceNotFound
	}
	return []driver.DeviceID{d.device}, driver.Success
}

func (d *Driver) DeviceInfo(id driver.DeviceID) (driver.DeviceInfo, driver.Status) {
	if id != d.device {
		return driver.DeviceInfo{}, driver.InvalidDevice
	}
	info := d.cfg.info
	info.MaxWorkItemSizes = append([]uint64(nil), info.MaxWorkItemSizes...)
	return info, driver.Success
}

// now is the device clock in nanoseconds. It never decreases.
func (d *Driver) now() uint64 {
	return uint64(time.Since(d.epoch).Nanoseconds())
}

func (d *Driver) register(obj any) uintptr {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.objects[d.next] = obj
	return d.next
}

// lookup resolves a handle to an object of type T.
func lookup[T any](d *Driver, h uintptr) (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.objects[h].(T)
	return obj, ok
}

// refCounted is implemented by every object with a retain/release lifecycle.
type refCounted interface {
	counter() *int32
}

type refs struct{ n int32 }

func (r *refs) counter() *int32 { return &r.n }

func retain[T refCounted](d *Driver, h uintptr, invalid driver.Status) driver.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.objects[h].(T)
	if !ok {
		return invalid
	}
	*obj.counter()++
	return driver.Success
}

// release drops one reference and returns the object when it was the last one.
func release[T refCounted](d *Driver, h uintptr, invalid driver.Status) (T, bool, driver.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var zero T
	obj, ok := d.objects[h].(T)
	if !ok {
		return zero, false, invalid
	}
	c := obj.counter()
	*c--
	if *c > 0 {
		return obj, false, driver.Success
	}
	delete(d.objects, h)
	return obj, true, driver.Success
}

type hostContext struct {
	refs
	id          driver.Context
	deviceQueue *queue
}

func (d *Driver) CreateContext(devices []driver.DeviceID) (driver.Context, driver.Status) {
	if len(devices) == 0 {
		return 0, driver.InvalidValue
	}
	for _, id := range devices {
		if id != d.device {
			return 0, driver.InvalidDevice
		}
	}
	c := &hostContext{refs: refs{1}}
	c.id = driver.Context(d.register(c))
	d.logger.Debug("context created", "context", c.id)
	return c.id, driver.Success
}

func (d *Driver) RetainContext(c driver.Context) driver.Status {
	return retain[*hostContext](d, uintptr(c), driver.InvalidContext)
}

func (d *Driver) ReleaseContext(c driver.Context) driver.Status {
	_, freed, st := release[*hostContext](d, uintptr(c), driver.InvalidContext)
	if freed {
		d.logger.Debug("context released", "context", c)
	}
	return st
}

func (d *Driver) context(c driver.Context) (*hostContext, driver.Status) {
	ctx, ok := lookup[*hostContext](d, uintptr(c))
	if !ok {
		return nil, driver.InvalidContext
	}
	return ctx, driver.Success
}
