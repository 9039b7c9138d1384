//go:build gpu

package opencl

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 200
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <CL/cl.h>
#include <CL/cl_gl.h>
#include <stdlib.h>

static cl_command_queue clhost_create_queue(cl_context ctx, cl_device_id device,
		cl_command_queue_properties props, cl_uint size, cl_int *status) {
	cl_queue_properties list[5] = {CL_QUEUE_PROPERTIES, props, 0, 0, 0};
	if (size > 0) {
		list[2] = CL_QUEUE_SIZE;
		list[3] = size;
	}
	return clCreateCommandQueueWithProperties(ctx, device, list, status);
}

static cl_command_queue clhost_create_queue_legacy(cl_context ctx, cl_device_id device,
		cl_command_queue_properties props, cl_int *status) {
	return clCreateCommandQueue(ctx, device, props, status);
}
*/
import "C"

import (
	"errors"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/cwbudde/clhost/internal/driver"
)

// ErrNoPlatform indicates that the requested OpenCL platform does not exist.
var ErrNoPlatform = errors.New("no OpenCL platform found")

// Driver forwards every call to the OpenCL runtime of one platform.
//
// Go memory handed to non-blocking transfers stays pinned until the queue is
// finished or released. Host regions aliased by USE_HOST_PTR objects stay
// pinned until the object is freed.
type Driver struct {
	platform C.cl_platform_id
	info     driver.PlatformInfo
	version  float64

	mu        sync.Mutex
	queuePins map[driver.Queue]*runtime.Pinner
	memPins   map[driver.Mem]*runtime.Pinner
}

var _ driver.Driver = (*Driver)(nil)

func status(s C.cl_int) driver.Status { return driver.Status(s) }

func clBool(b bool) C.cl_bool {
	if b {
		return C.CL_TRUE
	}
	return C.CL_FALSE
}

// Platforms lists the installed OpenCL platforms.
func Platforms() ([]driver.PlatformInfo, error) {
	ids, st := platformIDs()
	if !st.OK() {
		return nil, errors.New("clGetPlatformIDs: " + st.String())
	}
	out := make([]driver.PlatformInfo, len(ids))
	for i, id := range ids {
		out[i] = platformInfo(id)
	}
	return out, nil
}

// New opens the platform at platformIndex.
func New(platformIndex int) (driver.Driver, error) {
	ids, st := platformIDs()
	if !st.OK() {
		return nil, errors.New("clGetPlatformIDs: " + st.String())
	}
	if platformIndex < 0 || platformIndex >= len(ids) {
		return nil, ErrNoPlatform
	}
	info := platformInfo(ids[platformIndex])
	return &Driver{
		platform:  ids[platformIndex],
		info:      info,
		version:   parseVersion(info.Version),
		queuePins: make(map[driver.Queue]*runtime.Pinner),
		memPins:   make(map[driver.Mem]*runtime.Pinner),
	}, nil
}

func parseVersion(version string) float64 {
	fields := strings.Fields(version)
	if len(fields) < 2 {
		return 1.2
	}
	switch {
	case strings.HasPrefix(fields[1], "3."):
		return 3.0
	case strings.HasPrefix(fields[1], "2."):
		return 2.0
	}
	return 1.2
}

func platformIDs() ([]C.cl_platform_id, driver.Status) {
	var count C.cl_uint
	if s := C.clGetPlatformIDs(0, nil, &count); s != C.CL_SUCCESS {
		return nil, status(s)
	}
	if count == 0 {
		return nil, driver.Success
	}
	ids := make([]C.cl_platform_id, int(count))
	if s := C.clGetPlatformIDs(count, &ids[0], nil); s != C.CL_SUCCESS {
		return nil, status(s)
	}
	return ids, driver.Success
}

func platformString(id C.cl_platform_id, param C.cl_platform_info) string {
	var size C.size_t
	if C.clGetPlatformInfo(id, param, 0, nil, &size) != C.CL_SUCCESS || size == 0 {
		return ""
	}
	buf := make([]byte, int(size))
	if C.clGetPlatformInfo(id, param, size, unsafe.Pointer(&buf[0]), nil) != C.CL_SUCCESS {
		return ""
	}
	return trimNull(buf)
}

func platformInfo(id C.cl_platform_id) driver.PlatformInfo {
	return driver.PlatformInfo{
		Name:    platformString(id, C.CL_PLATFORM_NAME),
		Vendor:  platformString(id, C.CL_PLATFORM_VENDOR),
		Version: platformString(id, C.CL_PLATFORM_VERSION),
	}
}

func trimNull(buf []byte) string {
	if len(buf) > 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf)
}

// Handle conversions. Driver handles carry the runtime's object pointers.
func devID(h driver.DeviceID) C.cl_device_id { return C.cl_device_id(unsafe.Pointer(h)) }

func ctxID(h driver.Context) C.cl_context { return C.cl_context(unsafe.Pointer(h)) }

func queueID(h driver.Queue) C.cl_command_queue { return C.cl_command_queue(unsafe.Pointer(h)) }

func memID(h driver.Mem) C.cl_mem { return C.cl_mem(unsafe.Pointer(h)) }

func progID(h driver.Program) C.cl_program { return C.cl_program(unsafe.Pointer(h)) }

func kernelID(h driver.Kernel) C.cl_kernel { return C.cl_kernel(unsafe.Pointer(h)) }

func eventID(h driver.Event) C.cl_event { return C.cl_event(unsafe.Pointer(h)) }

func eventHandle(e C.cl_event) driver.Event { return driver.Event(uintptr(unsafe.Pointer(e))) }

func (d *Driver) Name() string { return Name }

func (d *Driver) Platform() (driver.PlatformInfo, driver.Status) { return d.info, driver.Success }

func (d *Driver) Devices(t driver.DeviceType) ([]driver.DeviceID, driver.Status) {
	var count C.cl_uint
	if s := C.clGetDeviceIDs(d.platform, C.cl_device_type(t), 0, nil, &count); s != C.CL_SUCCESS {
		return nil, status(s)
	}
	if count == 0 {
		return nil, driver.DeviceNotFound
	}
	ids := make([]C.cl_device_id, int(count))
	if s := C.clGetDeviceIDs(d.platform, C.cl_device_type(t), count, &ids[0], nil); s != C.CL_SUCCESS {
		return nil, status(s)
	}
	out := make([]driver.DeviceID, len(ids))
	for i, id := range ids {
		out[i] = driver.DeviceID(uintptr(unsafe.Pointer(id)))
	}
	return out, driver.Success
}

func deviceString(id C.cl_device_id, param C.cl_device_info) (string, driver.Status) {
	var size C.size_t
	if s := C.clGetDeviceInfo(id, param, 0, nil, &size); s != C.CL_SUCCESS {
		return "", status(s)
	}
	if size == 0 {
		return "", driver.Success
	}
	buf := make([]byte, int(size))
	if s := C.clGetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil); s != C.CL_SUCCESS {
		return "", status(s)
	}
	return trimNull(buf), driver.Success
}

// deviceValue reads a fixed-size device property into v.
func deviceValue[T any](id C.cl_device_id, param C.cl_device_info, v *T) driver.Status {
	return status(C.clGetDeviceInfo(id, param, C.size_t(unsafe.Sizeof(*v)), unsafe.Pointer(v), nil))
}

func (d *Driver) DeviceInfo(h driver.DeviceID) (driver.DeviceInfo, driver.Status) {
	id := devID(h)
	var info driver.DeviceInfo
	var st driver.Status

	texts := []struct {
		param C.cl_device_info
		dst   *string
	}{
		{C.CL_DEVICE_NAME, &info.Name},
		{C.CL_DEVICE_VENDOR, &info.Vendor},
		{C.CL_DEVICE_VERSION, &info.Version},
		{C.CL_DRIVER_VERSION, &info.DriverVersion},
		{C.CL_DEVICE_EXTENSIONS, &info.Extensions},
	}
	for _, s := range texts {
		if *s.dst, st = deviceString(id, s.param); !st.OK() {
			return driver.DeviceInfo{}, st
		}
	}

	var (
		devType                             C.cl_device_type
		units, dims, clock, addressBits     C.cl_uint
		maxGroup, timerRes                  C.size_t
		maxAlloc, globalMem, localMem, cbuf C.cl_ulong
		available, compiler, little, ecc    C.cl_bool
		images                              C.cl_bool
		queueProps                          C.cl_command_queue_properties
	)
	values := []driver.Status{
		deviceValue(id, C.CL_DEVICE_TYPE, &devType),
		deviceValue(id, C.CL_DEVICE_MAX_COMPUTE_UNITS, &units),
		deviceValue(id, C.CL_DEVICE_MAX_WORK_ITEM_DIMENSIONS, &dims),
		deviceValue(id, C.CL_DEVICE_MAX_CLOCK_FREQUENCY, &clock),
		deviceValue(id, C.CL_DEVICE_ADDRESS_BITS, &addressBits),
		deviceValue(id, C.CL_DEVICE_MAX_WORK_GROUP_SIZE, &maxGroup),
		deviceValue(id, C.CL_DEVICE_PROFILING_TIMER_RESOLUTION, &timerRes),
		deviceValue(id, C.CL_DEVICE_MAX_MEM_ALLOC_SIZE, &maxAlloc),
		deviceValue(id, C.CL_DEVICE_GLOBAL_MEM_SIZE, &globalMem),
		deviceValue(id, C.CL_DEVICE_LOCAL_MEM_SIZE, &localMem),
		deviceValue(id, C.CL_DEVICE_MAX_CONSTANT_BUFFER_SIZE, &cbuf),
		deviceValue(id, C.CL_DEVICE_AVAILABLE, &available),
		deviceValue(id, C.CL_DEVICE_COMPILER_AVAILABLE, &compiler),
		deviceValue(id, C.CL_DEVICE_ENDIAN_LITTLE, &little),
		deviceValue(id, C.CL_DEVICE_ERROR_CORRECTION_SUPPORT, &ecc),
		deviceValue(id, C.CL_DEVICE_IMAGE_SUPPORT, &images),
		deviceValue(id, C.CL_DEVICE_QUEUE_PROPERTIES, &queueProps),
	}
	for _, st := range values {
		if !st.OK() {
			return driver.DeviceInfo{}, st
		}
	}

	sizes := make([]C.size_t, int(dims))
	if dims > 0 {
		if s := C.clGetDeviceInfo(id, C.CL_DEVICE_MAX_WORK_ITEM_SIZES, C.size_t(len(sizes))*C.size_t(unsafe.Sizeof(sizes[0])), unsafe.Pointer(&sizes[0]), nil); s != C.CL_SUCCESS {
			return driver.DeviceInfo{}, status(s)
		}
	}
	info.MaxWorkItemSizes = make([]uint64, len(sizes))
	for i, s := range sizes {
		info.MaxWorkItemSizes[i] = uint64(s)
	}

	// Device-side enqueue is an OpenCL 2.0 property; older devices reject the query.
	var onDevice C.cl_command_queue_properties
	info.DeviceEnqueue = parseVersion(info.Version) >= 2.0 &&
		deviceValue(id, C.CL_DEVICE_QUEUE_ON_DEVICE_PROPERTIES, &onDevice).OK() && onDevice != 0

	info.Type = driver.DeviceType(devType)
	info.MaxComputeUnits = uint32(units)
	info.MaxWorkItemDimensions = uint32(dims)
	info.MaxClockFrequency = uint32(clock)
	info.AddressBits = uint32(addressBits)
	info.MaxWorkGroupSize = uint64(maxGroup)
	info.ProfilingTimerResolution = uint64(timerRes)
	info.MaxMemAllocSize = uint64(maxAlloc)
	info.GlobalMemSize = uint64(globalMem)
	info.LocalMemSize = uint64(localMem)
	info.MaxConstantBufferSize = uint64(cbuf)
	info.Available = available == C.CL_TRUE
	info.CompilerAvailable = compiler == C.CL_TRUE
	info.LittleEndian = little == C.CL_TRUE
	info.ErrorCorrection = ecc == C.CL_TRUE
	info.ImageSupport = images == C.CL_TRUE
	info.QueueProperties = driver.QueueProperties(queueProps)
	return info, driver.Success
}

func (d *Driver) CreateContext(devices []driver.DeviceID) (driver.Context, driver.Status) {
	if len(devices) == 0 {
		return 0, driver.InvalidValue
	}
	ids := make([]C.cl_device_id, len(devices))
	for i, h := range devices {
		ids[i] = devID(h)
	}
	var s C.cl_int
	ctx := C.clCreateContext(nil, C.cl_uint(len(ids)), &ids[0], nil, nil, &s)
	if s != C.CL_SUCCESS {
		return 0, status(s)
	}
	return driver.Context(uintptr(unsafe.Pointer(ctx))), driver.Success
}

func (d *Driver) RetainContext(c driver.Context) driver.Status {
	return status(C.clRetainContext(ctxID(c)))
}

func (d *Driver) ReleaseContext(c driver.Context) driver.Status {
	return status(C.clReleaseContext(ctxID(c)))
}

func (d *Driver) CreateQueue(c driver.Context, dev driver.DeviceID, props driver.QueueProperties, size uint32) (driver.Queue, driver.Status) {
	var s C.cl_int
	var q C.cl_command_queue
	if d.version >= 2.0 {
		q = C.clhost_create_queue(ctxID(c), devID(dev), C.cl_command_queue_properties(props), C.cl_uint(size), &s)
	} else {
		if props&(driver.QueueOnDevice|driver.QueueOnDeviceDefault) != 0 {
			return 0, driver.InvalidQueueProperties
		}
		q = C.clhost_create_queue_legacy(ctxID(c), devID(dev), C.cl_command_queue_properties(props), &s)
	}
	if s != C.CL_SUCCESS {
		return 0, status(s)
	}
	return driver.Queue(uintptr(unsafe.Pointer(q))), driver.Success
}

func (d *Driver) RetainQueue(q driver.Queue) driver.Status {
	return status(C.clRetainCommandQueue(queueID(q)))
}

func (d *Driver) ReleaseQueue(q driver.Queue) driver.Status {
	var refs C.cl_uint
	last := C.clGetCommandQueueInfo(queueID(q), C.CL_QUEUE_REFERENCE_COUNT, C.size_t(unsafe.Sizeof(refs)), unsafe.Pointer(&refs), nil) == C.CL_SUCCESS && refs == 1
	if last {
		C.clFinish(queueID(q))
	}
	st := status(C.clReleaseCommandQueue(queueID(q)))
	if st.OK() && last {
		d.unpinQueue(q)
	}
	return st
}

func (d *Driver) Flush(q driver.Queue) driver.Status {
	return status(C.clFlush(queueID(q)))
}

func (d *Driver) Finish(q driver.Queue) driver.Status {
	st := status(C.clFinish(queueID(q)))
	if st.OK() {
		d.unpinQueue(q)
	}
	return st
}

func (d *Driver) pinForQueue(q driver.Queue, b []byte) {
	if len(b) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.queuePins[q]
	if !ok {
		p = new(runtime.Pinner)
		d.queuePins[q] = p
	}
	p.Pin(unsafe.SliceData(b))
}

func (d *Driver) unpinQueue(q driver.Queue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.queuePins[q]; ok {
		p.Unpin()
		delete(d.queuePins, q)
	}
}

func hostPtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(b))
}

func (d *Driver) CreateBuffer(c driver.Context, flags driver.MemFlags, size int, host []byte) (driver.Mem, driver.Status) {
	var pin *runtime.Pinner
	if flags&driver.MemUseHostPtr != 0 && len(host) > 0 {
		pin = new(runtime.Pinner)
		pin.Pin(unsafe.SliceData(host))
	}
	var s C.cl_int
	m := C.clCreateBuffer(ctxID(c), C.cl_mem_flags(flags), C.size_t(size), hostPtr(host), &s)
	if s != C.CL_SUCCESS {
		if pin != nil {
			pin.Unpin()
		}
		return 0, status(s)
	}
	h := driver.Mem(uintptr(unsafe.Pointer(m)))
	if pin != nil {
		d.mu.Lock()
		d.memPins[h] = pin
		d.mu.Unlock()
	}
	return h, driver.Success
}

func (d *Driver) CreateImage(c driver.Context, flags driver.MemFlags, format driver.ImageFormat, desc driver.ImageDesc, host []byte) (driver.Mem, driver.Status) {
	var pin *runtime.Pinner
	if flags&driver.MemUseHostPtr != 0 && len(host) > 0 {
		pin = new(runtime.Pinner)
		pin.Pin(unsafe.SliceData(host))
	}
	cfmt := C.cl_image_format{
		image_channel_order:     C.cl_channel_order(format.Order),
		image_channel_data_type: C.cl_channel_type(format.Type),
	}
	var cdesc C.cl_image_desc
	cdesc.image_type = C.cl_mem_object_type(desc.Type)
	cdesc.image_width = C.size_t(desc.Width)
	cdesc.image_height = C.size_t(desc.Height)
	cdesc.image_depth = 1
	cdesc.image_array_size = 1
	cdesc.image_row_pitch = C.size_t(desc.RowPitch)

	var s C.cl_int
	m := C.clCreateImage(ctxID(c), C.cl_mem_flags(flags), &cfmt, &cdesc, hostPtr(host), &s)
	if s != C.CL_SUCCESS {
		if pin != nil {
			pin.Unpin()
		}
		return 0, status(s)
	}
	h := driver.Mem(uintptr(unsafe.Pointer(m)))
	if pin != nil {
		d.mu.Lock()
		d.memPins[h] = pin
		d.mu.Unlock()
	}
	return h, driver.Success
}

func (d *Driver) CreateFromGLTexture(c driver.Context, flags driver.MemFlags, target uint32, mipLevel int32, texture uint32) (driver.Mem, driver.Status) {
	var s C.cl_int
	m := C.clCreateFromGLTexture(ctxID(c), C.cl_mem_flags(flags), C.cl_GLenum(target), C.cl_GLint(mipLevel), C.cl_GLuint(texture), &s)
	if s != C.CL_SUCCESS {
		return 0, status(s)
	}
	return driver.Mem(uintptr(unsafe.Pointer(m))), driver.Success
}

func (d *Driver) MemSize(m driver.Mem) (int, driver.Status) {
	var size C.size_t
	s := C.clGetMemObjectInfo(memID(m), C.CL_MEM_SIZE, C.size_t(unsafe.Sizeof(size)), unsafe.Pointer(&size), nil)
	return int(size), status(s)
}

func (d *Driver) RetainMem(m driver.Mem) driver.Status {
	return status(C.clRetainMemObject(memID(m)))
}

func (d *Driver) ReleaseMem(m driver.Mem) driver.Status {
	var refs C.cl_uint
	last := C.clGetMemObjectInfo(memID(m), C.CL_MEM_REFERENCE_COUNT, C.size_t(unsafe.Sizeof(refs)), unsafe.Pointer(&refs), nil) == C.CL_SUCCESS && refs == 1
	st := status(C.clReleaseMemObject(memID(m)))
	if st.OK() && last {
		d.mu.Lock()
		if p, ok := d.memPins[m]; ok {
			p.Unpin()
			delete(d.memPins, m)
		}
		d.mu.Unlock()
	}
	return st
}

func (d *Driver) CreateProgramWithSource(c driver.Context, source string) (driver.Program, driver.Status) {
	csrc := C.CString(source)
	defer C.free(unsafe.Pointer(csrc))
	length := C.size_t(len(source))
	var s C.cl_int
	p := C.clCreateProgramWithSource(ctxID(c), 1, &csrc, &length, &s)
	if s != C.CL_SUCCESS {
		return 0, status(s)
	}
	return driver.Program(uintptr(unsafe.Pointer(p))), driver.Success
}

func (d *Driver) BuildProgram(p driver.Program, devices []driver.DeviceID, options string) driver.Status {
	copts := C.CString(options)
	defer C.free(unsafe.Pointer(copts))
	if len(devices) == 0 {
		return status(C.clBuildProgram(progID(p), 0, nil, copts, nil, nil))
	}
	ids := make([]C.cl_device_id, len(devices))
	for i, h := range devices {
		ids[i] = devID(h)
	}
	return status(C.clBuildProgram(progID(p), C.cl_uint(len(ids)), &ids[0], copts, nil, nil))
}

func (d *Driver) ProgramBuildLog(p driver.Program, dev driver.DeviceID) (string, driver.Status) {
	var size C.size_t
	if s := C.clGetProgramBuildInfo(progID(p), devID(dev), C.CL_PROGRAM_BUILD_LOG, 0, nil, &size); s != C.CL_SUCCESS {
		return "", status(s)
	}
	if size == 0 {
		return "", driver.Success
	}
	buf := make([]byte, int(size))
	if s := C.clGetProgramBuildInfo(progID(p), devID(dev), C.CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil); s != C.CL_SUCCESS {
		return "", status(s)
	}
	return strings.TrimSpace(trimNull(buf)), driver.Success
}

func (d *Driver) RetainProgram(p driver.Program) driver.Status {
	return status(C.clRetainProgram(progID(p)))
}

func (d *Driver) ReleaseProgram(p driver.Program) driver.Status {
	return status(C.clReleaseProgram(progID(p)))
}

func (d *Driver) CreateKernel(p driver.Program, name string) (driver.Kernel, driver.Status) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	var s C.cl_int
	k := C.clCreateKernel(progID(p), cname, &s)
	if s != C.CL_SUCCESS {
		return 0, status(s)
	}
	return driver.Kernel(uintptr(unsafe.Pointer(k))), driver.Success
}

func (d *Driver) KernelNumArgs(k driver.Kernel) (uint32, driver.Status) {
	var n C.cl_uint
	s := C.clGetKernelInfo(kernelID(k), C.CL_KERNEL_NUM_ARGS, C.size_t(unsafe.Sizeof(n)), unsafe.Pointer(&n), nil)
	return uint32(n), status(s)
}

func (d *Driver) SetKernelArg(k driver.Kernel, index uint32, size int, value []byte) driver.Status {
	return status(C.clSetKernelArg(kernelID(k), C.cl_uint(index), C.size_t(size), hostPtr(value)))
}

func (d *Driver) KernelWorkGroupInfo(k driver.Kernel, dev driver.DeviceID, param driver.WorkGroupInfo) (uint64, driver.Status) {
	switch param {
	case driver.KernelLocalMemSize, driver.KernelPrivateMemSize:
		var v C.cl_ulong
		s := C.clGetKernelWorkGroupInfo(kernelID(k), devID(dev), C.cl_kernel_work_group_info(param), C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
		return uint64(v), status(s)
	case driver.KernelCompileWorkGroupSize:
		var v [3]C.size_t
		s := C.clGetKernelWorkGroupInfo(kernelID(k), devID(dev), C.cl_kernel_work_group_info(param), C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v[0]), nil)
		return uint64(v[0]), status(s)
	default:
		var v C.size_t
		s := C.clGetKernelWorkGroupInfo(kernelID(k), devID(dev), C.cl_kernel_work_group_info(param), C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
		return uint64(v), status(s)
	}
}

func (d *Driver) RetainKernel(k driver.Kernel) driver.Status {
	return status(C.clRetainKernel(kernelID(k)))
}

func (d *Driver) ReleaseKernel(k driver.Kernel) driver.Status {
	return status(C.clReleaseKernel(kernelID(k)))
}

// eventArgs converts a wait list and returns the out-event pointer to pass.
type eventArgs struct {
	list []C.cl_event
	out  C.cl_event
	want bool
}

func newEventArgs(ev driver.EventArgs) *eventArgs {
	a := &eventArgs{want: ev.WantEvent}
	if len(ev.WaitList) > 0 {
		a.list = make([]C.cl_event, len(ev.WaitList))
		for i, h := range ev.WaitList {
			a.list[i] = eventID(h)
		}
	}
	return a
}

func (a *eventArgs) count() C.cl_uint { return C.cl_uint(len(a.list)) }

func (a *eventArgs) waitPtr() *C.cl_event {
	if len(a.list) == 0 {
		return nil
	}
	return &a.list[0]
}

func (a *eventArgs) outPtr() *C.cl_event {
	if !a.want {
		return nil
	}
	return &a.out
}

func (a *eventArgs) result(s C.cl_int) (driver.Event, driver.Status) {
	if s != C.CL_SUCCESS {
		return 0, status(s)
	}
	return eventHandle(a.out), driver.Success
}

func size3(v [3]int) [3]C.size_t {
	return [3]C.size_t{C.size_t(v[0]), C.size_t(v[1]), C.size_t(v[2])}
}

func (d *Driver) EnqueueReadBuffer(q driver.Queue, m driver.Mem, blocking bool, offset int, dst []byte, ev driver.EventArgs) (driver.Event, driver.Status) {
	if !blocking {
		d.pinForQueue(q, dst)
	}
	a := newEventArgs(ev)
	s := C.clEnqueueReadBuffer(queueID(q), memID(m), clBool(blocking), C.size_t(offset), C.size_t(len(dst)), hostPtr(dst), a.count(), a.waitPtr(), a.outPtr())
	return a.result(s)
}

func (d *Driver) EnqueueWriteBuffer(q driver.Queue, m driver.Mem, blocking bool, offset int, src []byte, ev driver.EventArgs) (driver.Event, driver.Status) {
	if !blocking {
		d.pinForQueue(q, src)
	}
	a := newEventArgs(ev)
	s := C.clEnqueueWriteBuffer(queueID(q), memID(m), clBool(blocking), C.size_t(offset), C.size_t(len(src)), hostPtr(src), a.count(), a.waitPtr(), a.outPtr())
	return a.result(s)
}

func (d *Driver) EnqueueWriteBufferRect(q driver.Queue, m driver.Mem, blocking bool, bufferOrigin, hostOrigin, region [3]int,
	bufferRowPitch, bufferSlicePitch, hostRowPitch, hostSlicePitch int, src []byte, ev driver.EventArgs) (driver.Event, driver.Status) {
	if !blocking {
		d.pinForQueue(q, src)
	}
	bo, ho, r := size3(bufferOrigin), size3(hostOrigin), size3(region)
	a := newEventArgs(ev)
	s := C.clEnqueueWriteBufferRect(queueID(q), memID(m), clBool(blocking), &bo[0], &ho[0], &r[0],
		C.size_t(bufferRowPitch), C.size_t(bufferSlicePitch), C.size_t(hostRowPitch), C.size_t(hostSlicePitch),
		hostPtr(src), a.count(), a.waitPtr(), a.outPtr())
	return a.result(s)
}

func (d *Driver) EnqueueCopyBuffer(q driver.Queue, src, dst driver.Mem, srcOffset, dstOffset, size int, ev driver.EventArgs) (driver.Event, driver.Status) {
	a := newEventArgs(ev)
	s := C.clEnqueueCopyBuffer(queueID(q), memID(src), memID(dst), C.size_t(srcOffset), C.size_t(dstOffset), C.size_t(size), a.count(), a.waitPtr(), a.outPtr())
	return a.result(s)
}

func (d *Driver) EnqueueFillBuffer(q driver.Queue, m driver.Mem, pattern []byte, offset, size int, ev driver.EventArgs) (driver.Event, driver.Status) {
	a := newEventArgs(ev)
	s := C.clEnqueueFillBuffer(queueID(q), memID(m), hostPtr(pattern), C.size_t(len(pattern)), C.size_t(offset), C.size_t(size), a.count(), a.waitPtr(), a.outPtr())
	return a.result(s)
}

func (d *Driver) EnqueueReadImage(q driver.Queue, m driver.Mem, blocking bool, origin, region [3]int, rowPitch, slicePitch int, dst []byte, ev driver.EventArgs) (driver.Event, driver.Status) {
	if !blocking {
		d.pinForQueue(q, dst)
	}
	o, r := size3(origin), size3(region)
	a := newEventArgs(ev)
	s := C.clEnqueueReadImage(queueID(q), memID(m), clBool(blocking), &o[0], &r[0], C.size_t(rowPitch), C.size_t(slicePitch), hostPtr(dst), a.count(), a.waitPtr(), a.outPtr())
	return a.result(s)
}

func (d *Driver) EnqueueWriteImage(q driver.Queue, m driver.Mem, blocking bool, origin, region [3]int, rowPitch, slicePitch int, src []byte, ev driver.EventArgs) (driver.Event, driver.Status) {
	if !blocking {
		d.pinForQueue(q, src)
	}
	o, r := size3(origin), size3(region)
	a := newEventArgs(ev)
	s := C.clEnqueueWriteImage(queueID(q), memID(m), clBool(blocking), &o[0], &r[0], C.size_t(rowPitch), C.size_t(slicePitch), hostPtr(src), a.count(), a.waitPtr(), a.outPtr())
	return a.result(s)
}

func (d *Driver) EnqueueCopyBufferToImage(q driver.Queue, src, dst driver.Mem, srcOffset int, dstOrigin, region [3]int, ev driver.EventArgs) (driver.Event, driver.Status) {
	o, r := size3(dstOrigin), size3(region)
	a := newEventArgs(ev)
	s := C.clEnqueueCopyBufferToImage(queueID(q), memID(src), memID(dst), C.size_t(srcOffset), &o[0], &r[0], a.count(), a.waitPtr(), a.outPtr())
	return a.result(s)
}

func (d *Driver) EnqueueMapBuffer(q driver.Queue, m driver.Mem, blocking bool, flags driver.MapFlags, offset, size int, ev driver.EventArgs) ([]byte, driver.Event, driver.Status) {
	a := newEventArgs(ev)
	var s C.cl_int
	ptr := C.clEnqueueMapBuffer(queueID(q), memID(m), clBool(blocking), C.cl_map_flags(flags), C.size_t(offset), C.size_t(size), a.count(), a.waitPtr(), a.outPtr(), &s)
	e, st := a.result(s)
	if !st.OK() {
		return nil, 0, st
	}
	return unsafe.Slice((*byte)(ptr), size), e, driver.Success
}

func (d *Driver) EnqueueMapImage(q driver.Queue, m driver.Mem, blocking bool, flags driver.MapFlags, origin, region [3]int, ev driver.EventArgs) (driver.MappedImage, driver.Event, driver.Status) {
	o, r := size3(origin), size3(region)
	var rowPitch, slicePitch C.size_t
	var elem C.size_t
	if s := C.clGetImageInfo(memID(m), C.CL_IMAGE_ELEMENT_SIZE, C.size_t(unsafe.Sizeof(elem)), unsafe.Pointer(&elem), nil); s != C.CL_SUCCESS {
		return driver.MappedImage{}, 0, status(s)
	}
	a := newEventArgs(ev)
	var s C.cl_int
	ptr := C.clEnqueueMapImage(queueID(q), memID(m), clBool(blocking), C.cl_map_flags(flags), &o[0], &r[0], &rowPitch, &slicePitch, a.count(), a.waitPtr(), a.outPtr(), &s)
	e, st := a.result(s)
	if !st.OK() {
		return driver.MappedImage{}, 0, st
	}
	n := (region[1]-1)*int(rowPitch) + region[0]*int(elem)
	return driver.MappedImage{
		Data:       unsafe.Slice((*byte)(ptr), n),
		RowPitch:   int(rowPitch),
		SlicePitch: int(slicePitch),
	}, e, driver.Success
}

func (d *Driver) EnqueueUnmapMemObject(q driver.Queue, m driver.Mem, mapped []byte, ev driver.EventArgs) (driver.Event, driver.Status) {
	a := newEventArgs(ev)
	s := C.clEnqueueUnmapMemObject(queueID(q), memID(m), hostPtr(mapped), a.count(), a.waitPtr(), a.outPtr())
	return a.result(s)
}

func sizes(v []int) ([]C.size_t, *C.size_t) {
	if v == nil {
		return nil, nil
	}
	out := make([]C.size_t, len(v))
	for i, x := range v {
		out[i] = C.size_t(x)
	}
	return out, &out[0]
}

func (d *Driver) EnqueueNDRangeKernel(q driver.Queue, k driver.Kernel, offset, global, local []int, ev driver.EventArgs) (driver.Event, driver.Status) {
	if len(global) == 0 {
		return 0, driver.InvalidWorkDimension
	}
	_, op := sizes(offset)
	_, gp := sizes(global)
	_, lp := sizes(local)
	a := newEventArgs(ev)
	s := C.clEnqueueNDRangeKernel(queueID(q), kernelID(k), C.cl_uint(len(global)), op, gp, lp, a.count(), a.waitPtr(), a.outPtr())
	return a.result(s)
}

func (d *Driver) EnqueueBarrier(q driver.Queue, ev driver.EventArgs) (driver.Event, driver.Status) {
	a := newEventArgs(ev)
	s := C.clEnqueueBarrierWithWaitList(queueID(q), a.count(), a.waitPtr(), a.outPtr())
	return a.result(s)
}

func (d *Driver) EnqueueMarker(q driver.Queue, ev driver.EventArgs) (driver.Event, driver.Status) {
	a := newEventArgs(ev)
	s := C.clEnqueueMarkerWithWaitList(queueID(q), a.count(), a.waitPtr(), a.outPtr())
	return a.result(s)
}

func memList(mems []driver.Mem) ([]C.cl_mem, *C.cl_mem) {
	if len(mems) == 0 {
		return nil, nil
	}
	out := make([]C.cl_mem, len(mems))
	for i, m := range mems {
		out[i] = memID(m)
	}
	return out, &out[0]
}

func (d *Driver) EnqueueAcquireGLObjects(q driver.Queue, mems []driver.Mem, ev driver.EventArgs) (driver.Event, driver.Status) {
	_, mp := memList(mems)
	a := newEventArgs(ev)
	s := C.clEnqueueAcquireGLObjects(queueID(q), C.cl_uint(len(mems)), mp, a.count(), a.waitPtr(), a.outPtr())
	return a.result(s)
}

func (d *Driver) EnqueueReleaseGLObjects(q driver.Queue, mems []driver.Mem, ev driver.EventArgs) (driver.Event, driver.Status) {
	_, mp := memList(mems)
	a := newEventArgs(ev)
	s := C.clEnqueueReleaseGLObjects(queueID(q), C.cl_uint(len(mems)), mp, a.count(), a.waitPtr(), a.outPtr())
	return a.result(s)
}

func (d *Driver) CreateUserEvent(c driver.Context) (driver.Event, driver.Status) {
	var s C.cl_int
	e := C.clCreateUserEvent(ctxID(c), &s)
	if s != C.CL_SUCCESS {
		return 0, status(s)
	}
	return eventHandle(e), driver.Success
}

func (d *Driver) SetUserEventStatus(e driver.Event, st driver.ExecStatus) driver.Status {
	return status(C.clSetUserEventStatus(eventID(e), C.cl_int(st)))
}

func (d *Driver) EventStatus(e driver.Event) (driver.ExecStatus, driver.Status) {
	var v C.cl_int
	s := C.clGetEventInfo(eventID(e), C.CL_EVENT_COMMAND_EXECUTION_STATUS, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
	return driver.ExecStatus(v), status(s)
}

func (d *Driver) EventReferenceCount(e driver.Event) (uint32, driver.Status) {
	var v C.cl_uint
	s := C.clGetEventInfo(eventID(e), C.CL_EVENT_REFERENCE_COUNT, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
	return uint32(v), status(s)
}

func (d *Driver) EventProfilingInfo(e driver.Event, param driver.ProfilingInfo) (uint64, driver.Status) {
	var v C.cl_ulong
	s := C.clGetEventProfilingInfo(eventID(e), C.cl_profiling_info(param), C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
	return uint64(v), status(s)
}

func (d *Driver) WaitForEvents(events []driver.Event) driver.Status {
	if len(events) == 0 {
		return driver.InvalidValue
	}
	list := make([]C.cl_event, len(events))
	for i, h := range events {
		list[i] = eventID(h)
	}
	return status(C.clWaitForEvents(C.cl_uint(len(list)), &list[0]))
}

func (d *Driver) RetainEvent(e driver.Event) driver.Status {
	return status(C.clRetainEvent(eventID(e)))
}

func (d *Driver) ReleaseEvent(e driver.Event) driver.Status {
	return status(C.clReleaseEvent(eventID(e)))
}
