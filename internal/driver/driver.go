// Package driver defines the boundary between the host control layer and a
// native compute runtime. Implementations translate each call into the
// runtime's API and report the outcome as a Status; they do no validation
// beyond what the runtime itself performs.
package driver

// Driver is a native compute runtime. All methods are safe for concurrent use.
//
// Reference-counted objects start with a count of one when created. Enqueue
// methods return a zero Event unless EventArgs.WantEvent is set, in which case
// the returned event carries one reference owned by the caller.
type Driver interface {
	Name() string
	Platform() (PlatformInfo, Status)
	Devices(t DeviceType) ([]DeviceID, Status)
	DeviceInfo(d DeviceID) (DeviceInfo, Status)

	CreateContext(devices []DeviceID) (Context, Status)
	RetainContext(c Context) Status
	ReleaseContext(c Context) Status

	CreateQueue(c Context, d DeviceID, props QueueProperties, size uint32) (Queue, Status)
	RetainQueue(q Queue) Status
	ReleaseQueue(q Queue) Status
	Flush(q Queue) Status
	Finish(q Queue) Status

	CreateBuffer(c Context, flags MemFlags, size int, host []byte) (Mem, Status)
	CreateImage(c Context, flags MemFlags, format ImageFormat, desc ImageDesc, host []byte) (Mem, Status)
	CreateFromGLTexture(c Context, flags MemFlags, target uint32, mipLevel int32, texture uint32) (Mem, Status)
	MemSize(m Mem) (int, Status)
	RetainMem(m Mem) Status
	ReleaseMem(m Mem) Status

	CreateProgramWithSource(c Context, source string) (Program, Status)
	BuildProgram(p Program, devices []DeviceID, options string) Status
	ProgramBuildLog(p Program, d DeviceID) (string, Status)
	RetainProgram(p Program) Status
	ReleaseProgram(p Program) Status

	CreateKernel(p Program, name string) (Kernel, Status)
	KernelNumArgs(k Kernel) (uint32, Status)
	SetKernelArg(k Kernel, index uint32, size int, value []byte) Status
	KernelWorkGroupInfo(k Kernel, d DeviceID, param WorkGroupInfo) (uint64, Status)
	RetainKernel(k Kernel) Status
	ReleaseKernel(k Kernel) Status

	EnqueueReadBuffer(q Queue, m Mem, blocking bool, offset int, dst []byte, ev EventArgs) (Event, Status)
	EnqueueWriteBuffer(q Queue, m Mem, blocking bool, offset int, src []byte, ev EventArgs) (Event, Status)
	EnqueueWriteBufferRect(q Queue, m Mem, blocking bool, bufferOrigin, hostOrigin, region [3]int,
		bufferRowPitch, bufferSlicePitch, hostRowPitch, hostSlicePitch int, src []byte, ev EventArgs) (Event, Status)
	EnqueueCopyBuffer(q Queue, src, dst Mem, srcOffset, dstOffset, size int, ev EventArgs) (Event, Status)
	EnqueueFillBuffer(q Queue, m Mem, pattern []byte, offset, size int, ev EventArgs) (Event, Status)
	EnqueueReadImage(q Queue, m Mem, blocking bool, origin, region [3]int, rowPitch, slicePitch int, dst []byte, ev EventArgs) (Event, Status)
	EnqueueWriteImage(q Queue, m Mem, blocking bool, origin, region [3]int, rowPitch, slicePitch int, src []byte, ev EventArgs) (Event, Status)
	EnqueueCopyBufferToImage(q Queue, src, dst Mem, srcOffset int, dstOrigin, region [3]int, ev EventArgs) (Event, Status)
	EnqueueMapBuffer(q Queue, m Mem, blocking bool, flags MapFlags, offset, size int, ev EventArgs) ([]byte, Event, Status)
	EnqueueMapImage(q Queue, m Mem, blocking bool, flags MapFlags, origin, region [3]int, ev EventArgs) (MappedImage, Event, Status)
	EnqueueUnmapMemObject(q Queue, m Mem, mapped []byte, ev EventArgs) (Event, Status)
	EnqueueNDRangeKernel(q Queue, k Kernel, offset, global, local []int, ev EventArgs) (Event, Status)
	EnqueueBarrier(q Queue, ev EventArgs) (Event, Status)
	EnqueueMarker(q Queue, ev EventArgs) (Event, Status)
	EnqueueAcquireGLObjects(q Queue, mems []Mem, ev EventArgs) (Event, Status)
	EnqueueReleaseGLObjects(q Queue, mems []Mem, ev EventArgs) (Event, Status)

	CreateUserEvent(c Context) (Event, Status)
	SetUserEventStatus(e Event, status ExecStatus) Status
	EventStatus(e Event) (ExecStatus, Status)
	EventReferenceCount(e Event) (uint32, Status)
	EventProfilingInfo(e Event, param ProfilingInfo) (uint64, Status)
	WaitForEvents(events []Event) Status
	RetainEvent(e Event) Status
	ReleaseEvent(e Event) Status
}
