package driver

import "strings"

// Opaque handles issued by a driver. The zero value is never a valid handle.
type (
	DeviceID uintptr
	Context  uintptr
	Queue    uintptr
	Mem      uintptr
	Program  uintptr
	Kernel   uintptr
	Event    uintptr
)

// DeviceType is a bit set of device categories.
type DeviceType uint64

const (
	DeviceTypeDefault     DeviceType = 1 << 0
	DeviceTypeCPU         DeviceType = 1 << 1
	DeviceTypeGPU         DeviceType = 1 << 2
	DeviceTypeAccelerator DeviceType = 1 << 3
	DeviceTypeAll         DeviceType = 0xFFFFFFFF
)

func (t DeviceType) String() string {
	if t == DeviceTypeAll {
		return "all"
	}
	var parts []string
	if t&DeviceTypeGPU != 0 {
		parts = append(parts, "gpu")
	}
	if t&DeviceTypeCPU != 0 {
		parts = append(parts, "cpu")
	}
	if t&DeviceTypeAccelerator != 0 {
		parts = append(parts, "accelerator")
	}
	if t&DeviceTypeDefault != 0 {
		parts = append(parts, "default")
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}

// MemFlags describe device access, host access and host pointer usage of a memory object.
type MemFlags uint64

const (
	MemReadWrite     MemFlags = 1 << 0
	MemWriteOnly     MemFlags = 1 << 1
	MemReadOnly      MemFlags = 1 << 2
	MemUseHostPtr    MemFlags = 1 << 3
	MemAllocHostPtr  MemFlags = 1 << 4
	MemCopyHostPtr   MemFlags = 1 << 5
	MemHostWriteOnly MemFlags = 1 << 7
	MemHostReadOnly  MemFlags = 1 << 8
	MemHostNoAccess  MemFlags = 1 << 9
)

// HostPtrFlags are the flags that require (and are required by) a host region.
const HostPtrFlags = MemUseHostPtr | MemCopyHostPtr

// MapFlags select the access requested when mapping a memory region.
type MapFlags uint64

const (
	MapRead                  MapFlags = 1 << 0
	MapWrite                 MapFlags = 1 << 1
	MapWriteInvalidateRegion MapFlags = 1 << 2
)

// Writes reports whether the mapping may modify the region.
func (f MapFlags) Writes() bool { return f&(MapWrite|MapWriteInvalidateRegion) != 0 }

// QueueProperties select queue behavior.
type QueueProperties uint64

const (
	QueueOutOfOrder      QueueProperties = 1 << 0
	QueueProfiling       QueueProperties = 1 << 1
	QueueOnDevice        QueueProperties = 1 << 2
	QueueOnDeviceDefault QueueProperties = 1 << 3
)

// DefaultDeviceQueueSize is the on-device queue size used when none is given.
const DefaultDeviceQueueSize = 262144

// ProfilingInfo selects one of the four command timestamps.
type ProfilingInfo uint32

const (
	ProfilingQueued ProfilingInfo = 0x1280
	ProfilingSubmit ProfilingInfo = 0x1281
	ProfilingStart  ProfilingInfo = 0x1282
	ProfilingEnd    ProfilingInfo = 0x1283
)

// WorkGroupInfo selects a per-device kernel work-group property.
type WorkGroupInfo uint32

const (
	KernelWorkGroupSize                  WorkGroupInfo = 0x11B0
	KernelCompileWorkGroupSize           WorkGroupInfo = 0x11B1
	KernelLocalMemSize                   WorkGroupInfo = 0x11B2
	KernelPreferredWorkGroupSizeMultiple WorkGroupInfo = 0x11B3
	KernelPrivateMemSize                 WorkGroupInfo = 0x11B4
)

// ChannelOrder and ChannelType form an image format.
type (
	ChannelOrder uint32
	ChannelType  uint32
)

const (
	ChannelR         ChannelOrder = 0x10B0
	ChannelA         ChannelOrder = 0x10B1
	ChannelRG        ChannelOrder = 0x10B2
	ChannelRA        ChannelOrder = 0x10B3
	ChannelRGB       ChannelOrder = 0x10B4
	ChannelRGBA      ChannelOrder = 0x10B5
	ChannelBGRA      ChannelOrder = 0x10B6
	ChannelARGB      ChannelOrder = 0x10B7
	ChannelIntensity ChannelOrder = 0x10B8
	ChannelLuminance ChannelOrder = 0x10B9
)

const (
	SNormInt8     ChannelType = 0x10D0
	SNormInt16    ChannelType = 0x10D1
	UNormInt8     ChannelType = 0x10D2
	UNormInt16    ChannelType = 0x10D3
	SignedInt8    ChannelType = 0x10D7
	SignedInt16   ChannelType = 0x10D8
	SignedInt32   ChannelType = 0x10D9
	UnsignedInt8  ChannelType = 0x10DA
	UnsignedInt16 ChannelType = 0x10DB
	UnsignedInt32 ChannelType = 0x10DC
	HalfFloat     ChannelType = 0x10DD
	Float         ChannelType = 0x10DE
)

// Channels returns the number of channels of the order, or 0 if unknown.
func (o ChannelOrder) Channels() int {
	switch o {
	case ChannelR, ChannelA, ChannelIntensity, ChannelLuminance:
		return 1
	case ChannelRG, ChannelRA:
		return 2
	case ChannelRGB:
		return 3
	case ChannelRGBA, ChannelBGRA, ChannelARGB:
		return 4
	}
	return 0
}

// Size returns the byte width of a single channel, or 0 if unknown.
func (t ChannelType) Size() int {
	switch t {
	case SNormInt8, UNormInt8, SignedInt8, UnsignedInt8:
		return 1
	case SNormInt16, UNormInt16, SignedInt16, UnsignedInt16, HalfFloat:
		return 2
	case SignedInt32, UnsignedInt32, Float:
		return 4
	}
	return 0
}

// ImageFormat is the channel order and data type of an image.
type ImageFormat struct {
	Order ChannelOrder
	Type  ChannelType
}

// ElementSize is the byte size of one pixel, or 0 for an unknown format.
func (f ImageFormat) ElementSize() int {
	return f.Order.Channels() * f.Type.Size()
}

// MemObjectType distinguishes buffers from image kinds.
type MemObjectType uint32

const (
	MemObjectBuffer  MemObjectType = 0x10F0
	MemObjectImage2D MemObjectType = 0x10F1
)

// ImageDesc describes the geometry of an image.
type ImageDesc struct {
	Type     MemObjectType
	Width    int
	Height   int
	RowPitch int
}

// GL texture targets accepted by the interop constructor.
const (
	GLTexture2D     uint32 = 0x0DE1
	GLTextureBuffer uint32 = 0x8C2A
)

// EventArgs carries the wait list of a command and whether the caller wants
// its completion event back.
type EventArgs struct {
	WaitList  []Event
	WantEvent bool
}

// MappedImage is a host view of a mapped image region.
type MappedImage struct {
	Data       []byte
	RowPitch   int
	SlicePitch int
}

// DeviceInfo is the static capability record of a device.
type DeviceInfo struct {
	Name                     string
	Vendor                   string
	Version                  string
	DriverVersion            string
	Extensions               string
	UUID                     string
	Type                     DeviceType
	MaxComputeUnits          uint32
	MaxWorkItemDimensions    uint32
	MaxWorkItemSizes         []uint64
	MaxWorkGroupSize         uint64
	MaxClockFrequency        uint32
	AddressBits              uint32
	MaxMemAllocSize          uint64
	GlobalMemSize            uint64
	LocalMemSize             uint64
	MaxConstantBufferSize    uint64
	ProfilingTimerResolution uint64
	QueueProperties          QueueProperties
	Available                bool
	CompilerAvailable        bool
	LittleEndian             bool
	ErrorCorrection          bool
	ImageSupport             bool
	DeviceEnqueue            bool
}

// PlatformInfo describes the platform a driver exposes.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
}
