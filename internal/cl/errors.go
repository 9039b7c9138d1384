package cl

import (
	"fmt"

	"github.com/cwbudde/clhost/internal/driver"
)

// Kind classifies a failure. Every Kind is an error, so callers match with
// errors.Is(err, cl.ErrInvalidArgSize).
type Kind int

const (
	ErrUnknown Kind = iota
	ErrAllocationFailure
	ErrResourceExhausted
	ErrHostMemoryExhausted
	ErrProfilingUnavailable
	ErrMemCopyOverlap
	ErrBuildFailure
	ErrMapFailure
	ErrInvalidArgument
	ErrInvalidArgIndex
	ErrInvalidArgSize
	ErrInvalidWorkSize
	ErrInvalidContext
	ErrInvalidQueue
	ErrInvalidMemObject
	ErrInvalidKernel
	ErrInvalidEvent
	ErrInvalidOperation
	ErrDependencyFailed
	ErrUnsupportedFeature
	ErrDeviceUnavailable
	ErrKernelNotFound
)

var kindNames = [...]string{
	ErrUnknown:              "unknown error",
	ErrAllocationFailure:    "allocation failure",
	ErrResourceExhausted:    "resources exhausted",
	ErrHostMemoryExhausted:  "host memory exhausted",
	ErrProfilingUnavailable: "profiling unavailable",
	ErrMemCopyOverlap:       "overlapping copy",
	ErrBuildFailure:         "build failure",
	ErrMapFailure:           "map failure",
	ErrInvalidArgument:      "invalid argument",
	ErrInvalidArgIndex:      "invalid argument index",
	ErrInvalidArgSize:       "invalid argument size",
	ErrInvalidWorkSize:      "invalid work size",
	ErrInvalidContext:       "invalid context",
	ErrInvalidQueue:         "invalid queue",
	ErrInvalidMemObject:     "invalid memory object",
	ErrInvalidKernel:        "invalid kernel",
	ErrInvalidEvent:         "invalid event",
	ErrInvalidOperation:     "invalid operation",
	ErrDependencyFailed:     "dependency failed",
	ErrUnsupportedFeature:   "unsupported feature",
	ErrDeviceUnavailable:    "device unavailable",
	ErrKernelNotFound:       "kernel not found",
}

func (k Kind) Error() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("cl error kind %d", int(k))
	}
	return kindNames[k]
}

// Error is a failed operation. Code is the driver status when the failure
// came from the driver, and zero when the layer rejected the call itself.
// Log holds the compiler output of a failed build.
type Error struct {
	Kind Kind
	Code driver.Status
	Op   string
	Msg  string
	Log  string
}

func (e *Error) Error() string {
	s := "cl: " + e.Op + ": " + e.Kind.Error()
	if e.Code != driver.Success {
		s += fmt.Sprintf(" %s (%d)", e.Code, int32(e.Code))
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Log != "" {
		s += "\n" + e.Log
	}
	return s
}

func (e *Error) Unwrap() error { return e.Kind }

// KindOf classifies a driver status.
func KindOf(code driver.Status) Kind {
	switch code {
	case driver.MemObjectAllocationFailure:
		return ErrAllocationFailure
	case driver.OutOfResources:
		return ErrResourceExhausted
	case driver.OutOfHostMemory:
		return ErrHostMemoryExhausted
	case driver.ProfilingInfoNotAvailable:
		return ErrProfilingUnavailable
	case driver.MemCopyOverlap:
		return ErrMemCopyOverlap
	case driver.BuildProgramFailure:
		return ErrBuildFailure
	case driver.MapFailure:
		return ErrMapFailure
	case driver.ExecStatusErrorForEventsInWaitList:
		return ErrDependencyFailed
	case driver.DeviceNotFound, driver.DeviceNotAvailable, driver.CompilerNotAvailable,
		driver.InvalidDevice, driver.InvalidDeviceType, driver.InvalidPlatform:
		return ErrDeviceUnavailable
	case driver.InvalidValue, driver.InvalidHostPtr, driver.InvalidImageSize,
		driver.InvalidImageFormatDescriptor, driver.ImageFormatMismatch, driver.InvalidBuildOptions,
		driver.InvalidArgValue, driver.InvalidKernelArgs, driver.InvalidBufferSize, driver.InvalidMipLevel:
		return ErrInvalidArgument
	case driver.ImageFormatNotSupported, driver.InvalidQueueProperties:
		return ErrUnsupportedFeature
	case driver.InvalidContext:
		return ErrInvalidContext
	case driver.InvalidCommandQueue:
		return ErrInvalidQueue
	case driver.InvalidMemObject, driver.InvalidGLObject:
		return ErrInvalidMemObject
	case driver.InvalidKernelName:
		return ErrKernelNotFound
	case driver.InvalidKernel, driver.InvalidKernelDefinition:
		return ErrInvalidKernel
	case driver.InvalidProgram, driver.InvalidProgramExecutable, driver.InvalidOperation:
		return ErrInvalidOperation
	case driver.InvalidArgIndex:
		return ErrInvalidArgIndex
	case driver.InvalidArgSize:
		return ErrInvalidArgSize
	case driver.InvalidWorkDimension, driver.InvalidWorkGroupSize, driver.InvalidWorkItemSize,
		driver.InvalidGlobalOffset, driver.InvalidGlobalWorkSize:
		return ErrInvalidWorkSize
	case driver.InvalidEvent, driver.InvalidEventWaitList:
		return ErrInvalidEvent
	}
	return ErrUnknown
}

// check converts a driver status into an error, nil on success.
func check(op string, code driver.Status) error {
	if code == driver.Success {
		return nil
	}
	return &Error{Kind: KindOf(code), Code: code, Op: op}
}

// fail reports a failure detected before reaching the driver.
func fail(op string, kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}
