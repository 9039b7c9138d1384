package cl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cwbudde/clhost/internal/driver"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		code driver.Status
		kind Kind
	}{
		{driver.MemObjectAllocationFailure, ErrAllocationFailure},
		{driver.OutOfResources, ErrResourceExhausted},
		{driver.OutOfHostMemory, ErrHostMemoryExhausted},
		{driver.ProfilingInfoNotAvailable, ErrProfilingUnavailable},
		{driver.MemCopyOverlap, ErrMemCopyOverlap},
		{driver.BuildProgramFailure, ErrBuildFailure},
		{driver.MapFailure, ErrMapFailure},
		{driver.InvalidValue, ErrInvalidArgument},
		{driver.InvalidArgIndex, ErrInvalidArgIndex},
		{driver.InvalidArgSize, ErrInvalidArgSize},
		{driver.InvalidWorkGroupSize, ErrInvalidWorkSize},
		{driver.InvalidWorkDimension, ErrInvalidWorkSize},
		{driver.InvalidContext, ErrInvalidContext},
		{driver.InvalidCommandQueue, ErrInvalidQueue},
		{driver.InvalidMemObject, ErrInvalidMemObject},
		{driver.InvalidKernel, ErrInvalidKernel},
		{driver.InvalidKernelName, ErrKernelNotFound},
		{driver.InvalidEvent, ErrInvalidEvent},
		{driver.InvalidOperation, ErrInvalidOperation},
		{driver.ExecStatusErrorForEventsInWaitList, ErrDependencyFailed},
		{driver.DeviceNotAvailable, ErrDeviceUnavailable},
		{driver.Status(-9999), ErrUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, KindOf(tt.code), "KindOf(%s)", tt.code)
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, check("op", driver.Success))

	err := check("write buffer", driver.InvalidArgSize)
	assert.ErrorIs(t, err, ErrInvalidArgSize)
	assert.Equal(t, "cl: write buffer: invalid argument size CL_INVALID_ARG_SIZE (-51)", err.Error())

	var clErr *Error
	if assert.True(t, errors.As(err, &clErr)) {
		assert.Equal(t, driver.InvalidArgSize, clErr.Code)
	}
}

func TestUnknownCodeIsPreserved(t *testing.T) {
	err := check("op", driver.Status(-9999))
	var clErr *Error
	if assert.True(t, errors.As(err, &clErr)) {
		assert.Equal(t, ErrUnknown, clErr.Kind)
		assert.Equal(t, driver.Status(-9999), clErr.Code)
	}
	assert.Contains(t, err.Error(), "-9999")
}

func TestErrorCarriesLog(t *testing.T) {
	err := &Error{Kind: ErrBuildFailure, Code: driver.BuildProgramFailure, Op: "build program k.cl", Log: "k.cl:1:1: error: boom"}
	assert.ErrorIs(t, err, ErrBuildFailure)
	assert.Contains(t, err.Error(), "k.cl:1:1: error: boom")
}
