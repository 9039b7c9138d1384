package cl

import "github.com/cwbudde/clhost/internal/driver"

// Aliases of the driver value types callers pass through this package.
type (
	DeviceType  = driver.DeviceType
	MemFlags    = driver.MemFlags
	MapFlags    = driver.MapFlags
	ExecStatus  = driver.ExecStatus
	ImageFormat = driver.ImageFormat
)

const (
	DeviceTypeDefault     = driver.DeviceTypeDefault
	DeviceTypeCPU         = driver.DeviceTypeCPU
	DeviceTypeGPU         = driver.DeviceTypeGPU
	DeviceTypeAccelerator = driver.DeviceTypeAccelerator
	DeviceTypeAll         = driver.DeviceTypeAll
)

const (
	MemReadWrite     = driver.MemReadWrite
	MemWriteOnly     = driver.MemWriteOnly
	MemReadOnly      = driver.MemReadOnly
	MemUseHostPtr    = driver.MemUseHostPtr
	MemAllocHostPtr  = driver.MemAllocHostPtr
	MemCopyHostPtr   = driver.MemCopyHostPtr
	MemHostWriteOnly = driver.MemHostWriteOnly
	MemHostReadOnly  = driver.MemHostReadOnly
	MemHostNoAccess  = driver.MemHostNoAccess
)

const (
	MapRead                  = driver.MapRead
	MapWrite                 = driver.MapWrite
	MapWriteInvalidateRegion = driver.MapWriteInvalidateRegion
)

const (
	StatusComplete  = driver.Complete
	StatusRunning   = driver.Running
	StatusSubmitted = driver.Submitted
	StatusQueued    = driver.Queued
)
