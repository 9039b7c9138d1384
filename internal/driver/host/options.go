package host

import (
	"log/slog"

	"github.com/cwbudde/clhost/internal/driver"
)

// Option configures a host device.
type Option func(*config)

type config struct {
	info              driver.DeviceInfo
	maxQueues         int
	nonUniform        bool
	preferredMultiple uint64
	privateMemSize    uint64
	lib               *Library
	logger            *slog.Logger
}

// WithLibrary installs the Go implementations of kernels the device can build.
func WithLibrary(lib *Library) Option {
	return func(c *config) { c.lib = lib }
}

// WithLogger routes driver diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithGlobalMemSize caps the total bytes of live memory objects.
func WithGlobalMemSize(n uint64) Option {
	return func(c *config) {
		c.info.GlobalMemSize = n
		if c.info.MaxMemAllocSize > n {
			c.info.MaxMemAllocSize = n
		}
	}
}

// WithMaxMemAllocSize caps the size of a single memory object.
func WithMaxMemAllocSize(n uint64) Option {
	return func(c *config) { c.info.MaxMemAllocSize = n }
}

// WithMaxWorkGroupSize sets the largest number of work-items in a work-group.
func WithMaxWorkGroupSize(n uint64) Option {
	return func(c *config) { c.info.MaxWorkGroupSize = n }
}

// WithPreferredWorkGroupMultiple sets the preferred work-group size multiple reported for kernels.
func WithPreferredWorkGroupMultiple(n uint64) Option {
	return func(c *config) { c.preferredMultiple = n }
}

// WithMaxQueues limits how many command queues may be alive at once.
func WithMaxQueues(n int) Option {
	return func(c *config) { c.maxQueues = n }
}

// WithDeviceEnqueue enables on-device queues and nested enqueue from kernels.
func WithDeviceEnqueue(enabled bool) Option {
	return func(c *config) { c.info.DeviceEnqueue = enabled }
}

// WithDeviceType sets the reported device category.
func WithDeviceType(t driver.DeviceType) Option {
	return func(c *config) { c.info.Type = t }
}

// WithVersion sets the reported OpenCL version string, e.g. "OpenCL 1.2".
func WithVersion(version string) Option {
	return func(c *config) { c.info.Version = version }
}

// WithName sets the reported device name.
func WithName(name string) Option {
	return func(c *config) { c.info.Name = name }
}

// WithNonUniformWorkGroups allows global sizes that are not multiples of the local size.
func WithNonUniformWorkGroups(enabled bool) Option {
	return func(c *config) { c.nonUniform = enabled }
}

// WithProfiling controls whether queues may enable profiling.
func WithProfiling(enabled bool) Option {
	return func(c *config) {
		if enabled {
			c.info.QueueProperties |= driver.QueueProfiling
		} else {
			c.info.QueueProperties &^= driver.QueueProfiling
		}
	}
}
