// Package backend selects and constructs compute drivers by name.
package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/clhost/internal/driver"
	"github.com/cwbudde/clhost/internal/driver/host"
	"github.com/cwbudde/clhost/internal/driver/opencl"
)

// Backend identifies a driver implementation.
type Backend string

const (
	BackendHost   Backend = "host"
	BackendOpenCL Backend = "opencl"
)

var (
	// ErrUnknownBackend is returned when the name does not match a known backend.
	ErrUnknownBackend = errors.New("unknown compute backend")
	// ErrBackendUnavailable indicates the backend is not available in this build.
	ErrBackendUnavailable = errors.New("compute backend unavailable")
)

// Config carries backend-specific settings.
type Config struct {
	// PlatformIndex selects the OpenCL platform.
	PlatformIndex int
	// HostOptions configure the host-emulated device.
	HostOptions []host.Option
}

// NormalizeBackend maps arbitrary user input to a canonical backend identifier.
func NormalizeBackend(name string) Backend {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "host", "cpu", "emulated":
		return BackendHost
	case "gpu", "opencl", "cl":
		return BackendOpenCL
	default:
		return Backend(name)
	}
}

// SupportedBackends returns the list of backends understood by the factory.
func SupportedBackends() []Backend {
	return []Backend{BackendHost, BackendOpenCL}
}

// Open constructs the requested driver.
func Open(name string, cfg Config) (driver.Driver, error) {
	switch b := NormalizeBackend(name); b {
	case BackendHost:
		return host.New(cfg.HostOptions...), nil
	case BackendOpenCL:
		drv, err := opencl.New(cfg.PlatformIndex)
		if err != nil {
			if errors.Is(err, opencl.ErrNotBuilt) {
				return nil, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, b, err)
			}
			return nil, err
		}
		return drv, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}
