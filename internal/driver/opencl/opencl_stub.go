//go:build !gpu

package opencl

import "github.com/cwbudde/clhost/internal/driver"

// New is unavailable without the gpu build tag.
func New(platformIndex int) (driver.Driver, error) {
	return nil, ErrNotBuilt
}

// Platforms is unavailable without the gpu build tag.
func Platforms() ([]driver.PlatformInfo, error) {
	return nil, ErrNotBuilt
}
