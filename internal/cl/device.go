package cl

import (
	"slices"
	"strconv"
	"strings"

	"github.com/cwbudde/clhost/internal/driver"
)

// Device is a compute device and the capability record queried when it was
// discovered. It is never released.
type Device struct {
	drv  driver.Driver
	id   driver.DeviceID
	info driver.DeviceInfo
}

func (d *Device) ID() driver.DeviceID { return d.id }

// Info returns a snapshot of the capability record.
func (d *Device) Info() driver.DeviceInfo {
	info := d.info
	info.MaxWorkItemSizes = slices.Clone(d.info.MaxWorkItemSizes)
	return info
}

func (d *Device) Name() string          { return d.info.Name }
func (d *Device) Type() DeviceType      { return d.info.Type }
func (d *Device) SupportsEnqueue() bool { return d.info.DeviceEnqueue }

func (d *Device) SupportsProfiling() bool {
	return d.info.QueueProperties&driver.QueueProfiling != 0
}

func (d *Device) SupportsOutOfOrder() bool {
	return d.info.QueueProperties&driver.QueueOutOfOrder != 0
}

// HasExtension reports whether the device lists the named extension.
func (d *Device) HasExtension(name string) bool {
	return slices.Contains(strings.Fields(d.info.Extensions), name)
}

// Version parses the "OpenCL <major>.<minor> <vendor>" version string.
// Unparseable strings report 1.2.
func (d *Device) Version() (major, minor int) {
	return parseVersion(d.info.Version)
}

func parseVersion(s string) (major, minor int) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return 1, 2
	}
	hi, lo, ok := strings.Cut(fields[1], ".")
	if !ok {
		return 1, 2
	}
	a, err1 := strconv.Atoi(hi)
	b, err2 := strconv.Atoi(lo)
	if err1 != nil || err2 != nil {
		return 1, 2
	}
	return a, b
}
