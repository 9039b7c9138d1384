// Package cl is the host control layer for a compute accelerator: device
// discovery, contexts, command queues, memory objects, programs, kernels and
// completion events on top of a driver.Driver.
//
// Every wrapper owns exactly one reference to its driver handle. Release
// gives it back once; Retain adds a reference and returns another wrapper
// sharing the handle. Driver statuses surface as *Error values whose Kind
// can be matched with errors.Is.
package cl

import (
	"github.com/cwbudde/clhost/internal/driver"
)

// Platform is a driver and the devices it exposes.
type Platform struct {
	drv     driver.Driver
	info    driver.PlatformInfo
	devices []*Device
}

// Open enumerates the devices of drv. It fails with ErrDeviceUnavailable
// when the driver exposes none.
func Open(drv driver.Driver) (*Platform, error) {
	info, st := drv.Platform()
	if err := check("platform", st); err != nil {
		return nil, err
	}
	ids, st := drv.Devices(driver.DeviceTypeAll)
	if st == driver.DeviceNotFound || (st.OK() && len(ids) == 0) {
		return nil, fail("open", ErrDeviceUnavailable, "platform %q has no devices", info.Name)
	}
	if err := check("devices", st); err != nil {
		return nil, err
	}

	p := &Platform{drv: drv, info: info}
	for _, id := range ids {
		di, st := drv.DeviceInfo(id)
		if err := check("device info", st); err != nil {
			return nil, err
		}
		p.devices = append(p.devices, &Device{drv: drv, id: id, info: di})
	}
	Logger().Debug("platform opened", "platform", info.Name, "driver", drv.Name(), "devices", len(p.devices))
	return p, nil
}

func (p *Platform) Driver() driver.Driver     { return p.drv }
func (p *Platform) Info() driver.PlatformInfo { return p.info }

// Devices returns every device of the platform in driver order.
func (p *Platform) Devices() []*Device {
	return append([]*Device(nil), p.devices...)
}

// SelectDevice returns the first device matching t. DeviceTypeAll prefers
// a GPU, then a CPU, then whatever comes first.
func (p *Platform) SelectDevice(t DeviceType) (*Device, error) {
	if t == DeviceTypeAll {
		for _, want := range []DeviceType{DeviceTypeGPU, DeviceTypeCPU} {
			if d := p.first(want); d != nil {
				return d, nil
			}
		}
		if len(p.devices) > 0 {
			return p.devices[0], nil
		}
	} else if d := p.first(t); d != nil {
		return d, nil
	}
	return nil, fail("select device", ErrDeviceUnavailable, "no %s device on platform %q", t, p.info.Name)
}

func (p *Platform) first(t DeviceType) *Device {
	for _, d := range p.devices {
		if d.info.Type&t != 0 && d.info.Available {
			return d
		}
	}
	return nil
}

// CreateContext binds dev to a new execution context.
func (p *Platform) CreateContext(dev *Device) (*Context, error) {
	if dev == nil || dev.drv != p.drv {
		return nil, fail("create context", ErrDeviceUnavailable, "device does not belong to platform %q", p.info.Name)
	}
	if !dev.info.Available {
		return nil, fail("create context", ErrDeviceUnavailable, "device %q is not available", dev.info.Name)
	}
	h, st := p.drv.CreateContext([]driver.DeviceID{dev.id})
	if err := check("create context", st); err != nil {
		return nil, err
	}
	Logger().Debug("context created", "device", dev.info.Name)
	return &Context{drv: p.drv, handle: h, device: dev}, nil
}
