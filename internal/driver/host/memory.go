package host

import (
	"unsafe"

	"github.com/cwbudde/clhost/internal/driver"
)

type imageInfo struct {
	format   driver.ImageFormat
	width    int
	height   int
	rowPitch int
	elem     int
}

// texture is a registered graphics texture that interop memory objects alias.
type texture struct {
	format driver.ImageFormat
	width  int
	height int
	data   []byte
}

type memObject struct {
	refs
	id    driver.Mem
	ctx   *hostContext
	flags driver.MemFlags
	data  []byte
	image *imageInfo

	// Guarded by Driver.mu.
	interop  bool
	acquired bool
	maps     map[*byte]int
}

func (m *memObject) size() int { return len(m.data) }

func validAccessFlags(flags driver.MemFlags) bool {
	access := flags & (driver.MemReadWrite | driver.MemWriteOnly | driver.MemReadOnly)
	if access&(access-1) != 0 {
		return false
	}
	host := flags & (driver.MemHostWriteOnly | driver.MemHostReadOnly | driver.MemHostNoAccess)
	if host&(host-1) != 0 {
		return false
	}
	if flags&driver.MemUseHostPtr != 0 && flags&(driver.MemAllocHostPtr|driver.MemCopyHostPtr) != 0 {
		return false
	}
	return true
}

func (d *Driver) allocate(c driver.Context, flags driver.MemFlags, size int, host []byte) (*memObject, driver.Status) {
	ctx, st := d.context(c)
	if !st.OK() {
		return nil, st
	}
	if !validAccessFlags(flags) {
		return nil, driver.InvalidValue
	}
	hasHost := host != nil
	wantsHost := flags&driver.HostPtrFlags != 0
	if hasHost != wantsHost {
		return nil, driver.InvalidHostPtr
	}
	if hasHost && len(host) < size {
		return nil, driver.InvalidHostPtr
	}

	d.mu.Lock()
	if d.allocated+uint64(size) > d.cfg.info.GlobalMemSize {
		d.mu.Unlock()
		return nil, driver.MemObjectAllocationFailure
	}
	d.allocated += uint64(size)
	d.mu.Unlock()

	m := &memObject{refs: refs{1}, ctx: ctx, flags: flags}
	switch {
	case flags&driver.MemUseHostPtr != 0:
		m.data = host[:size:size]
	case flags&driver.MemCopyHostPtr != 0:
		m.data = make([]byte, size)
		copy(m.data, host)
	default:
		m.data = make([]byte, size)
	}
	return m, driver.Success
}

func (d *Driver) CreateBuffer(c driver.Context, flags driver.MemFlags, size int, host []byte) (driver.Mem, driver.Status) {
	if size <= 0 || uint64(size) > d.cfg.info.MaxMemAllocSize {
		return 0, driver.InvalidBufferSize
	}
	m, st := d.allocate(c, flags, size, host)
	if !st.OK() {
		return 0, st
	}
	m.id = driver.Mem(d.register(m))
	d.logger.Debug("buffer created", "mem", m.id, "size", size, "flags", uint64(flags))
	return m.id, driver.Success
}

func (d *Driver) CreateImage(c driver.Context, flags driver.MemFlags, format driver.ImageFormat, desc driver.ImageDesc, host []byte) (driver.Mem, driver.Status) {
	if !d.cfg.info.ImageSupport {
		return 0, driver.InvalidOperation
	}
	if desc.Type != driver.MemObjectImage2D {
		return 0, driver.InvalidImageFormatDescriptor
	}
	elem := format.ElementSize()
	if elem == 0 {
		return 0, driver.ImageFormatNotSupported
	}
	maxDim := int(d.cfg.info.MaxWorkItemSizes[0]) * 16
	if desc.Width <= 0 || desc.Height <= 0 || desc.Width > maxDim || desc.Height > maxDim {
		return 0, driver.InvalidImageSize
	}
	rowPitch := desc.Width * elem
	if desc.RowPitch != 0 {
		if host == nil || desc.RowPitch < rowPitch || desc.RowPitch%elem != 0 {
			return 0, driver.InvalidImageFormatDescriptor
		}
	}
	size := rowPitch * desc.Height
	if uint64(size) > d.cfg.info.MaxMemAllocSize {
		return 0, driver.InvalidImageSize
	}

	// Host rows with a wider pitch are packed on creation. Such images cannot
	// alias the host region.
	if desc.RowPitch > rowPitch {
		if flags&driver.MemUseHostPtr != 0 {
			return 0, driver.InvalidImageFormatDescriptor
		}
		if len(host) < (desc.Height-1)*desc.RowPitch+rowPitch {
			return 0, driver.InvalidHostPtr
		}
		packed := make([]byte, size)
		for y := 0; y < desc.Height; y++ {
			copy(packed[y*rowPitch:(y+1)*rowPitch], host[y*desc.RowPitch:])
		}
		host = packed
	}

	m, st := d.allocate(c, flags, size, host)
	if !st.OK() {
		return 0, st
	}
	m.image = &imageInfo{format: format, width: desc.Width, height: desc.Height, rowPitch: rowPitch, elem: elem}
	m.id = driver.Mem(d.register(m))
	d.logger.Debug("image created", "mem", m.id, "width", desc.Width, "height", desc.Height)
	return m.id, driver.Success
}

// RegisterTexture publishes a texture that CreateFromGLTexture can share.
// The data slice is aliased, not copied.
func (d *Driver) RegisterTexture(name uint32, format driver.ImageFormat, width, height int, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.textures[name] = &texture{format: format, width: width, height: height, data: data}
}

func (d *Driver) CreateFromGLTexture(c driver.Context, flags driver.MemFlags, target uint32, mipLevel int32, name uint32) (driver.Mem, driver.Status) {
	ctx, st := d.context(c)
	if !st.OK() {
		return 0, st
	}
	if flags&^(driver.MemReadWrite|driver.MemWriteOnly|driver.MemReadOnly) != 0 || !validAccessFlags(flags) {
		return 0, driver.InvalidValue
	}
	if target != driver.GLTexture2D && target != driver.GLTextureBuffer {
		return 0, driver.InvalidValue
	}
	if mipLevel != 0 {
		return 0, driver.InvalidMipLevel
	}
	d.mu.Lock()
	tex, ok := d.textures[name]
	d.mu.Unlock()
	if !ok {
		return 0, driver.InvalidGLObject
	}

	m := &memObject{refs: refs{1}, ctx: ctx, flags: flags, data: tex.data, interop: true}
	if target == driver.GLTexture2D {
		elem := tex.format.ElementSize()
		m.image = &imageInfo{format: tex.format, width: tex.width, height: tex.height, rowPitch: tex.width * elem, elem: elem}
	}
	m.id = driver.Mem(d.register(m))
	return m.id, driver.Success
}

func (d *Driver) MemSize(h driver.Mem) (int, driver.Status) {
	m, ok := lookup[*memObject](d, uintptr(h))
	if !ok {
		return 0, driver.InvalidMemObject
	}
	return m.size(), driver.Success
}

func (d *Driver) RetainMem(m driver.Mem) driver.Status {
	return retain[*memObject](d, uintptr(m), driver.InvalidMemObject)
}

func (d *Driver) ReleaseMem(h driver.Mem) driver.Status {
	m, freed, st := release[*memObject](d, uintptr(h), driver.InvalidMemObject)
	if freed && !m.interop {
		d.mu.Lock()
		d.allocated -= uint64(m.size())
		d.mu.Unlock()
		d.logger.Debug("memory released", "mem", h, "size", m.size())
	}
	return st
}

func (d *Driver) mem(q *queue, h driver.Mem) (*memObject, driver.Status) {
	m, ok := lookup[*memObject](d, uintptr(h))
	if !ok {
		return nil, driver.InvalidMemObject
	}
	if m.ctx != q.ctx {
		return nil, driver.InvalidContext
	}
	return m, driver.Success
}

func (d *Driver) addMapping(m *memObject, view []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m.maps == nil {
		m.maps = make(map[*byte]int)
	}
	m.maps[unsafe.SliceData(view)]++
}

func (d *Driver) removeMapping(m *memObject, view []byte) bool {
	if len(view) == 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := unsafe.SliceData(view)
	n := m.maps[key]
	if n == 0 {
		return false
	}
	if n == 1 {
		delete(m.maps, key)
	} else {
		m.maps[key] = n - 1
	}
	return true
}

func inRange(offset, n, size int) bool {
	return offset >= 0 && n >= 0 && offset <= size && n <= size-offset
}

func hostCanRead(flags driver.MemFlags) bool {
	return flags&(driver.MemHostWriteOnly|driver.MemHostNoAccess) == 0
}

func hostCanWrite(flags driver.MemFlags) bool {
	return flags&(driver.MemHostReadOnly|driver.MemHostNoAccess) == 0
}
