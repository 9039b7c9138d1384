package host

import (
	"github.com/cwbudde/clhost/internal/driver"
)

func (d *Driver) bufferFor(hq driver.Queue, hm driver.Mem) (*queue, *memObject, driver.Status) {
	q, st := d.queue(hq)
	if !st.OK() {
		return nil, nil, st
	}
	m, st := d.mem(q, hm)
	if !st.OK() {
		return nil, nil, st
	}
	if m.image != nil {
		return nil, nil, driver.InvalidMemObject
	}
	return q, m, driver.Success
}

func (d *Driver) imageFor(hq driver.Queue, hm driver.Mem) (*queue, *memObject, driver.Status) {
	q, st := d.queue(hq)
	if !st.OK() {
		return nil, nil, st
	}
	m, st := d.mem(q, hm)
	if !st.OK() {
		return nil, nil, st
	}
	if m.image == nil {
		return nil, nil, driver.InvalidMemObject
	}
	return q, m, driver.Success
}

func (d *Driver) EnqueueReadBuffer(hq driver.Queue, hm driver.Mem, blocking bool, offset int, dst []byte, args driver.EventArgs) (driver.Event, driver.Status) {
	q, m, st := d.bufferFor(hq, hm)
	if !st.OK() {
		return 0, st
	}
	if len(dst) == 0 || !inRange(offset, len(dst), m.size()) {
		return 0, driver.InvalidValue
	}
	if !hostCanRead(m.flags) {
		return 0, driver.InvalidOperation
	}
	return d.enqueue(q, args, blocking, command{run: func() driver.Status {
		copy(dst, m.data[offset:offset+len(dst)])
		return driver.Success
	}})
}

func (d *Driver) EnqueueWriteBuffer(hq driver.Queue, hm driver.Mem, blocking bool, offset int, src []byte, args driver.EventArgs) (driver.Event, driver.Status) {
	q, m, st := d.bufferFor(hq, hm)
	if !st.OK() {
		return 0, st
	}
	if len(src) == 0 || !inRange(offset, len(src), m.size()) {
		return 0, driver.InvalidValue
	}
	if !hostCanWrite(m.flags) {
		return 0, driver.InvalidOperation
	}
	return d.enqueue(q, args, blocking, command{run: func() driver.Status {
		copy(m.data[offset:], src)
		return driver.Success
	}})
}

// rectSpan returns the byte offset of origin and the extent touched by a
// region with the given pitches.
func rectSpan(origin, region [3]int, rowPitch, slicePitch int) (int, int) {
	start := origin[2]*slicePitch + origin[1]*rowPitch + origin[0]
	extent := (region[2]-1)*slicePitch + (region[1]-1)*rowPitch + region[0]
	return start, extent
}

func (d *Driver) EnqueueWriteBufferRect(hq driver.Queue, hm driver.Mem, blocking bool, bufferOrigin, hostOrigin, region [3]int,
	bufferRowPitch, bufferSlicePitch, hostRowPitch, hostSlicePitch int, src []byte, args driver.EventArgs) (driver.Event, driver.Status) {
	q, m, st := d.bufferFor(hq, hm)
	if !st.OK() {
		return 0, st
	}
	if region[0] <= 0 || region[1] <= 0 || region[2] <= 0 {
		return 0, driver.InvalidValue
	}
	if bufferRowPitch == 0 {
		bufferRowPitch = region[0]
	}
	if bufferSlicePitch == 0 {
		bufferSlicePitch = region[1] * bufferRowPitch
	}
	if hostRowPitch == 0 {
		hostRowPitch = region[0]
	}
	if hostSlicePitch == 0 {
		hostSlicePitch = region[1] * hostRowPitch
	}
	if bufferRowPitch < region[0] || hostRowPitch < region[0] ||
		bufferSlicePitch < region[1]*bufferRowPitch || hostSlicePitch < region[1]*hostRowPitch {
		return 0, driver.InvalidValue
	}
	bufStart, bufExtent := rectSpan(bufferOrigin, region, bufferRowPitch, bufferSlicePitch)
	hostStart, hostExtent := rectSpan(hostOrigin, region, hostRowPitch, hostSlicePitch)
	if !inRange(bufStart, bufExtent, m.size()) || !inRange(hostStart, hostExtent, len(src)) {
		return 0, driver.InvalidValue
	}
	if !hostCanWrite(m.flags) {
		return 0, driver.InvalidOperation
	}
	return d.enqueue(q, args, blocking, command{run: func() driver.Status {
		for z := 0; z < region[2]; z++ {
			for y := 0; y < region[1]; y++ {
				b := bufStart + z*bufferSlicePitch + y*bufferRowPitch
				h := hostStart + z*hostSlicePitch + y*hostRowPitch
				copy(m.data[b:b+region[0]], src[h:h+region[0]])
			}
		}
		return driver.Success
	}})
}

func (d *Driver) EnqueueCopyBuffer(hq driver.Queue, hsrc, hdst driver.Mem, srcOffset, dstOffset, size int, args driver.EventArgs) (driver.Event, driver.Status) {
	q, src, st := d.bufferFor(hq, hsrc)
	if !st.OK() {
		return 0, st
	}
	_, dst, st := d.bufferFor(hq, hdst)
	if !st.OK() {
		return 0, st
	}
	if size <= 0 || !inRange(srcOffset, size, src.size()) || !inRange(dstOffset, size, dst.size()) {
		return 0, driver.InvalidValue
	}
	if src == dst && srcOffset < dstOffset+size && dstOffset < srcOffset+size {
		return 0, driver.MemCopyOverlap
	}
	return d.enqueue(q, args, false, command{run: func() driver.Status {
		copy(dst.data[dstOffset:dstOffset+size], src.data[srcOffset:srcOffset+size])
		return driver.Success
	}})
}

func (d *Driver) EnqueueFillBuffer(hq driver.Queue, hm driver.Mem, pattern []byte, offset, size int, args driver.EventArgs) (driver.Event, driver.Status) {
	q, m, st := d.bufferFor(hq, hm)
	if !st.OK() {
		return 0, st
	}
	n := len(pattern)
	if n == 0 || n > 128 || n&(n-1) != 0 {
		return 0, driver.InvalidValue
	}
	if offset%n != 0 || size%n != 0 || size == 0 || !inRange(offset, size, m.size()) {
		return 0, driver.InvalidValue
	}
	pattern = append([]byte(nil), pattern...)
	return d.enqueue(q, args, false, command{run: func() driver.Status {
		region := m.data[offset : offset+size]
		for i := 0; i < size; i += n {
			copy(region[i:i+n], pattern)
		}
		return driver.Success
	}})
}

// imageRegion validates a 2D origin/region against an image and returns the
// row length in bytes.
func imageRegion(img *imageInfo, origin, region [3]int) (int, driver.Status) {
	if region[0] <= 0 || region[1] <= 0 || region[2] != 1 || origin[2] != 0 {
		return 0, driver.InvalidValue
	}
	if origin[0] < 0 || origin[1] < 0 || origin[0]+region[0] > img.width || origin[1]+region[1] > img.height {
		return 0, driver.InvalidValue
	}
	return region[0] * img.elem, driver.Success
}

func (d *Driver) EnqueueReadImage(hq driver.Queue, hm driver.Mem, blocking bool, origin, region [3]int, rowPitch, slicePitch int, dst []byte, args driver.EventArgs) (driver.Event, driver.Status) {
	q, m, st := d.imageFor(hq, hm)
	if !st.OK() {
		return 0, st
	}
	img := m.image
	rowBytes, st := imageRegion(img, origin, region)
	if !st.OK() {
		return 0, st
	}
	if rowPitch == 0 {
		rowPitch = rowBytes
	}
	if rowPitch < rowBytes || len(dst) < (region[1]-1)*rowPitch+rowBytes {
		return 0, driver.InvalidValue
	}
	if !hostCanRead(m.flags) {
		return 0, driver.InvalidOperation
	}
	return d.enqueue(q, args, blocking, command{run: func() driver.Status {
		for y := 0; y < region[1]; y++ {
			s := (origin[1]+y)*img.rowPitch + origin[0]*img.elem
			copy(dst[y*rowPitch:y*rowPitch+rowBytes], m.data[s:s+rowBytes])
		}
		return driver.Success
	}})
}

func (d *Driver) EnqueueWriteImage(hq driver.Queue, hm driver.Mem, blocking bool, origin, region [3]int, rowPitch, slicePitch int, src []byte, args driver.EventArgs) (driver.Event, driver.Status) {
	q, m, st := d.imageFor(hq, hm)
	if !st.OK() {
		return 0, st
	}
	img := m.image
	rowBytes, st := imageRegion(img, origin, region)
	if !st.OK() {
		return 0, st
	}
	if rowPitch == 0 {
		rowPitch = rowBytes
	}
	if rowPitch < rowBytes || len(src) < (region[1]-1)*rowPitch+rowBytes {
		return 0, driver.InvalidValue
	}
	if !hostCanWrite(m.flags) {
		return 0, driver.InvalidOperation
	}
	return d.enqueue(q, args, blocking, command{run: func() driver.Status {
		for y := 0; y < region[1]; y++ {
			s := (origin[1]+y)*img.rowPitch + origin[0]*img.elem
			copy(m.data[s:s+rowBytes], src[y*rowPitch:y*rowPitch+rowBytes])
		}
		return driver.Success
	}})
}

func (d *Driver) EnqueueCopyBufferToImage(hq driver.Queue, hsrc, hdst driver.Mem, srcOffset int, dstOrigin, region [3]int, args driver.EventArgs) (driver.Event, driver.Status) {
	q, src, st := d.bufferFor(hq, hsrc)
	if !st.OK() {
		return 0, st
	}
	_, dst, st := d.imageFor(hq, hdst)
	if !st.OK() {
		return 0, st
	}
	img := dst.image
	rowBytes, st := imageRegion(img, dstOrigin, region)
	if !st.OK() {
		return 0, st
	}
	if !inRange(srcOffset, rowBytes*region[1], src.size()) {
		return 0, driver.InvalidValue
	}
	return d.enqueue(q, args, false, command{run: func() driver.Status {
		for y := 0; y < region[1]; y++ {
			s := srcOffset + y*rowBytes
			t := (dstOrigin[1]+y)*img.rowPitch + dstOrigin[0]*img.elem
			copy(dst.data[t:t+rowBytes], src.data[s:s+rowBytes])
		}
		return driver.Success
	}})
}

func validMapFlags(m *memObject, flags driver.MapFlags) driver.Status {
	if flags&^(driver.MapRead|driver.MapWrite|driver.MapWriteInvalidateRegion) != 0 {
		return driver.InvalidValue
	}
	if flags&driver.MapWriteInvalidateRegion != 0 && flags&(driver.MapRead|driver.MapWrite) != 0 {
		return driver.InvalidValue
	}
	if flags&driver.MapRead != 0 && !hostCanRead(m.flags) {
		return driver.InvalidOperation
	}
	if flags.Writes() && !hostCanWrite(m.flags) {
		return driver.InvalidOperation
	}
	return driver.Success
}

// Mapped regions alias the backing store directly, so mapping and unmapping
// only order the host view against other commands.
func (d *Driver) EnqueueMapBuffer(hq driver.Queue, hm driver.Mem, blocking bool, flags driver.MapFlags, offset, size int, args driver.EventArgs) ([]byte, driver.Event, driver.Status) {
	q, m, st := d.bufferFor(hq, hm)
	if !st.OK() {
		return nil, 0, st
	}
	if st := validMapFlags(m, flags); !st.OK() {
		return nil, 0, st
	}
	if size <= 0 || !inRange(offset, size, m.size()) {
		return nil, 0, driver.InvalidValue
	}
	view := m.data[offset : offset+size : offset+size]
	ev, st := d.enqueue(q, args, blocking, command{})
	if !st.OK() {
		return nil, 0, st
	}
	d.addMapping(m, view)
	return view, ev, driver.Success
}

func (d *Driver) EnqueueMapImage(hq driver.Queue, hm driver.Mem, blocking bool, flags driver.MapFlags, origin, region [3]int, args driver.EventArgs) (driver.MappedImage, driver.Event, driver.Status) {
	q, m, st := d.imageFor(hq, hm)
	if !st.OK() {
		return driver.MappedImage{}, 0, st
	}
	if st := validMapFlags(m, flags); !st.OK() {
		return driver.MappedImage{}, 0, st
	}
	img := m.image
	rowBytes, st := imageRegion(img, origin, region)
	if !st.OK() {
		return driver.MappedImage{}, 0, st
	}
	start := origin[1]*img.rowPitch + origin[0]*img.elem
	end := start + (region[1]-1)*img.rowPitch + rowBytes
	view := m.data[start:end:end]
	ev, st := d.enqueue(q, args, blocking, command{})
	if !st.OK() {
		return driver.MappedImage{}, 0, st
	}
	d.addMapping(m, view)
	return driver.MappedImage{Data: view, RowPitch: img.rowPitch}, ev, driver.Success
}

func (d *Driver) EnqueueUnmapMemObject(hq driver.Queue, hm driver.Mem, mapped []byte, args driver.EventArgs) (driver.Event, driver.Status) {
	q, st := d.queue(hq)
	if !st.OK() {
		return 0, st
	}
	m, st := d.mem(q, hm)
	if !st.OK() {
		return 0, st
	}
	if !d.removeMapping(m, mapped) {
		return 0, driver.InvalidValue
	}
	return d.enqueue(q, args, false, command{})
}

func (d *Driver) glObjects(q *queue, mems []driver.Mem) ([]*memObject, driver.Status) {
	if len(mems) == 0 {
		return nil, driver.InvalidValue
	}
	objs := make([]*memObject, len(mems))
	for i, h := range mems {
		m, st := d.mem(q, h)
		if !st.OK() {
			return nil, st
		}
		if !m.interop {
			return nil, driver.InvalidGLObject
		}
		objs[i] = m
	}
	return objs, driver.Success
}

func (d *Driver) EnqueueAcquireGLObjects(hq driver.Queue, mems []driver.Mem, args driver.EventArgs) (driver.Event, driver.Status) {
	return d.setAcquired(hq, mems, true, args)
}

func (d *Driver) EnqueueReleaseGLObjects(hq driver.Queue, mems []driver.Mem, args driver.EventArgs) (driver.Event, driver.Status) {
	return d.setAcquired(hq, mems, false, args)
}

func (d *Driver) setAcquired(hq driver.Queue, mems []driver.Mem, acquired bool, args driver.EventArgs) (driver.Event, driver.Status) {
	q, st := d.queue(hq)
	if !st.OK() {
		return 0, st
	}
	objs, st := d.glObjects(q, mems)
	if !st.OK() {
		return 0, st
	}
	d.mu.Lock()
	for _, m := range objs {
		if m.acquired == acquired {
			d.mu.Unlock()
			return 0, driver.InvalidOperation
		}
	}
	for _, m := range objs {
		m.acquired = acquired
	}
	d.mu.Unlock()
	return d.enqueue(q, args, false, command{})
}
