package cl

import (
	"github.com/cwbudde/clhost/internal/driver"
)

// Queue is an ordered channel of commands to the context's device. Commands
// on an in-order queue complete in submission order; across queues, and on
// out-of-order queues, only wait-list edges order commands.
//
// Every enqueue method validates its arguments before reaching the driver.
// A rejected command is not enqueued; earlier commands are unaffected.
type Queue struct {
	ctx    *Context
	handle driver.Queue
	props  driver.QueueProperties
	guard
}

func (q *Queue) Context() *Context    { return q.ctx }
func (q *Queue) Handle() driver.Queue { return q.handle }
func (q *Queue) Profiling() bool      { return q.props&driver.QueueProfiling != 0 }
func (q *Queue) OutOfOrder() bool     { return q.props&driver.QueueOutOfOrder != 0 }
func (q *Queue) OnDevice() bool       { return q.props&driver.QueueOnDevice != 0 }

// EnqueueOption configures one enqueued command.
type EnqueueOption func(*enqueueConfig)

type enqueueConfig struct {
	waits      []*Event
	blocking   bool
	completion **Event
}

// WaitFor makes the command wait for events. It may be given more than once.
func WaitFor(events ...*Event) EnqueueOption {
	return func(c *enqueueConfig) { c.waits = append(c.waits, events...) }
}

// Blocking makes the enqueue call return only after the command completed.
// Failures of the command itself are then returned by the call.
func Blocking() EnqueueOption {
	return func(c *enqueueConfig) { c.blocking = true }
}

// Completion stores the command's completion event in *ev. The caller owns
// the event and must release it.
func Completion(ev **Event) EnqueueOption {
	return func(c *enqueueConfig) { c.completion = ev }
}

// NDRange is the index space of a kernel dispatch. Global has one to three
// dimensions; Offset and Local are optional and must match its length. A nil
// Local lets the driver choose the work-group size.
type NDRange struct {
	Offset []int
	Global []int
	Local  []int
}

// command is an enqueue in progress.
type command struct {
	q    *Queue
	op   string
	cfg  enqueueConfig
	args driver.EventArgs
}

func (q *Queue) begin(op string, opts []EnqueueOption) (*command, error) {
	if !q.live() {
		return nil, fail(op, ErrInvalidQueue, "queue released")
	}
	cmd := &command{q: q, op: op}
	for _, opt := range opts {
		opt(&cmd.cfg)
	}
	for i, ev := range cmd.cfg.waits {
		switch {
		case ev == nil:
			return nil, fail(op, ErrInvalidEvent, "wait list entry %d is nil", i)
		case !ev.live():
			return nil, fail(op, ErrInvalidEvent, "wait list entry %d was released", i)
		case !q.ctx.same(ev.ctx):
			return nil, fail(op, ErrInvalidContext, "wait list entry %d belongs to another context", i)
		}
		cmd.args.WaitList = append(cmd.args.WaitList, ev.handle)
	}
	cmd.args.WantEvent = cmd.cfg.completion != nil
	return cmd, nil
}

// done converts the driver result and hands out the completion event.
func (c *command) done(h driver.Event, st driver.Status) error {
	if err := check(c.op, st); err != nil {
		return err
	}
	if c.cfg.completion != nil {
		*c.cfg.completion = &Event{ctx: c.q.ctx, handle: h}
	}
	return nil
}

func (c *command) use(mems ...MemoryObject) error {
	for _, m := range mems {
		if m == nil || m.mem() == nil {
			return fail(c.op, ErrInvalidMemObject, "nil memory object")
		}
		if err := m.mem().usable(c.op, c.q.ctx); err != nil {
			return err
		}
	}
	return nil
}

func rangeError(op string, offset, n, size int) error {
	if offset < 0 || n <= 0 || offset+n > size {
		return fail(op, ErrInvalidArgument, "range [%d,%d) outside %d bytes", offset, offset+n, size)
	}
	return nil
}

// WriteBuffer copies src into b starting at byte offset. Unless Blocking is
// given, src must stay untouched until the command completes.
func (q *Queue) WriteBuffer(b *Buffer, offset int, src []byte, opts ...EnqueueOption) error {
	c, err := q.begin("write buffer", opts)
	if err != nil {
		return err
	}
	if err := c.use(b); err != nil {
		return err
	}
	if err := rangeError(c.op, offset, len(src), b.size); err != nil {
		return err
	}
	return c.done(q.ctx.drv.EnqueueWriteBuffer(q.handle, b.handle, c.cfg.blocking, offset, src, c.args))
}

// ReadBuffer copies len(dst) bytes of b starting at byte offset into dst.
// Unless Blocking is given, dst is filled when the command completes.
func (q *Queue) ReadBuffer(b *Buffer, offset int, dst []byte, opts ...EnqueueOption) error {
	c, err := q.begin("read buffer", opts)
	if err != nil {
		return err
	}
	if err := c.use(b); err != nil {
		return err
	}
	if err := rangeError(c.op, offset, len(dst), b.size); err != nil {
		return err
	}
	return c.done(q.ctx.drv.EnqueueReadBuffer(q.handle, b.handle, c.cfg.blocking, offset, dst, c.args))
}

// Rect describes a rectangular transfer between a buffer and host memory.
// Pitches of zero are derived from the region.
type Rect struct {
	BufferOrigin   [3]int
	HostOrigin     [3]int
	Region         [3]int
	BufferRowPitch int
	HostRowPitch   int
}

func rectExtent(origin, region [3]int, rowPitch int) int {
	slice := rowPitch * region[1]
	start := origin[2]*slice + origin[1]*rowPitch + origin[0]
	return start + (region[2]-1)*slice + (region[1]-1)*rowPitch + region[0]
}

// WriteBufferRect copies a 3D sub-region of src into b.
func (q *Queue) WriteBufferRect(b *Buffer, r Rect, src []byte, opts ...EnqueueOption) error {
	c, err := q.begin("write buffer rect", opts)
	if err != nil {
		return err
	}
	if err := c.use(b); err != nil {
		return err
	}
	for _, n := range r.Region {
		if n <= 0 {
			return fail(c.op, ErrInvalidArgument, "region %v", r.Region)
		}
	}
	bufRow, hostRow := r.BufferRowPitch, r.HostRowPitch
	if bufRow == 0 {
		bufRow = r.Region[0]
	}
	if hostRow == 0 {
		hostRow = r.Region[0]
	}
	if bufRow < r.Region[0] || hostRow < r.Region[0] {
		return fail(c.op, ErrInvalidArgument, "row pitch narrower than region %v", r.Region)
	}
	if end := rectExtent(r.BufferOrigin, r.Region, bufRow); end > b.size {
		return fail(c.op, ErrInvalidArgument, "region ends at byte %d of a %d byte buffer", end, b.size)
	}
	if end := rectExtent(r.HostOrigin, r.Region, hostRow); end > len(src) {
		return fail(c.op, ErrInvalidArgument, "region ends at byte %d of %d host bytes", end, len(src))
	}
	return c.done(q.ctx.drv.EnqueueWriteBufferRect(q.handle, b.handle, c.cfg.blocking,
		r.BufferOrigin, r.HostOrigin, r.Region,
		bufRow, bufRow*r.Region[1], hostRow, hostRow*r.Region[1], src, c.args))
}

// CopyBuffer copies all of src into dst. Both must have the same size.
func (q *Queue) CopyBuffer(src, dst *Buffer, opts ...EnqueueOption) error {
	if src != nil && dst != nil && src.size != dst.size {
		return fail("copy buffer", ErrInvalidArgument, "size mismatch: %d and %d bytes", src.size, dst.size)
	}
	size := 0
	if src != nil {
		size = src.size
	}
	return q.CopyBufferRange(src, dst, 0, 0, size, opts...)
}

// CopyBufferRange copies size bytes between buffers. Overlapping ranges of
// the same buffer fail with ErrMemCopyOverlap.
func (q *Queue) CopyBufferRange(src, dst *Buffer, srcOffset, dstOffset, size int, opts ...EnqueueOption) error {
	c, err := q.begin("copy buffer", opts)
	if err != nil {
		return err
	}
	if err := c.use(src, dst); err != nil {
		return err
	}
	if err := rangeError(c.op, srcOffset, size, src.size); err != nil {
		return err
	}
	if err := rangeError(c.op, dstOffset, size, dst.size); err != nil {
		return err
	}
	if src.handle == dst.handle && srcOffset < dstOffset+size && dstOffset < srcOffset+size {
		return fail(c.op, ErrMemCopyOverlap, "[%d,%d) and [%d,%d)", srcOffset, srcOffset+size, dstOffset, dstOffset+size)
	}
	return c.done(q.ctx.drv.EnqueueCopyBuffer(q.handle, src.handle, dst.handle, srcOffset, dstOffset, size, c.args))
}

// FillBuffer repeats pattern over the whole buffer. The pattern length must
// be a power of two no larger than 128 that divides the buffer size.
func (q *Queue) FillBuffer(b *Buffer, pattern []byte, opts ...EnqueueOption) error {
	c, err := q.begin("fill buffer", opts)
	if err != nil {
		return err
	}
	if err := c.use(b); err != nil {
		return err
	}
	n := len(pattern)
	if n == 0 || n > 128 || n&(n-1) != 0 || b.size%n != 0 {
		return fail(c.op, ErrInvalidArgument, "pattern of %d bytes for a %d byte buffer", n, b.size)
	}
	return c.done(q.ctx.drv.EnqueueFillBuffer(q.handle, b.handle, pattern, 0, b.size, c.args))
}

// imageRegion checks a 2D region against the image and returns its byte
// size.
func imageRegion(op string, img *Image, origin, region [2]int) (int, error) {
	if origin[0] < 0 || origin[1] < 0 || region[0] <= 0 || region[1] <= 0 ||
		origin[0]+region[0] > img.width || origin[1]+region[1] > img.height {
		return 0, fail(op, ErrInvalidArgument, "region %v at %v outside %dx%d image", region, origin, img.width, img.height)
	}
	return region[0] * region[1] * img.format.ElementSize(), nil
}

func dims3(v [2]int, z int) [3]int { return [3]int{v[0], v[1], z} }

// ReadImage copies a tightly packed region of img into dst.
func (q *Queue) ReadImage(img *Image, origin, region [2]int, dst []byte, opts ...EnqueueOption) error {
	c, err := q.begin("read image", opts)
	if err != nil {
		return err
	}
	if err := c.use(img); err != nil {
		return err
	}
	n, err := imageRegion(c.op, img, origin, region)
	if err != nil {
		return err
	}
	if len(dst) < n {
		return fail(c.op, ErrInvalidArgument, "destination holds %d of %d bytes", len(dst), n)
	}
	return c.done(q.ctx.drv.EnqueueReadImage(q.handle, img.handle, c.cfg.blocking,
		dims3(origin, 0), dims3(region, 1), 0, 0, dst, c.args))
}

// WriteImage copies tightly packed pixels from src into a region of img.
func (q *Queue) WriteImage(img *Image, origin, region [2]int, src []byte, opts ...EnqueueOption) error {
	c, err := q.begin("write image", opts)
	if err != nil {
		return err
	}
	if err := c.use(img); err != nil {
		return err
	}
	n, err := imageRegion(c.op, img, origin, region)
	if err != nil {
		return err
	}
	if len(src) < n {
		return fail(c.op, ErrInvalidArgument, "source holds %d of %d bytes", len(src), n)
	}
	return c.done(q.ctx.drv.EnqueueWriteImage(q.handle, img.handle, c.cfg.blocking,
		dims3(origin, 0), dims3(region, 1), 0, 0, src, c.args))
}

// CopyBufferToImage copies tightly packed pixels starting at srcOffset of
// src into a region of dst.
func (q *Queue) CopyBufferToImage(src *Buffer, dst *Image, srcOffset int, origin, region [2]int, opts ...EnqueueOption) error {
	c, err := q.begin("copy buffer to image", opts)
	if err != nil {
		return err
	}
	if err := c.use(src, dst); err != nil {
		return err
	}
	n, err := imageRegion(c.op, dst, origin, region)
	if err != nil {
		return err
	}
	if err := rangeError(c.op, srcOffset, n, src.size); err != nil {
		return err
	}
	return c.done(q.ctx.drv.EnqueueCopyBufferToImage(q.handle, src.handle, dst.handle, srcOffset,
		dims3(origin, 0), dims3(region, 1), c.args))
}

func validMapFlags(f MapFlags) bool {
	valid := MapRead | MapWrite | MapWriteInvalidateRegion
	if f == 0 || f&^valid != 0 {
		return false
	}
	return f&MapWriteInvalidateRegion == 0 || f&(MapRead|MapWrite) == 0
}

// MapBuffer maps size bytes of b at offset into host memory. The mapped
// bytes are valid once the command completed; a blocking map returns them
// ready. While a write mapping is outstanding the buffer cannot be used by
// other commands.
func (q *Queue) MapBuffer(b *Buffer, flags MapFlags, offset, size int, opts ...EnqueueOption) (*Mapping, error) {
	c, err := q.begin("map buffer", opts)
	if err != nil {
		return nil, err
	}
	if !validMapFlags(flags) {
		return nil, fail(c.op, ErrInvalidArgument, "map flags %#x", uint64(flags))
	}
	if err := c.use(b); err != nil {
		return nil, err
	}
	if err := rangeError(c.op, offset, size, b.size); err != nil {
		return nil, err
	}
	data, h, st := q.ctx.drv.EnqueueMapBuffer(q.handle, b.handle, c.cfg.blocking, flags, offset, size, c.args)
	if err := c.done(h, st); err != nil {
		return nil, err
	}
	b.addMap(flags.Writes())
	return &Mapping{obj: b, data: data, write: flags.Writes()}, nil
}

// MapImage maps a region of img. Rows of the mapping are RowPitch bytes
// apart.
func (q *Queue) MapImage(img *Image, flags MapFlags, origin, region [2]int, opts ...EnqueueOption) (*Mapping, error) {
	c, err := q.begin("map image", opts)
	if err != nil {
		return nil, err
	}
	if !validMapFlags(flags) {
		return nil, fail(c.op, ErrInvalidArgument, "map flags %#x", uint64(flags))
	}
	if err := c.use(img); err != nil {
		return nil, err
	}
	if _, err := imageRegion(c.op, img, origin, region); err != nil {
		return nil, err
	}
	mapped, h, st := q.ctx.drv.EnqueueMapImage(q.handle, img.handle, c.cfg.blocking, flags,
		dims3(origin, 0), dims3(region, 1), c.args)
	if err := c.done(h, st); err != nil {
		return nil, err
	}
	img.addMap(flags.Writes())
	return &Mapping{obj: img, data: mapped.Data, write: flags.Writes(), rowPitch: mapped.RowPitch}, nil
}

// Unmap ends a mapping. The mapping must not be used afterwards.
func (q *Queue) Unmap(m *Mapping, opts ...EnqueueOption) error {
	c, err := q.begin("unmap", opts)
	if err != nil {
		return err
	}
	if m == nil {
		return fail(c.op, ErrInvalidArgument, "nil mapping")
	}
	mem := m.obj.mem()
	if !q.ctx.same(mem.ctx) {
		return fail(c.op, ErrInvalidContext, "mapping belongs to another context")
	}
	if !m.take() {
		return fail(c.op, ErrInvalidArgument, "mapping already unmapped")
	}
	h, st := q.ctx.drv.EnqueueUnmapMemObject(q.handle, mem.handle, m.data, c.args)
	if err := c.done(h, st); err != nil {
		m.released.Store(false)
		return err
	}
	mem.dropMap(m.write)
	return nil
}

// Dispatch runs k over the index space r. Every argument of k must be
// bound; bound memory objects must not be mapped for writing and shared
// textures must be acquired.
func (q *Queue) Dispatch(k *Kernel, r NDRange, opts ...EnqueueOption) error {
	c, err := q.begin("dispatch", opts)
	if err != nil {
		return err
	}
	if k == nil || !k.live() {
		return fail(c.op, ErrInvalidKernel, "kernel released")
	}
	c.op = "dispatch " + k.name
	if !q.ctx.same(k.prog.ctx) {
		return fail(c.op, ErrInvalidContext, "kernel belongs to another context")
	}
	if err := validateRange(c.op, r); err != nil {
		return err
	}
	mems := k.boundMems()
	if err := c.use(mems...); err != nil {
		return err
	}
	for _, m := range mems {
		if mem := m.mem(); mem.Interop() && !mem.isAcquired() {
			return fail(c.op, ErrInvalidOperation, "shared texture argument is not acquired")
		}
	}
	return c.done(q.ctx.drv.EnqueueNDRangeKernel(q.handle, k.handle, r.Offset, r.Global, r.Local, c.args))
}

func validateRange(op string, r NDRange) error {
	dims := len(r.Global)
	if dims < 1 || dims > 3 {
		return fail(op, ErrInvalidWorkSize, "%d dimensions", dims)
	}
	if r.Local != nil && len(r.Local) != dims {
		return fail(op, ErrInvalidWorkSize, "local size %v for global size %v", r.Local, r.Global)
	}
	if r.Offset != nil && len(r.Offset) != dims {
		return fail(op, ErrInvalidWorkSize, "offset %v for global size %v", r.Offset, r.Global)
	}
	for i := range dims {
		if r.Global[i] <= 0 {
			return fail(op, ErrInvalidWorkSize, "global size %v", r.Global)
		}
		if r.Local != nil && r.Local[i] <= 0 {
			return fail(op, ErrInvalidWorkSize, "local size %v", r.Local)
		}
		if r.Offset != nil && r.Offset[i] < 0 {
			return fail(op, ErrInvalidWorkSize, "offset %v", r.Offset)
		}
	}
	return nil
}

// Barrier completes after the events it waits for, or after every earlier
// command of the queue when given none.
func (q *Queue) Barrier(opts ...EnqueueOption) error {
	c, err := q.begin("barrier", opts)
	if err != nil {
		return err
	}
	return c.done(q.ctx.drv.EnqueueBarrier(q.handle, c.args))
}

// Marker completes like Barrier but does not hold back later commands of an
// out-of-order queue.
func (q *Queue) Marker(opts ...EnqueueOption) error {
	c, err := q.begin("marker", opts)
	if err != nil {
		return err
	}
	return c.done(q.ctx.drv.EnqueueMarker(q.handle, c.args))
}

// AcquireShared hands shared texture objects to the device.
func (q *Queue) AcquireShared(objs []MemoryObject, opts ...EnqueueOption) error {
	return q.shared("acquire shared objects", true, objs, opts)
}

// ReleaseShared hands shared texture objects back to their owner.
func (q *Queue) ReleaseShared(objs []MemoryObject, opts ...EnqueueOption) error {
	return q.shared("release shared objects", false, objs, opts)
}

func (q *Queue) shared(op string, acquire bool, objs []MemoryObject, opts []EnqueueOption) error {
	c, err := q.begin(op, opts)
	if err != nil {
		return err
	}
	if err := c.use(objs...); err != nil {
		return err
	}
	handles := make([]driver.Mem, len(objs))
	for i, o := range objs {
		mem := o.mem()
		if !mem.Interop() {
			return fail(op, ErrInvalidArgument, "object %d is not a shared texture", i)
		}
		if mem.isAcquired() == acquire {
			return fail(op, ErrInvalidOperation, "object %d already in requested state", i)
		}
		handles[i] = mem.handle
	}
	var h driver.Event
	var st driver.Status
	if acquire {
		h, st = q.ctx.drv.EnqueueAcquireGLObjects(q.handle, handles, c.args)
	} else {
		h, st = q.ctx.drv.EnqueueReleaseGLObjects(q.handle, handles, c.args)
	}
	if err := c.done(h, st); err != nil {
		return err
	}
	for _, o := range objs {
		o.mem().setAcquired(acquire)
	}
	return nil
}

// Flush submits queued commands to the device without waiting.
func (q *Queue) Flush() error {
	if !q.live() {
		return fail("flush", ErrInvalidQueue, "queue released")
	}
	return check("flush", q.ctx.drv.Flush(q.handle))
}

// Finish blocks until every command of the queue completed.
func (q *Queue) Finish() error {
	if !q.live() {
		return fail("finish", ErrInvalidQueue, "queue released")
	}
	return check("finish", q.ctx.drv.Finish(q.handle))
}

// Retain returns a second wrapper holding its own reference to the queue.
func (q *Queue) Retain() (*Queue, error) {
	if !q.live() {
		return nil, fail("retain queue", ErrInvalidQueue, "queue released")
	}
	if err := check("retain queue", q.ctx.drv.RetainQueue(q.handle)); err != nil {
		return nil, err
	}
	return &Queue{ctx: q.ctx, handle: q.handle, props: q.props}, nil
}

// Release drops the wrapper's reference. Commands still queued are flushed
// and run to completion.
func (q *Queue) Release() error {
	if !q.take() {
		return nil
	}
	return check("release queue", q.ctx.drv.ReleaseQueue(q.handle))
}
