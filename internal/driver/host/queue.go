package host

import (
	"sync"

	"github.com/cwbudde/clhost/internal/driver"
)

const maxDeviceQueueSize = 8 << 20

type queue struct {
	refs
	id    driver.Queue
	ctx   *hostContext
	props driver.QueueProperties

	mu          sync.Mutex
	gate        chan struct{}
	last        *event
	barrier     *event
	outstanding map[*event]struct{}
}

func (q *queue) outOfOrder() bool { return q.props&driver.QueueOutOfOrder != 0 }

// flush releases every command enqueued so far for execution.
func (q *queue) flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	close(q.gate)
	q.gate = make(chan struct{})
}

func (q *queue) pending() []*event {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := make([]*event, 0, len(q.outstanding))
	for e := range q.outstanding {
		events = append(events, e)
	}
	return events
}

func (d *Driver) CreateQueue(c driver.Context, id driver.DeviceID, props driver.QueueProperties, size uint32) (driver.Queue, driver.Status) {
	ctx, st := d.context(c)
	if !st.OK() {
		return 0, st
	}
	if id != d.device {
		return 0, driver.InvalidDevice
	}
	known := driver.QueueOutOfOrder | driver.QueueProfiling | driver.QueueOnDevice | driver.QueueOnDeviceDefault
	if props&^known != 0 {
		return 0, driver.InvalidValue
	}
	onDevice := props&driver.QueueOnDevice != 0
	if onDevice && props&driver.QueueOutOfOrder == 0 {
		return 0, driver.InvalidValue
	}
	if props&driver.QueueOnDeviceDefault != 0 && !onDevice {
		return 0, driver.InvalidValue
	}
	if onDevice && !d.cfg.info.DeviceEnqueue {
		return 0, driver.InvalidQueueProperties
	}
	if host := props &^ (driver.QueueOnDevice | driver.QueueOnDeviceDefault); host&^d.cfg.info.QueueProperties != 0 {
		return 0, driver.InvalidQueueProperties
	}
	if size != 0 && (!onDevice || size > maxDeviceQueueSize) {
		return 0, driver.InvalidValue
	}

	d.mu.Lock()
	if d.queues >= d.cfg.maxQueues {
		d.mu.Unlock()
		return 0, driver.OutOfResources
	}
	if props&driver.QueueOnDeviceDefault != 0 && ctx.deviceQueue != nil {
		existing := ctx.deviceQueue
		existing.n++
		d.mu.Unlock()
		return existing.id, driver.Success
	}
	d.queues++
	d.mu.Unlock()

	q := &queue{
		refs:        refs{1},
		ctx:         ctx,
		props:       props,
		gate:        make(chan struct{}),
		outstanding: make(map[*event]struct{}),
	}
	q.id = driver.Queue(d.register(q))
	if props&driver.QueueOnDeviceDefault != 0 {
		d.mu.Lock()
		ctx.deviceQueue = q
		d.mu.Unlock()
	}
	d.logger.Debug("queue created", "queue", q.id, "properties", uint64(props))
	return q.id, driver.Success
}

func (d *Driver) RetainQueue(h driver.Queue) driver.Status {
	return retain[*queue](d, uintptr(h), driver.InvalidCommandQueue)
}

func (d *Driver) ReleaseQueue(h driver.Queue) driver.Status {
	q, freed, st := release[*queue](d, uintptr(h), driver.InvalidCommandQueue)
	if !freed {
		return st
	}
	q.flush()
	d.mu.Lock()
	d.queues--
	if q.ctx.deviceQueue == q {
		q.ctx.deviceQueue = nil
	}
	d.mu.Unlock()
	d.logger.Debug("queue released", "queue", h)
	return st
}

func (d *Driver) queue(h driver.Queue) (*queue, driver.Status) {
	q, ok := lookup[*queue](d, uintptr(h))
	if !ok {
		return nil, driver.InvalidCommandQueue
	}
	return q, driver.Success
}

func (d *Driver) Flush(h driver.Queue) driver.Status {
	q, st := d.queue(h)
	if !st.OK() {
		return st
	}
	q.flush()
	return driver.Success
}

func (d *Driver) Finish(h driver.Queue) driver.Status {
	q, st := d.queue(h)
	if !st.OK() {
		return st
	}
	q.flush()
	for _, e := range q.pending() {
		<-e.done
	}
	return driver.Success
}

type commandKind int

const (
	commandNormal commandKind = iota
	commandBarrier
	commandMarker
)

// command is one enqueued operation. run executes on the command's goroutine
// once every dependency has finished.
type command struct {
	kind  commandKind
	waits []*event
	run   func() driver.Status
}

// resolveWaitList maps wait-list handles to events of the queue's context
// and takes a reference on each. execute drops them when the command ends.
func (d *Driver) resolveWaitList(q *queue, handles []driver.Event) ([]*event, driver.Status) {
	if len(handles) == 0 {
		return nil, driver.Success
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	events := make([]*event, len(handles))
	for i, h := range handles {
		e, ok := d.objects[uintptr(h)].(*event)
		if !ok {
			return nil, driver.InvalidEventWaitList
		}
		if e.ctx != q.ctx {
			return nil, driver.InvalidContext
		}
		events[i] = e
	}
	for _, e := range events {
		*e.counter()++
	}
	return events, driver.Success
}

// enqueue records cmd on q and starts its goroutine. The returned event is
// the caller's reference when args.WantEvent is set.
func (d *Driver) enqueue(q *queue, args driver.EventArgs, blocking bool, cmd command) (driver.Event, driver.Status) {
	waits, st := d.resolveWaitList(q, args.WaitList)
	if !st.OK() {
		return 0, st
	}
	cmd.waits = waits

	count := int32(1)
	if args.WantEvent {
		count++
	}
	ev := newEvent(q.ctx, q, driver.Queued, count)
	ev.times[slotQueued] = d.now()
	ev.id = driver.Event(d.register(ev))

	q.mu.Lock()
	var after []*event
	switch {
	case !q.outOfOrder():
		if q.last != nil {
			after = append(after, q.last)
		}
	case cmd.kind != commandNormal && len(waits) == 0:
		for e := range q.outstanding {
			after = append(after, e)
		}
	default:
		if q.barrier != nil {
			after = append(after, q.barrier)
		}
	}
	if cmd.kind == commandBarrier {
		q.barrier = ev
	}
	q.last = ev
	q.outstanding[ev] = struct{}{}
	gate := q.gate
	q.mu.Unlock()

	go d.execute(q, ev, gate, after, cmd)

	if blocking {
		if status := ev.wait(); status < 0 {
			if args.WantEvent {
				d.ReleaseEvent(ev.id)
			}
			return 0, driver.Status(status)
		}
	}
	if !args.WantEvent {
		return 0, driver.Success
	}
	return ev.id, driver.Success
}

func (d *Driver) execute(q *queue, ev *event, gate chan struct{}, after []*event, cmd command) {
	defer func() {
		q.mu.Lock()
		delete(q.outstanding, ev)
		q.mu.Unlock()
		d.ReleaseEvent(ev.id)
		for _, dep := range cmd.waits {
			d.ReleaseEvent(dep.id)
		}
	}()

	<-gate
	ev.mark(driver.Submitted, slotSubmit, d.now())

	for _, dep := range after {
		if dep.queue != nil && dep.queue != q {
			dep.queue.flush()
		}
		<-dep.done
	}
	failed := false
	for _, dep := range cmd.waits {
		if dep.queue != nil && dep.queue != q {
			dep.queue.flush()
		}
		<-dep.done
		if dep.current() < 0 {
			failed = true
		}
	}
	if failed {
		ev.mark(driver.Running, slotStart, d.now())
		ev.finish(driver.ExecStatus(driver.ExecStatusErrorForEventsInWaitList), d.now())
		return
	}

	ev.mark(driver.Running, slotStart, d.now())
	status := driver.Success
	if cmd.run != nil {
		status = cmd.run()
	}
	if !status.OK() {
		d.logger.Warn("command failed", "queue", q.id, "event", ev.id, "status", status.String())
	}
	ev.finish(driver.ExecStatus(status), d.now())
}

func (d *Driver) EnqueueBarrier(h driver.Queue, args driver.EventArgs) (driver.Event, driver.Status) {
	q, st := d.queue(h)
	if !st.OK() {
		return 0, st
	}
	return d.enqueue(q, args, false, command{kind: commandBarrier})
}

func (d *Driver) EnqueueMarker(h driver.Queue, args driver.EventArgs) (driver.Event, driver.Status) {
	q, st := d.queue(h)
	if !st.OK() {
		return 0, st
	}
	return d.enqueue(q, args, false, command{kind: commandMarker})
}
