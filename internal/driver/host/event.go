package host

import (
	"sync"

	"github.com/cwbudde/clhost/internal/driver"
)

const (
	slotQueued = iota
	slotSubmit
	slotStart
	slotEnd
)

type event struct {
	refs
	id    driver.Event
	ctx   *hostContext
	queue *queue
	user  bool

	mu     sync.Mutex
	status driver.ExecStatus
	times  [4]uint64
	done   chan struct{}
}

func newEvent(ctx *hostContext, q *queue, status driver.ExecStatus, refCount int32) *event {
	return &event{
		refs:   refs{refCount},
		ctx:    ctx,
		queue:  q,
		user:   q == nil,
		status: status,
		done:   make(chan struct{}),
	}
}

func (e *event) mark(status driver.ExecStatus, slot int, now uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Terminal() {
		return
	}
	e.status = status
	e.times[slot] = now
}

// finish moves the event to a terminal status and wakes waiters. It reports
// false if the event had already finished.
func (e *event) finish(status driver.ExecStatus, now uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Terminal() {
		return false
	}
	e.status = status
	e.times[slotEnd] = now
	close(e.done)
	return true
}

func (e *event) current() driver.ExecStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// wait flushes the owning queue so the command can make progress, then blocks
// until the event is terminal.
func (e *event) wait() driver.ExecStatus {
	if e.queue != nil {
		e.queue.flush()
	}
	<-e.done
	return e.current()
}

func (d *Driver) event(h driver.Event) (*event, driver.Status) {
	e, ok := lookup[*event](d, uintptr(h))
	if !ok {
		return nil, driver.InvalidEvent
	}
	return e, driver.Success
}

func (d *Driver) CreateUserEvent(c driver.Context) (driver.Event, driver.Status) {
	ctx, st := d.context(c)
	if !st.OK() {
		return 0, st
	}
	e := newEvent(ctx, nil, driver.Submitted, 1)
	e.id = driver.Event(d.register(e))
	return e.id, driver.Success
}

func (d *Driver) SetUserEventStatus(h driver.Event, status driver.ExecStatus) driver.Status {
	e, st := d.event(h)
	if !st.OK() {
		return st
	}
	if !e.user {
		return driver.InvalidEvent
	}
	if status > driver.Complete {
		return driver.InvalidValue
	}
	if !e.finish(status, d.now()) {
		return driver.InvalidOperation
	}
	return driver.Success
}

func (d *Driver) EventStatus(h driver.Event) (driver.ExecStatus, driver.Status) {
	e, st := d.event(h)
	if !st.OK() {
		return 0, st
	}
	return e.current(), driver.Success
}

func (d *Driver) EventReferenceCount(h driver.Event) (uint32, driver.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.objects[uintptr(h)].(*event)
	if !ok {
		return 0, driver.InvalidEvent
	}
	return uint32(e.n), driver.Success
}

func (d *Driver) EventProfilingInfo(h driver.Event, param driver.ProfilingInfo) (uint64, driver.Status) {
	e, st := d.event(h)
	if !st.OK() {
		return 0, st
	}
	if e.user || e.queue.props&driver.QueueProfiling == 0 {
		return 0, driver.ProfilingInfoNotAvailable
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != driver.Complete {
		return 0, driver.ProfilingInfoNotAvailable
	}
	switch param {
	case driver.ProfilingQueued:
		return e.times[slotQueued], driver.Success
	case driver.ProfilingSubmit:
		return e.times[slotSubmit], driver.Success
	case driver.ProfilingStart:
		return e.times[slotStart], driver.Success
	case driver.ProfilingEnd:
		return e.times[slotEnd], driver.Success
	}
	return 0, driver.InvalidValue
}

func (d *Driver) WaitForEvents(handles []driver.Event) driver.Status {
	if len(handles) == 0 {
		return driver.InvalidValue
	}
	events := make([]*event, len(handles))
	for i, h := range handles {
		e, st := d.event(h)
		if !st.OK() {
			return st
		}
		if i > 0 && e.ctx != events[0].ctx {
			return driver.InvalidContext
		}
		events[i] = e
	}
	result := driver.Success
	for _, e := range events {
		if e.wait() < 0 {
			result = driver.ExecStatusErrorForEventsInWaitList
		}
	}
	return result
}

func (d *Driver) RetainEvent(h driver.Event) driver.Status {
	return retain[*event](d, uintptr(h), driver.InvalidEvent)
}

func (d *Driver) ReleaseEvent(h driver.Event) driver.Status {
	_, _, st := release[*event](d, uintptr(h), driver.InvalidEvent)
	return st
}
