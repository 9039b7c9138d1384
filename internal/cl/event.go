package cl

import (
	"context"
	"time"

	"github.com/cwbudde/clhost/internal/driver"
)

// Event is the completion state of one enqueued command, or a user event
// completed by the host. Its status moves from queued through submitted and
// running to complete, or to a negative error code; a finished event never
// changes again.
type Event struct {
	ctx    *Context
	handle driver.Event
	user   bool
	guard
}

func (e *Event) Handle() driver.Event { return e.handle }

// IsUser reports whether the host controls the event's status.
func (e *Event) IsUser() bool { return e.user }

func (e *Event) alive(op string) error {
	if e == nil || !e.live() {
		return fail(op, ErrInvalidEvent, "event released")
	}
	return nil
}

// commandFailed reports the negative status a command finished with.
func commandFailed(op string, s ExecStatus) error {
	code := driver.Status(s)
	return &Error{Kind: KindOf(code), Code: code, Op: op, Msg: "command failed"}
}

// Status returns the current execution status without blocking. A command
// that failed returns its status together with an error carrying the code.
func (e *Event) Status() (ExecStatus, error) {
	if err := e.alive("event status"); err != nil {
		return 0, err
	}
	s, st := e.ctx.drv.EventStatus(e.handle)
	if err := check("event status", st); err != nil {
		return 0, err
	}
	if s < 0 {
		return s, commandFailed("event status", s)
	}
	return s, nil
}

// Wait blocks until the event finished. A failed command, or one whose wait
// list failed, returns an error carrying its status.
func (e *Event) Wait() error {
	if err := e.alive("wait"); err != nil {
		return err
	}
	return waitEvents(e.ctx.drv, []*Event{e})
}

// WaitContext waits like Wait but gives up when ctx is done. Giving up
// abandons the wait; the command itself keeps running.
func (e *Event) WaitContext(ctx context.Context) error {
	held, err := e.Retain()
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		defer held.Release()
		done <- held.Wait()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAll blocks until every event finished. The events must share a
// context.
func WaitAll(events ...*Event) error {
	if len(events) == 0 {
		return nil
	}
	for i, e := range events {
		if err := e.alive("wait all"); err != nil {
			return err
		}
		if i > 0 && !events[0].ctx.same(e.ctx) {
			return fail("wait all", ErrInvalidContext, "event %d belongs to another context", i)
		}
	}
	return waitEvents(events[0].ctx.drv, events)
}

func waitEvents(drv driver.Driver, events []*Event) error {
	handles := make([]driver.Event, len(events))
	for i, e := range events {
		handles[i] = e.handle
	}
	st := drv.WaitForEvents(handles)
	if st != driver.ExecStatusErrorForEventsInWaitList {
		return check("wait", st)
	}
	for _, h := range handles {
		if s, st := drv.EventStatus(h); st.OK() && s < 0 {
			return commandFailed("wait", s)
		}
	}
	return check("wait", st)
}

// SetStatus completes a user event with StatusComplete or fails it with a
// negative code. Commands waiting for it then run, or fail with
// ErrDependencyFailed. Events of commands reject it with
// ErrInvalidOperation.
func (e *Event) SetStatus(s ExecStatus) error {
	const op = "set event status"
	if err := e.alive(op); err != nil {
		return err
	}
	if !e.user {
		return fail(op, ErrInvalidOperation, "status of a command event is set by its queue")
	}
	if s > 0 {
		return fail(op, ErrInvalidArgument, "status %s is not final", s)
	}
	return check(op, e.ctx.drv.SetUserEventStatus(e.handle, s))
}

// Complete is SetStatus(StatusComplete).
func (e *Event) Complete() error { return e.SetStatus(StatusComplete) }

// ReferenceCount returns the driver's reference count of the event,
// including references held by pending commands.
func (e *Event) ReferenceCount() (int, error) {
	if err := e.alive("event reference count"); err != nil {
		return 0, err
	}
	n, st := e.ctx.drv.EventReferenceCount(e.handle)
	if err := check("event reference count", st); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Retain returns a second wrapper holding its own reference to the event.
func (e *Event) Retain() (*Event, error) {
	if err := e.alive("retain event"); err != nil {
		return nil, err
	}
	if err := check("retain event", e.ctx.drv.RetainEvent(e.handle)); err != nil {
		return nil, err
	}
	return &Event{ctx: e.ctx, handle: e.handle, user: e.user}, nil
}

// Release drops the wrapper's reference. Subsequent calls are no-ops.
func (e *Event) Release() error {
	if e == nil || !e.take() {
		return nil
	}
	return check("release event", e.ctx.drv.ReleaseEvent(e.handle))
}

// ReleaseAll drops every outstanding reference to the event, including
// those of other wrappers and pending commands. It is meant for teardown
// and must not be used while anything still needs the event.
func (e *Event) ReleaseAll() error {
	n, err := e.ReferenceCount()
	if err != nil {
		return err
	}
	if !e.take() {
		return nil
	}
	Logger().Warn("releasing all event references", "event", uint64(e.handle), "references", n)
	for range n {
		if err := check("release event", e.ctx.drv.ReleaseEvent(e.handle)); err != nil {
			return err
		}
	}
	return nil
}

// Profile holds the device timestamps of a command in nanoseconds.
type Profile struct {
	Queued    uint64
	Submitted uint64
	Started   uint64
	Ended     uint64
}

// RunTime is the execution time of the command.
func (p Profile) RunTime() time.Duration { return time.Duration(p.Ended - p.Started) }

// QueuedTime is the time from enqueue to start of execution.
func (p Profile) QueuedTime() time.Duration { return time.Duration(p.Started - p.Queued) }

// Profile returns the four timestamps of a completed command of a profiling
// queue. Otherwise it fails with ErrProfilingUnavailable.
func (e *Event) Profile() (Profile, error) {
	const op = "event profiling"
	if err := e.alive(op); err != nil {
		return Profile{}, err
	}
	var p Profile
	for _, f := range []struct {
		param driver.ProfilingInfo
		dst   *uint64
	}{
		{driver.ProfilingQueued, &p.Queued},
		{driver.ProfilingSubmit, &p.Submitted},
		{driver.ProfilingStart, &p.Started},
		{driver.ProfilingEnd, &p.Ended},
	} {
		v, st := e.ctx.drv.EventProfilingInfo(e.handle, f.param)
		if err := check(op, st); err != nil {
			return Profile{}, err
		}
		*f.dst = v
	}
	return p, nil
}

// RunTime is the execution time of the completed command.
func (e *Event) RunTime() (time.Duration, error) {
	p, err := e.Profile()
	if err != nil {
		return 0, err
	}
	return p.RunTime(), nil
}

// QueuedTime is the time the completed command spent before it started.
func (e *Event) QueuedTime() (time.Duration, error) {
	p, err := e.Profile()
	if err != nil {
		return 0, err
	}
	return p.QueuedTime(), nil
}
