package cl

import (
	"errors"
	"sync"
)

// Releaser is any wrapper owning a driver reference.
type Releaser interface {
	Release() error
}

// Scope collects resources created during a sequence of calls and releases
// them in reverse order of creation. Typical use:
//
//	var s cl.Scope
//	defer s.Close()
//	buf, err := ctx.CreateBuffer(n, cl.MemReadWrite, nil)
//	if err != nil {
//		return err
//	}
//	s.Add(buf)
type Scope struct {
	mu    sync.Mutex
	items []Releaser
}

// Add registers r for release on Close. Nil releasers are ignored.
func (s *Scope) Add(r ...Releaser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range r {
		if x != nil {
			s.items = append(s.items, x)
		}
	}
}

// Len returns the number of resources awaiting release.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close releases everything added so far, newest first, and reports every
// failure. The scope can be reused afterwards.
func (s *Scope) Close() error {
	s.mu.Lock()
	items := s.items
	s.items = nil
	s.mu.Unlock()

	var errs []error
	for i := len(items) - 1; i >= 0; i-- {
		if err := items[i].Release(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		Logger().Warn("scope release failed", "failures", len(errs))
	}
	return errors.Join(errs...)
}
