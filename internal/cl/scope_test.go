package cl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	name string
	log  *[]string
	err  error
}

func (r recorder) Release() error {
	*r.log = append(*r.log, r.name)
	return r.err
}

func TestScopeReleasesInReverse(t *testing.T) {
	var log []string
	var s Scope
	s.Add(recorder{"context", &log, nil}, recorder{"queue", &log, nil})
	s.Add(nil)
	s.Add(recorder{"buffer", &log, nil})
	assert.Equal(t, 3, s.Len())

	require.NoError(t, s.Close())
	assert.Equal(t, []string{"buffer", "queue", "context"}, log)
	assert.Equal(t, 0, s.Len())
	require.NoError(t, s.Close())
}

func TestScopeJoinsFailures(t *testing.T) {
	var log []string
	errA, errB := errors.New("a"), errors.New("b")
	var s Scope
	s.Add(recorder{"a", &log, errA}, recorder{"ok", &log, nil}, recorder{"b", &log, errB})

	err := s.Close()
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, []string{"b", "ok", "a"}, log)
}

func TestScopeUnwindsDeviceResources(t *testing.T) {
	env := newTestEnv(t)
	var s Scope

	q, err := env.ctx.CreateQueue(false)
	require.NoError(t, err)
	s.Add(q)
	b, err := env.ctx.CreateBuffer(64, MemReadWrite, nil)
	require.NoError(t, err)
	s.Add(b)
	p := env.program(t)
	k, err := p.Kernel("scale")
	require.NoError(t, err)
	s.Add(k)

	require.NoError(t, s.Close())
	requireKind(t, q.Finish(), ErrInvalidQueue)
	requireKind(t, env.queue.WriteBuffer(b, 0, []byte{1}), ErrInvalidMemObject)
	requireKind(t, k.SetArg(0, b), ErrInvalidKernel)
}
