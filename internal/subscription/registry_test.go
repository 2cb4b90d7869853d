package subscription

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubContext struct {
	sessionID string
	cmdID     int
	stopped   atomic.Bool
}

func (s *stubContext) SessionID() string { return s.sessionID }
func (s *stubContext) CmdID() int        { return s.cmdID }
func (s *stubContext) Stop()             { s.stopped.Store(true) }
func (s *stubContext) IsStopped() bool   { return s.stopped.Load() }

func TestRegistryPutGetRemove(t *testing.T) {
	r := NewRegistry()
	c := &stubContext{sessionID: "s1", cmdID: 1}

	_, ok := r.Get("s1", 1)
	assert.False(t, ok)

	r.Put(c)
	got, ok := r.Get("s1", 1)
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.True(t, r.Has("s1", 1))
	assert.True(t, r.HasSession("s1"))
	assert.Equal(t, 1, r.Count())

	removed, ok := r.Remove("s1", 1)
	require.True(t, ok)
	assert.Same(t, c, removed)
	assert.False(t, r.Has("s1", 1))
	assert.False(t, r.HasSession("s1"))
	assert.Equal(t, 0, r.Count())
}

func TestRegistryPutReplacesSameCmdID(t *testing.T) {
	r := NewRegistry()
	first := &stubContext{sessionID: "s1", cmdID: 7}
	second := &stubContext{sessionID: "s1", cmdID: 7}

	r.Put(first)
	r.Put(second)

	// At most one context per (session, cmd) pair.
	assert.Equal(t, 1, r.Count())
	got, ok := r.Get("s1", 7)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestRegistryRemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Remove("nope", 1)
	assert.False(t, ok)
	assert.Empty(t, r.RemoveSession("nope"))
}

func TestRegistryRemoveSession(t *testing.T) {
	r := NewRegistry()
	a := &stubContext{sessionID: "s1", cmdID: 1}
	b := &stubContext{sessionID: "s1", cmdID: 2}
	other := &stubContext{sessionID: "s2", cmdID: 1}
	r.Put(a)
	r.Put(b)
	r.Put(other)

	removed := r.RemoveSession("s1")
	assert.Len(t, removed, 2)
	assert.False(t, r.HasSession("s1"))

	// Other sessions are untouched.
	assert.True(t, r.Has("s2", 1))
	assert.Equal(t, 1, r.Count())
}
