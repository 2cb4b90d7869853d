package subscription

import "sync"

// Context is the registry's view of a live subscription context.
type Context interface {
	SessionID() string
	CmdID() int

	// Stop cancels the refresh task and live subscriptions and marks the
	// context terminal. Idempotent.
	Stop()
	IsStopped() bool
}

// Registry owns every live subscription context, keyed by
// (sessionId, cmdId). It is the single source of truth for liveness: any
// component holding a context reference re-validates through the registry
// before acting on it, and removal from the registry is the authoritative
// destruction signal.
type Registry struct {
	mu        sync.RWMutex
	bySession map[string]map[int]Context
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bySession: make(map[string]map[int]Context)}
}

// Put registers a context, replacing any previous one for the same
// (session, cmd) pair.
func (r *Registry) Put(c Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.bySession[c.SessionID()]
	if !ok {
		subs = make(map[int]Context)
		r.bySession[c.SessionID()] = subs
	}
	subs[c.CmdID()] = c
}

// Get returns the context for (sessionID, cmdID). A miss is not an error;
// callers treat it as "already gone."
func (r *Registry) Get(sessionID string, cmdID int) (Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs, ok := r.bySession[sessionID]
	if !ok {
		return nil, false
	}
	c, ok := subs[cmdID]
	return c, ok
}

// Has reports whether (sessionID, cmdID) is still registered.
func (r *Registry) Has(sessionID string, cmdID int) bool {
	_, ok := r.Get(sessionID, cmdID)
	return ok
}

// HasSession reports whether the session has any registered contexts.
func (r *Registry) HasSession(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySession[sessionID]
	return ok
}

// Remove detaches one context. Returns the removed context, if any.
func (r *Registry) Remove(sessionID string, cmdID int) (Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.bySession[sessionID]
	if !ok {
		return nil, false
	}
	c, ok := subs[cmdID]
	if ok {
		delete(subs, cmdID)
		if len(subs) == 0 {
			delete(r.bySession, sessionID)
		}
	}
	return c, ok
}

// RemoveSession atomically detaches and returns all contexts of a session
// for teardown.
func (r *Registry) RemoveSession(sessionID string) []Context {
	r.mu.Lock()
	subs := r.bySession[sessionID]
	delete(r.bySession, sessionID)
	r.mu.Unlock()

	out := make([]Context, 0, len(subs))
	for _, c := range subs {
		out = append(out, c)
	}
	return out
}

// Count returns the number of live contexts across all sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, subs := range r.bySession {
		n += len(subs)
	}
	return n
}
