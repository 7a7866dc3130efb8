// Package session owns the client-side identity: who is signed in, whether
// the backend has confirmed it, and how it survives a restart.
package session

import (
	"sync"

	"github.com/projtrack/projtrack/internal/access"
)

// State describes how much the current identity can be trusted.
type State int

const (
	// StateAnonymous means nobody is signed in.
	StateAnonymous State = iota
	// StateUnverified holds an identity restored from persistence that the
	// backend has not confirmed yet.
	StateUnverified
	// StateVerified holds an identity confirmed by login or a session check.
	StateVerified
)

func (s State) String() string {
	switch s {
	case StateUnverified:
		return "unverified"
	case StateVerified:
		return "verified"
	default:
		return "anonymous"
	}
}

// Snapshot is a point-in-time copy of the identity context.
type Snapshot struct {
	State    State
	Identity *access.Identity
}

// Context holds the current identity. It is written only by Lifecycle;
// readers always receive copies.
type Context struct {
	mu       sync.RWMutex
	state    State
	identity access.Identity
}

// NewContext returns an anonymous context.
func NewContext() *Context {
	return &Context{}
}

// Snapshot returns the current state and a copy of the identity.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == StateAnonymous {
		return Snapshot{State: StateAnonymous}
	}
	ident := c.identity
	return Snapshot{State: c.state, Identity: &ident}
}

// Identity returns a copy of the current identity, or nil when anonymous.
func (c *Context) Identity() *access.Identity {
	return c.Snapshot().Identity
}

// State returns the current trust state.
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Verified reports whether the backend has confirmed the current identity.
func (c *Context) Verified() bool {
	return c.State() == StateVerified
}

// HasIdentity reports whether any identity, verified or restored, is held.
func (c *Context) HasIdentity() bool {
	return c.State() != StateAnonymous
}

func (c *Context) set(state State, ident access.Identity) {
	c.mu.Lock()
	c.state = state
	c.identity = ident
	c.mu.Unlock()
}

func (c *Context) clear() {
	c.mu.Lock()
	c.state = StateAnonymous
	c.identity = access.Identity{}
	c.mu.Unlock()
}
