package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Registry maps live connection ids to the identity verified on CONNECT. A binding is
// never overwritten; it lives until Unbind.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Identity
	byUser   map[uint]map[string]struct{}
}

// NewRegistry creates an empty session registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Identity),
		byUser:   make(map[uint]map[string]struct{}),
	}
}

// Bind records the identity for connID. Binding an already bound connection fails with
// ErrConflict and leaves the existing binding untouched.
func (r *Registry) Bind(connID string, id Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connID]; ok {
		return fmt.Errorf("%w: connection %s is already authenticated", ErrConflict, connID)
	}
	r.sessions[connID] = id
	conns, ok := r.byUser[id.UserID]
	if !ok {
		conns = make(map[string]struct{})
		r.byUser[id.UserID] = conns
	}
	conns[connID] = struct{}{}
	return nil
}

// Resolve returns the identity bound to connID
func (r *Registry) Resolve(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.sessions[connID]
	return id, ok
}

// Unbind removes the binding. Unknown connections are a no-op.
func (r *Registry) Unbind(connID string) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.sessions[connID]
	if !ok {
		return Identity{}, false
	}
	delete(r.sessions, connID)
	if conns := r.byUser[id.UserID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, id.UserID)
		}
	}
	return id, true
}

// ConnectionsOf lists the bound connections of a user
func (r *Registry) ConnectionsOf(userID uint) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]string, 0, len(r.byUser[userID]))
	for c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}

// Len is the number of bound connections
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Connect authenticates a CONNECT frame's Authorization header and binds the result. On
// any failure nothing is bound and the error wraps ErrUnauthenticated or ErrConflict.
func (r *Registry) Connect(ctx context.Context, v Verifier, connID, authorization string) (Identity, error) {
	if _, ok := r.Resolve(connID); ok {
		return Identity{}, fmt.Errorf("%w: connection %s is already authenticated", ErrConflict, connID)
	}
	token, err := BearerToken(authorization)
	if err != nil {
		return Identity{}, err
	}
	id, err := v.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return Identity{}, err
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if err := r.Bind(connID, id); err != nil {
		return Identity{}, err
	}
	return id, nil
}
