package registry

import (
	"errors"
	"fmt"
	"sync"
)

// Conn is an open socket that can receive text frames.
type Conn interface {
	ID() string
	WriteText(text string) error
}

// Registry tracks the currently open socket connections.
type Registry struct {
	mu    sync.RWMutex
	conns []Conn
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register adds conn to the active set. Membership is by identity; the same
// connection registered twice appears twice.
func (r *Registry) Register(conn Conn) {
	r.mu.Lock()
	r.conns = append(r.conns, conn)
	r.mu.Unlock()
}

// Deregister removes conn from the active set. It is a no-op when conn is
// not registered.
func (r *Registry) Deregister(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, c := range r.conns {
		if c == conn {
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			return
		}
	}
}

// Broadcast sends text to every active connection in registration order.
// A failed write does not stop delivery to the remaining connections; all
// failures are returned joined.
func (r *Registry) Broadcast(text string) error {
	r.mu.RLock()
	targets := make([]Conn, len(r.conns))
	copy(targets, r.conns)
	r.mu.RUnlock()

	var errs []error
	for _, conn := range targets {
		if err := conn.WriteText(text); err != nil {
			errs = append(errs, fmt.Errorf("broadcast to %s: %w", conn.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of active connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
