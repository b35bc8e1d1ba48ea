package server

import (
	"slices"
	"sync"

	"netpump/transport"
)

// Registry is the set of clients that get the state every tick.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	members map[transport.Addr]struct{}
	order   []transport.Addr // insertion order, for a stable broadcast.
}

func NewRegistry() *Registry {
	return &Registry{members: make(map[transport.Addr]struct{})}
}

// Add returns false if addr was already registered.
func (r *Registry) Add(addr transport.Addr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[addr]; ok {
		return false
	}
	r.members[addr] = struct{}{}
	r.order = append(r.order, addr)
	return true
}

// Remove returns false if addr wasn't registered.
func (r *Registry) Remove(addr transport.Addr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[addr]; !ok {
		return false
	}
	delete(r.members, addr)
	r.order = slices.DeleteFunc(r.order, func(a transport.Addr) bool { return a == addr })
	return true
}

func (r *Registry) Has(addr transport.Addr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.members[addr]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Snapshot returns the members in the order they were added.
func (r *Registry) Snapshot() []transport.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}
