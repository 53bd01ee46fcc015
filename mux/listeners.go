package mux

import "sync"

// ListenerSet is an append-only listener registry. Broadcast iterates a
// snapshot taken under the lock, so a listener that registers another
// listener during dispatch does not deliver the current message to it, and
// registration never blocks behind a slow listener.
type ListenerSet struct {
	mu  sync.Mutex
	fns []Listener
}

func NewListenerSet() *ListenerSet {
	return &ListenerSet{}
}

// Add appends a listener. There is no removal: listener lifetime is the
// lifetime of the owning connection.
func (s *ListenerSet) Add(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Copy-on-write keeps earlier snapshots immune to later appends.
	next := make([]Listener, len(s.fns), len(s.fns)+1)
	copy(next, s.fns)
	s.fns = append(next, fn)
}

// Snapshot returns the registration-ordered listener slice as of now.
func (s *ListenerSet) Snapshot() []Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fns
}

// Len reports the number of registered listeners.
func (s *ListenerSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}
