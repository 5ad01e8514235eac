package gateway

import (
	"context"
	"sync"
)

// Handle is the part of a session the registry needs for shutdown.
// *session.Actor satisfies it.
type Handle interface {
	ID() string
	Close()
	ForceClose()
}

// Registry tracks open sessions by id. It holds non-owning handles: each
// session unregisters itself when its connection ends.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	wg       sync.WaitGroup
}

type entry struct {
	handle Handle
	once   sync.Once
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*entry)}
}

// Register adds h and returns the function that removes it. Calling the
// returned function more than once is safe.
func (r *Registry) Register(h Handle) (unregister func()) {
	e := &entry{handle: h}
	id := h.ID()

	r.mu.Lock()
	old := r.sessions[id]
	r.sessions[id] = e
	r.wg.Add(1)
	r.mu.Unlock()

	if old != nil {
		r.unregister(id, old)
	}
	return func() { r.unregister(id, e) }
}

func (r *Registry) unregister(id string, e *entry) {
	e.once.Do(func() {
		r.mu.Lock()
		if r.sessions[id] == e {
			delete(r.sessions, id)
		}
		r.mu.Unlock()
		r.wg.Done()
	})
}

// Count returns the number of open sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// CloseAll asks every open session to close and returns how many were asked.
func (r *Registry) CloseAll() int {
	handles := r.snapshot()
	for _, h := range handles {
		h.Close()
	}
	return len(handles)
}

// ForceCloseAll drops every remaining connection.
func (r *Registry) ForceCloseAll() int {
	handles := r.snapshot()
	for _, h := range handles {
		h.ForceClose()
	}
	return len(handles)
}

func (r *Registry) snapshot() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Handle, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.handle)
	}
	return out
}

// Wait blocks until every registered session has unregistered or ctx ends.
// It reports whether all sessions finished.
func (r *Registry) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
