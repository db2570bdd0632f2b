package simulator

import (
	"fmt"
	"sync"
)

// Registry tracks the engines running in this process, keyed by an id such
// as a forecast job id or "live".
type Registry struct {
	mu      sync.Mutex
	engines map[string]*Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]*Engine)}
}

// Add registers e under id. An id can be reused once its engine stopped.
func (r *Registry) Add(id string, e *Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.engines[id]; ok {
		switch old.Status().State {
		case StateRunning, StateForwarding:
			return fmt.Errorf("engine %q: %w", id, ErrAlreadyRunning)
		}
	}
	r.engines[id] = e
	return nil
}

func (r *Registry) Get(id string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[id]
	return e, ok
}

// Remove stops the engine registered under id and forgets it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.engines[id]
	delete(r.engines, id)
	r.mu.Unlock()
	if ok {
		e.Stop()
	}
}

// StopAll stops every registered engine. Used on shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	r.mu.Unlock()
	for _, e := range engines {
		e.Stop()
	}
}

// Len returns the number of registered engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}
