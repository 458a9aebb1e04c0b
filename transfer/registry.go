package transfer

import (
	"fmt"
	"sync"

	"github.com/pithecene-io/ferry/types"
)

// Registry tracks live coordinators by transfer id so control calls
// (pause, resume, cancel) can be dispatched from outside the goroutine
// running the transfer. Terminal transfers are evicted on Remove or by
// Reap.
type Registry struct {
	mu        sync.RWMutex
	transfers map[string]*Coordinator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{transfers: make(map[string]*Coordinator)}
}

// Add registers a coordinator. Duplicate ids are rejected; uuid collisions
// do not happen in practice, so a duplicate means a caller bug.
func (r *Registry) Add(c *Coordinator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transfers[c.ID()]; ok {
		return fmt.Errorf("transfer %s already registered", c.ID())
	}
	r.transfers[c.ID()] = c
	return nil
}

// Get looks up a live coordinator by id.
func (r *Registry) Get(id string) (*Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.transfers[id]
	return c, ok
}

// Remove evicts a coordinator. Safe to call for unknown ids.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transfers, id)
}

// Pause dispatches a pause to the identified transfer.
func (r *Registry) Pause(id string) error {
	c, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("unknown transfer %s", id)
	}
	return c.Pause()
}

// Resume dispatches a resume to the identified transfer.
func (r *Registry) Resume(id string) error {
	c, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("unknown transfer %s", id)
	}
	return c.Resume()
}

// Cancel dispatches a cancel to the identified transfer.
func (r *Registry) Cancel(id string) error {
	c, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("unknown transfer %s", id)
	}
	return c.Cancel()
}

// Active returns the ids of transfers not yet terminal, in map order.
func (r *Registry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, c := range r.transfers {
		if !c.State().IsTerminal() {
			out = append(out, id)
		}
	}
	return out
}

// Reap evicts every terminal transfer and returns how many were removed.
func (r *Registry) Reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for id, c := range r.transfers {
		if c.State().IsTerminal() {
			delete(r.transfers, id)
			n++
		}
	}
	return n
}

// CancelAll cancels every non-terminal transfer, used on shutdown.
func (r *Registry) CancelAll() {
	r.mu.RLock()
	coords := make([]*Coordinator, 0, len(r.transfers))
	for _, c := range r.transfers {
		coords = append(coords, c)
	}
	r.mu.RUnlock()

	for _, c := range coords {
		if c.State() == types.StatePaused || !c.State().IsTerminal() {
			_ = c.Cancel()
		}
	}
}
