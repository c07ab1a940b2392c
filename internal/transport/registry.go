package transport

import (
	"sort"
	"sync"
)

// Registry holds the live calls by channel id.
type Registry struct {
	mu    sync.RWMutex
	calls map[string]*call
}

func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*call)}
}

// add registers c under id. It fails when the channel is already taken.
func (r *Registry) add(id string, c *call) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[id]; ok {
		return false
	}
	r.calls[id] = c
	return true
}

// remove drops id only while it still points at c.
func (r *Registry) remove(id string, c *call) {
	r.mu.Lock()
	if r.calls[id] == c {
		delete(r.calls, id)
	}
	r.mu.Unlock()
}

func (r *Registry) snapshot() []*call {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c)
	}
	return out
}

// Channels lists the ids of live calls, sorted.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.calls))
	for id := range r.calls {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len is the number of live calls.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}
