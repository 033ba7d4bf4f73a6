package reactive

import (
	"sort"
	"sync"
)

// Registry tracks mounted collections by id.
type Registry struct {
	mu   sync.RWMutex
	data map[string]Live
}

func NewRegistry() *Registry {
	return &Registry{data: make(map[string]Live)}
}

func (r *Registry) Register(l Live) {
	r.mu.Lock()
	r.data[l.Info().ID] = l
	r.mu.Unlock()
}

func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.data, id)
	r.mu.Unlock()
}

// Lookup finds a mounted collection by resource name.
func (r *Registry) Lookup(resource string) (Live, bool) {
	var found Live
	r.ForEach(func(l Live) bool {
		if l.Info().Resource == resource {
			found = l
			return false
		}
		return true
	})
	return found, found != nil
}

func (r *Registry) Snapshot() []Live {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Live, 0, len(r.data))
	for _, l := range r.data {
		out = append(out, l)
	}
	return out
}

func (r *Registry) ForEach(fn func(Live) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.data {
		if !fn(l) {
			break
		}
	}
}

// SnapshotView is the /api/live payload, ordered by resource name.
func (r *Registry) SnapshotView() []Info {
	live := r.Snapshot()
	out := make([]Info, 0, len(live))
	for _, l := range live {
		out = append(out, l.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].ID < out[j].ID
	})
	return out
}
