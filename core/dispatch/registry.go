package dispatch

import "sync"

// Registry maps an event type to its globally registered handler entries,
// in insertion order. Sorting by priority happens per phase at selection
// time, not at registration time.
type Registry struct {
	mu     sync.RWMutex
	byType map[string][]*HandlerEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string][]*HandlerEntry)}
}

// Register appends entries to eventType's list and returns their IDs.
func (r *Registry) Register(eventType string, entries ...*HandlerEntry) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	r.byType[eventType] = append(r.byType[eventType], entries...)
	return ids
}

// Remove deletes the entry with the given id from eventType's list.
// Reports whether an entry was found and removed.
func (r *Registry) Remove(eventType, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byType[eventType]
	for i, e := range list {
		if e.id == id {
			r.byType[eventType] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Lookup returns a snapshot of the entries registered for eventType.
func (r *Registry) Lookup(eventType string) []*HandlerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byType[eventType]
	out := make([]*HandlerEntry, len(list))
	copy(out, list)
	return out
}
