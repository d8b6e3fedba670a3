// Package server maintains the registry of currently connected
// participants, the single source of truth for who is online.
package server

import "sync"

// Registry is a mutex-guarded mapping from participant identifier to
// Participant. All mutation happens through its methods; the lock is held
// only for map operations and never across I/O.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]Participant
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[string]Participant),
	}
}

// Upsert inserts or replaces the participant stored under id.
func (r *Registry) Upsert(id string, p Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[id] = p
}

// UpdateFocus sets the current file for an existing participant. It
// returns false when no participant is registered under id, in which case
// nothing changes.
func (r *Registry) UpdateFocus(id, filePath string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return false
	}
	p.CurrentFile = &filePath
	r.participants[id] = p
	return true
}

// Remove deletes the participant stored under id and reports whether an
// entry existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[id]; !ok {
		return false
	}
	delete(r.participants, id)
	return true
}

// Snapshot returns a copy of the current contents, safe to serialize
// without holding the registry lock.
func (r *Registry) Snapshot() map[string]Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]Participant, len(r.participants))
	for id, p := range r.participants {
		snapshot[id] = p
	}
	return snapshot
}

// Len reports the number of registered participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}
