package core

import "sync"

// UserDescriptor identifies the user behind a live connection.
type UserDescriptor struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// PresenceRegistry maps live connection ids to the user descriptor that owns
// them. It is an injected instance, not a package singleton, so tests can
// create isolated registries. Entirely in-memory: a restart loses all state,
// which is rebuilt as clients reconnect.
type PresenceRegistry struct {
	mu      sync.Mutex
	entries map[string]UserDescriptor
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{entries: make(map[string]UserDescriptor)}
}

// Join inserts or overwrites the entry for connID and returns the registry
// size after the insert. Mutation and measurement happen under one lock so a
// broadcast of the returned count can never be stale relative to this event.
func (r *PresenceRegistry) Join(connID string, desc UserDescriptor) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[connID] = desc
	return len(r.entries)
}

// Drop removes the entry for connID (no-op if absent) and returns the size
// after the removal.
func (r *PresenceRegistry) Drop(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, connID)
	return len(r.entries)
}

// Get returns the descriptor for connID, if any.
func (r *PresenceRegistry) Get(connID string) (UserDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	desc, ok := r.entries[connID]
	return desc, ok
}

// Size reports the current number of live entries.
func (r *PresenceRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns the current descriptors, for the online-users endpoint.
func (r *PresenceRegistry) Snapshot() []UserDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]UserDescriptor, 0, len(r.entries))
	for _, d := range r.entries {
		out = append(out, d)
	}
	return out
}
