// Package roster tracks which peers are currently online.
package roster

import (
	"sort"
	"sync"
)

// Tracker holds the set of online peer tags, excluding the local tag.
// Presence broadcasts carry the authoritative full list, so updates
// replace the set wholesale instead of merging.
type Tracker struct {
	mu    sync.RWMutex
	self  string
	peers map[string]struct{}
}

// New creates an empty tracker for the given local tag. The set stays
// empty until the first presence broadcast after join.
func New(self string) *Tracker {
	return &Tracker{self: self, peers: make(map[string]struct{})}
}

// Replace swaps in the authoritative online list, dropping the local tag.
func (t *Tracker) Replace(users []string) {
	next := make(map[string]struct{}, len(users))
	for _, u := range users {
		if u == "" || u == t.self {
			continue
		}
		next[u] = struct{}{}
	}

	t.mu.Lock()
	t.peers = next
	t.mu.Unlock()
}

// Online reports whether the given peer is currently online.
func (t *Tracker) Online(tag string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.peers[tag]
	return ok
}

// Snapshot returns the online peers sorted for stable rendering.
func (t *Tracker) Snapshot() []string {
	t.mu.RLock()
	out := make([]string, 0, len(t.peers))
	for tag := range t.peers {
		out = append(out, tag)
	}
	t.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Clear empties the roster on session end.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.peers = make(map[string]struct{})
	t.mu.Unlock()
}
