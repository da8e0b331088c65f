// Package dedup remembers which torrents have already been seen so deep
// search never fetches or indexes the same torrent twice.
package dedup

import (
	"context"
	"strings"
	"sync"
)

// IndexChecker answers whether a torrent is already persisted.
type IndexChecker interface {
	TorrentExists(ctx context.Context, infoHash string) bool
}

// Tracker is a process-wide set of known keys (normally info hashes) backed
// by an authoritative persisted check. It is shared by all sessions and is
// safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	known map[string]struct{}
	index IndexChecker
}

// New returns an empty tracker. index may be nil, in which case Indexed
// consults only the in-memory set.
func New(index IndexChecker) *Tracker {
	return &Tracker{
		known: make(map[string]struct{}),
		index: index,
	}
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Seen reports whether key was recorded this run.
func (t *Tracker) Seen(key string) bool {
	key = normalize(key)
	if key == "" {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.known[key]
	return ok
}

// Add records keys as known.
func (t *Tracker) Add(keys ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		if k = normalize(k); k != "" {
			t.known[k] = struct{}{}
		}
	}
}

// TryAdd records key and reports whether it was new.
func (t *Tracker) TryAdd(key string) bool {
	key = normalize(key)
	if key == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.known[key]; ok {
		return false
	}
	t.known[key] = struct{}{}
	return true
}

// Indexed performs the authoritative check against the persisted index.
// A hit is also remembered in memory.
func (t *Tracker) Indexed(ctx context.Context, infoHash string) bool {
	if t.index == nil || normalize(infoHash) == "" {
		return false
	}
	if t.index.TorrentExists(ctx, infoHash) {
		t.Add(infoHash)
		return true
	}
	return false
}

// Reset forgets every key.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.known = make(map[string]struct{})
}

// Len returns the number of known keys.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.known)
}
