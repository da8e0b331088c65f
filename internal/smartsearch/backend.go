package smartsearch

import (
	"sync"

	"github.com/Luchitomori/frostwire-desktop/internal/config"
)

// Backend is a web search engine feeding results into the client.
type Backend interface {
	ID() int
	Name() string
	Enabled() bool
}

// BackendRegistry resolves source ids to backends.
type BackendRegistry interface {
	Lookup(id int) (Backend, bool)
}

type backendEntry struct {
	id      int
	name    string
	enabled bool
}

func (b backendEntry) ID() int       { return b.id }
func (b backendEntry) Name() string  { return b.name }
func (b backendEntry) Enabled() bool { return b.enabled }

// Backends is a BackendRegistry built from configuration. Backends can be
// toggled at runtime.
type Backends struct {
	mu   sync.RWMutex
	byID map[int]config.Backend
}

// NewBackends indexes list by id.
func NewBackends(list []config.Backend) *Backends {
	b := &Backends{byID: make(map[int]config.Backend, len(list))}
	for _, e := range list {
		b.byID[e.ID] = e
	}
	return b
}

// Lookup returns a snapshot of the backend with the given id.
func (b *Backends) Lookup(id int) (Backend, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	return backendEntry{id: e.ID, name: e.Name, enabled: e.Enabled}, true
}

// SetEnabled toggles a backend. Unknown ids are ignored.
func (b *Backends) SetEnabled(id int, enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.byID[id]; ok {
		e.Enabled = enabled
		b.byID[id] = e
	}
}
