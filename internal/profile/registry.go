package profile

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mattjoyce/agentgw/internal/executor"
)

// ErrNotFound is returned by Resolve when no profile matches the ID exactly.
var ErrNotFound = errors.New("profile not found")

// Snapshot is an immutable set of profiles. Safe for concurrent reads.
type Snapshot struct {
	configs map[ID]AgentConfig
	ids     []ID
}

// NewSnapshot copies configs into a new Snapshot. Keys are stored in
// canonical form.
func NewSnapshot(configs map[ID]AgentConfig) *Snapshot {
	s := &Snapshot{
		configs: make(map[ID]AgentConfig, len(configs)),
		ids:     make([]ID, 0, len(configs)),
	}
	for id, cfg := range configs {
		id = id.Canonical()
		if _, dup := s.configs[id]; !dup {
			s.ids = append(s.ids, id)
		}
		s.configs[id] = cfg
	}
	sort.Slice(s.ids, func(i, j int) bool { return s.ids[i].String() < s.ids[j].String() })
	return s
}

// Lookup returns the config stored under the canonical form of id.
func (s *Snapshot) Lookup(id ID) (AgentConfig, bool) {
	cfg, ok := s.configs[id.Canonical()]
	return cfg, ok
}

// IDs returns every profile ID sorted by string form.
func (s *Snapshot) IDs() []ID {
	return append([]ID(nil), s.ids...)
}

// Len returns the number of profiles.
func (s *Snapshot) Len() int {
	return len(s.configs)
}

// Loader builds a Snapshot.
type Loader func() (*Snapshot, error)

// Registry resolves profile IDs against a lazily built Snapshot.
//
// The first Snapshot or Resolve call runs the loader exactly once, even under
// concurrent first access; every caller observes the same result. A failed
// build is not retried for the lifetime of the Registry.
type Registry struct {
	load Loader

	once sync.Once
	snap *Snapshot
	err  error
}

// NewRegistry creates a Registry that builds its Snapshot on first use.
func NewRegistry(load Loader) *Registry {
	return &Registry{load: load}
}

// NewStatic creates a Registry around an already built Snapshot.
func NewStatic(snap *Snapshot) *Registry {
	r := &Registry{snap: snap}
	r.once.Do(func() {})
	return r
}

// Snapshot returns the built Snapshot, building it on first call.
func (r *Registry) Snapshot() (*Snapshot, error) {
	r.once.Do(func() {
		if r.load == nil {
			r.err = errors.New("profile registry has no loader")
			return
		}
		r.snap, r.err = r.load()
		if r.err == nil && r.snap == nil {
			r.snap = NewSnapshot(nil)
		}
	})
	return r.snap, r.err
}

// Resolve returns a fresh Executor for id. Each call returns a new instance,
// so capabilities injected into one never leak into another dispatch.
func (r *Registry) Resolve(id ID) (executor.Executor, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("build profile registry: %w", err)
	}
	cfg, ok := snap.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id.Canonical())
	}
	return cfg.NewExecutor(), nil
}
