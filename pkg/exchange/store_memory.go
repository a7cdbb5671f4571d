package exchange

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is the default in-process Store. It keeps the engine's hot
// path free of blocking I/O and is the reference implementation for the
// durable backends.
type MemoryStore struct {
	mu          sync.RWMutex
	events      map[string][]StoredEvent
	seq         map[string]int64
	summaries   map[string][]InteractionSummary
	snapshots   map[string]*RelationshipState
	checkpoints map[string]*SweepCheckpoint
	lifetime    map[string]LifetimeStats
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:      make(map[string][]StoredEvent),
		seq:         make(map[string]int64),
		summaries:   make(map[string][]InteractionSummary),
		snapshots:   make(map[string]*RelationshipState),
		checkpoints: make(map[string]*SweepCheckpoint),
		lifetime:    make(map[string]LifetimeStats),
	}
}

func (m *MemoryStore) AppendEvent(_ context.Context, ev InteractionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[ev.RelationshipKey]++
	m.events[ev.RelationshipKey] = append(m.events[ev.RelationshipKey], StoredEvent{
		Seq:   m.seq[ev.RelationshipKey],
		Event: ev,
	})
	return nil
}

func (m *MemoryStore) ListEvents(_ context.Context, key string, sinceSeq int64, limit int) ([]StoredEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []StoredEvent
	for _, se := range m.events[key] {
		if se.Seq <= sinceSeq {
			continue
		}
		out = append(out, se)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteEvents(_ context.Context, key string, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		drop[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[key][:0]
	for _, se := range m.events[key] {
		if _, ok := drop[se.Event.EventID]; !ok {
			kept = append(kept, se)
		}
	}
	m.events[key] = kept
	return nil
}

func (m *MemoryStore) CountEvents(_ context.Context, key string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events[key]), nil
}

func (m *MemoryStore) SaveSummary(_ context.Context, sum InteractionSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[sum.RelationshipKey] = append(m.summaries[sum.RelationshipKey], sum)
	return nil
}

func (m *MemoryStore) ListSummaries(_ context.Context, key string, limit int) ([]InteractionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]InteractionSummary(nil), m.summaries[key]...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MemoryStore) SaveStateSnapshot(_ context.Context, state *RelationshipState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[state.RelationshipKey] = state.Clone()
	return nil
}

func (m *MemoryStore) GetStateSnapshot(_ context.Context, key string) (*RelationshipState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshots[key].Clone(), nil
}

func (m *MemoryStore) SaveSweepCheckpoint(_ context.Context, cp SweepCheckpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cp.RelationshipKey] = &cp
	return nil
}

func (m *MemoryStore) GetSweepCheckpoint(_ context.Context, key string) (*SweepCheckpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := m.checkpoints[key]
	if cp == nil {
		return nil, nil
	}
	c := *cp
	return &c, nil
}

func (m *MemoryStore) ClearSweepCheckpoint(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, key)
	return nil
}

func (m *MemoryStore) GetLifetimeStats(_ context.Context, key string) (LifetimeStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lifetime[key], nil
}

func (m *MemoryStore) SaveLifetimeStats(_ context.Context, stats LifetimeStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lifetime[stats.RelationshipKey] = stats
	return nil
}

func (m *MemoryStore) ListRelationshipKeys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for k := range m.events {
		seen[k] = struct{}{}
	}
	for k := range m.snapshots {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Close() error { return nil }
