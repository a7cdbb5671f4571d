package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config configures the engine's numeric constants. The quality EMA alpha
// and the four sub-score weights are design constants and deliberately
// absent here.
type Config struct {
	// DecayRate is the per-hour exponential decay applied to the running
	// sums between events. Default 0.1.
	DecayRate float64
	// BalanceNorm is the normalization constant K for the data sub-score.
	// Default 1000.
	BalanceNorm float64
	// FrequencyWindow caps the inter-event interval history. Default 64.
	FrequencyWindow int
	// ExtraDimensions are optional pluggable sub-scores combined with the
	// built-in four after weight normalization.
	ExtraDimensions []Dimension
	// Feed, when set, receives score-update and sweep-completion
	// notifications. Publishing never blocks the write path.
	Feed *EventFeed
}

func (c *Config) fillDefaults() {
	if c.DecayRate <= 0 {
		c.DecayRate = DefaultDecayRate
	}
	if c.BalanceNorm <= 0 {
		c.BalanceNorm = DefaultBalanceNorm
	}
	if c.FrequencyWindow <= 0 {
		c.FrequencyWindow = DefaultFrequencyWindow
	}
}

// relationship is the engine's exclusively owned handle for one key.
// Its mutex strictly serializes writes and sweeps for the key; reads take it
// briefly to copy a consistent snapshot.
type relationship struct {
	mu           sync.Mutex
	loaded       bool
	state        *RelationshipState
	lastSnapshot ScoreSnapshot
	accessCount  int
}

// Engine ingests interaction events, maintains decaying per-relationship
// aggregates, and answers score and retention queries. Different
// relationships may be updated fully in parallel.
type Engine struct {
	cfg    Config
	scorer *Scorer
	store  Store
	log    *slog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	rels map[string]*relationship

	schemaMu sync.RWMutex
	schemas  map[string]SchemaDescriptor
}

// NewEngine builds an engine over the given store. A nil store selects the
// in-memory store; a nil logger discards nothing and uses slog's default.
func NewEngine(cfg Config, store Store, logger *slog.Logger) *Engine {
	cfg.fillDefaults()
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		scorer:  NewScorer(cfg.BalanceNorm, cfg.ExtraDimensions...),
		store:   store,
		log:     logger,
		now:     time.Now,
		rels:    make(map[string]*relationship),
		schemas: make(map[string]SchemaDescriptor),
	}
}

func (e *Engine) handle(key string) *relationship {
	e.mu.RLock()
	rel, ok := e.rels[key]
	e.mu.RUnlock()
	if ok {
		return rel
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if rel, ok = e.rels[key]; !ok {
		rel = &relationship{}
		e.rels[key] = rel
	}
	return rel
}

// ensureLoaded rehydrates the in-memory aggregate from the store's latest
// snapshot on first touch of a key. Caller holds rel.mu.
func (e *Engine) ensureLoaded(ctx context.Context, rel *relationship, key string) error {
	if rel.loaded {
		return nil
	}
	state, err := e.store.GetStateSnapshot(ctx, key)
	if err != nil {
		return fmt.Errorf("load state snapshot for %s: %w", key, err)
	}
	rel.state = state
	if state != nil {
		rel.lastSnapshot = e.scorer.Snapshot(state, state.LastUpdateTime)
	}
	rel.loaded = true
	return nil
}

// Record validates the event, decays the relationship's aggregate to the
// event's timestamp, folds the event in, persists both, and returns the
// resulting score snapshot. Failures leave the aggregate untouched.
func (e *Engine) Record(ctx context.Context, ev InteractionEvent) (ScoreSnapshot, error) {
	if ev.SchemaVersion == 0 {
		ev.SchemaVersion = SchemaVersion
	}
	rel := e.handle(ev.RelationshipKey)
	rel.mu.Lock()
	defer rel.mu.Unlock()

	if err := e.ensureLoaded(ctx, rel, ev.RelationshipKey); err != nil {
		return ScoreSnapshot{}, err
	}
	if err := ValidateEvent(ev, rel.state); err != nil {
		return ScoreSnapshot{}, err
	}

	// Stage all mutation on a copy; commit only after persistence succeeds.
	work := rel.state.Clone()
	if work == nil {
		work = &RelationshipState{
			SchemaVersion:   SchemaVersion,
			RelationshipKey: ev.RelationshipKey,
			LastUpdateTime:  ev.Timestamp,
		}
	} else {
		ApplyDecay(work, ev.Timestamp, e.cfg.DecayRate)
	}
	snap := Integrate(work, ev, e.scorer, e.cfg.FrequencyWindow)

	if err := e.store.AppendEvent(ctx, ev); err != nil {
		return ScoreSnapshot{}, fmt.Errorf("append event %s: %w", ev.EventID, err)
	}
	if err := e.store.SaveStateSnapshot(ctx, work); err != nil {
		// Roll the append back so a retry of the same event neither
		// double-counts in the backlog nor collides on the event ID.
		if delErr := e.store.DeleteEvents(ctx, ev.RelationshipKey, []string{ev.EventID}); delErr != nil {
			e.log.Warn("could not roll back appended event after snapshot failure",
				"relationship_key", ev.RelationshipKey, "event_id", ev.EventID, "error", delErr)
		}
		return ScoreSnapshot{}, fmt.Errorf("save snapshot for %s: %w", ev.RelationshipKey, err)
	}

	rel.state = work
	rel.lastSnapshot = snap
	if e.cfg.Feed != nil {
		e.cfg.Feed.Publish(FeedEvent{
			Kind:            FeedScoreUpdated,
			RelationshipKey: ev.RelationshipKey,
			At:              ev.Timestamp,
			Snapshot:        &snap,
		})
	}
	return snap, nil
}

// CurrentScore returns the latest score snapshot for a key, or false if the
// relationship is unknown. Reads count toward the engine-observed access
// frequency used by RetentionPriority.
func (e *Engine) CurrentScore(ctx context.Context, key string) (ScoreSnapshot, bool) {
	rel := e.handle(key)
	rel.mu.Lock()
	defer rel.mu.Unlock()
	if err := e.ensureLoaded(ctx, rel, key); err != nil {
		e.log.Warn("score read failed to load state", "relationship_key", key, "error", err)
		return ScoreSnapshot{}, false
	}
	if rel.state == nil {
		return ScoreSnapshot{}, false
	}
	rel.accessCount++
	return rel.lastSnapshot, true
}

// RetentionPriority ranks the relationship for external eviction decisions.
// accessCount < 0 selects the engine-observed read count for the key.
func (e *Engine) RetentionPriority(ctx context.Context, key string, accessCount int, recencyDecay float64) (float64, error) {
	rel := e.handle(key)
	rel.mu.Lock()
	defer rel.mu.Unlock()
	if err := e.ensureLoaded(ctx, rel, key); err != nil {
		return 0, err
	}
	if rel.state == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRelationship, key)
	}
	if accessCount < 0 {
		accessCount = rel.accessCount
	}
	since := e.now().Sub(rel.state.LastUpdateTime)
	return RetentionPriority(rel.lastSnapshot.Score, since, accessCount, recencyDecay), nil
}

// LifetimeStats returns the running forget-complete statistics for a key.
func (e *Engine) LifetimeStats(ctx context.Context, key string) (LifetimeStats, error) {
	return e.store.GetLifetimeStats(ctx, key)
}

// Summaries returns digests persisted for a key, oldest first.
func (e *Engine) Summaries(ctx context.Context, key string, limit int) ([]InteractionSummary, error) {
	return e.store.ListSummaries(ctx, key, limit)
}

// RelationshipKeys lists every relationship known to the engine or its store.
func (e *Engine) RelationshipKeys(ctx context.Context) ([]string, error) {
	keys, err := e.store.ListRelationshipKeys(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	e.mu.RLock()
	for k := range e.rels {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	e.mu.RUnlock()
	return keys, nil
}

// RegisterSchema validates and installs a field-capability descriptor for a
// record type. Registration is one-time: re-registering a name fails.
func (e *Engine) RegisterSchema(d SchemaDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	e.schemaMu.Lock()
	defer e.schemaMu.Unlock()
	if _, exists := e.schemas[d.Name]; exists {
		return fmt.Errorf("schema descriptor %s already registered", d.Name)
	}
	e.schemas[d.Name] = d
	return nil
}

// Schema returns a registered descriptor by name.
func (e *Engine) Schema(name string) (SchemaDescriptor, bool) {
	e.schemaMu.RLock()
	defer e.schemaMu.RUnlock()
	d, ok := e.schemas[name]
	return d, ok
}

// Close releases the underlying store.
func (e *Engine) Close() error { return e.store.Close() }
