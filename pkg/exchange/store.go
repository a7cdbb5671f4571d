package exchange

import "context"

// StoredEvent pairs an event with the store-assigned, per-relationship
// monotonic sequence number used for sweep pagination and checkpoints.
type StoredEvent struct {
	Seq   int64            `json:"seq"`
	Event InteractionEvent `json:"event"`
}

// Store is the persistence boundary for the engine: the individually
// retained event backlog, state snapshots, digests, sweep checkpoints and
// lifetime statistics. Implementations must keep per-relationship event
// order stable under the engine's per-key write serialization.
type Store interface {
	// AppendEvent adds an event to the relationship's retained backlog.
	AppendEvent(ctx context.Context, ev InteractionEvent) error
	// ListEvents returns up to limit events with seq > sinceSeq in
	// ascending sequence order.
	ListEvents(ctx context.Context, key string, sinceSeq int64, limit int) ([]StoredEvent, error)
	// DeleteEvents removes events by ID from the retained backlog.
	DeleteEvents(ctx context.Context, key string, eventIDs []string) error
	// CountEvents reports how many events remain individually retained.
	CountEvents(ctx context.Context, key string) (int, error)

	SaveSummary(ctx context.Context, sum InteractionSummary) error
	// ListSummaries returns digests oldest-first; a positive limit keeps
	// only the most recent ones.
	ListSummaries(ctx context.Context, key string, limit int) ([]InteractionSummary, error)

	// SaveStateSnapshot persists the latest aggregate for a relationship.
	SaveStateSnapshot(ctx context.Context, state *RelationshipState) error
	// GetStateSnapshot returns the latest aggregate, or nil if the
	// relationship has never been snapshotted.
	GetStateSnapshot(ctx context.Context, key string) (*RelationshipState, error)

	SaveSweepCheckpoint(ctx context.Context, cp SweepCheckpoint) error
	// GetSweepCheckpoint returns the stored checkpoint, or nil if none.
	GetSweepCheckpoint(ctx context.Context, key string) (*SweepCheckpoint, error)
	ClearSweepCheckpoint(ctx context.Context, key string) error

	GetLifetimeStats(ctx context.Context, key string) (LifetimeStats, error)
	SaveLifetimeStats(ctx context.Context, stats LifetimeStats) error

	// ListRelationshipKeys returns every key with any persisted state.
	ListRelationshipKeys(ctx context.Context) ([]string, error)

	Close() error
}
