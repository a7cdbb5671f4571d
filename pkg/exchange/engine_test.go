package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(Config{}, NewMemoryStore(), nil)
}

func eventAt(key string, i int, at time.Time) InteractionEvent {
	ev := validEvent(key, at)
	ev.EventID = fmt.Sprintf("ev-%d", i)
	return ev
}

func TestEngine_RecordSingleEvent(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ev := eventAt("rel-a", 1, at)
	ev.InitiatorEffort, ev.ResponderEffort = 0, 0
	snap, err := e.Record(ctx, ev)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !relTolEqual(snap.DataScore, math.Tanh(0.05), 1e-12) {
		t.Fatalf("data_score: got %v want tanh(0.05)", snap.DataScore)
	}
	if snap.QualityScore != 0.9 {
		t.Fatalf("quality_score: got %v want 0.9", snap.QualityScore)
	}

	got, ok := e.CurrentScore(ctx, "rel-a")
	if !ok {
		t.Fatalf("current score missing after record")
	}
	if got.Score != snap.Score {
		t.Fatalf("score snapshot mismatch: %v vs %v", got.Score, snap.Score)
	}
}

func TestEngine_RecordRejectsWithoutMutation(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := e.Record(ctx, eventAt("rel-a", 1, at)); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	before, _ := e.CurrentScore(ctx, "rel-a")

	bad := eventAt("rel-a", 2, at.Add(time.Hour))
	bad.ResponseQuality = 2
	if _, err := e.Record(ctx, bad); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("want ErrInvalidEvent, got %v", err)
	}

	stale := eventAt("rel-a", 3, at.Add(-time.Hour))
	if _, err := e.Record(ctx, stale); !errors.Is(err, ErrOutOfOrderEvent) {
		t.Fatalf("want ErrOutOfOrderEvent, got %v", err)
	}

	after, _ := e.CurrentScore(ctx, "rel-a")
	if before != after {
		t.Fatalf("rejected events mutated state: %+v vs %+v", before, after)
	}
	if n, _ := e.store.CountEvents(ctx, "rel-a"); n != 1 {
		t.Fatalf("rejected events persisted: backlog %d", n)
	}
}

func TestEngine_DecayBetweenEvents(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// First event contributes +50 balance.
	if _, err := e.Record(ctx, eventAt("rel-a", 1, at)); err != nil {
		t.Fatalf("record: %v", err)
	}

	// 240 hours later the prior balance has decayed by exp(-24).
	second := eventAt("rel-a", 2, at.Add(240*time.Hour))
	second.AmountProvided, second.AmountRequested = 0, 0
	if _, err := e.Record(ctx, second); err != nil {
		t.Fatalf("record: %v", err)
	}

	rel := e.handle("rel-a")
	want := 50 * math.Exp(-24)
	if !relTolEqual(rel.state.CumulativeBalance, want, 1e-9) {
		t.Fatalf("balance after decay: got %v want %v", rel.state.CumulativeBalance, want)
	}
}

func TestEngine_OrderingInvariants(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	gaps := []time.Duration{0, time.Hour, time.Hour, 26 * time.Hour, time.Minute}
	cursor := at
	for i, gap := range gaps {
		cursor = cursor.Add(gap)
		if _, err := e.Record(ctx, eventAt("rel-a", i, cursor)); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	rel := e.handle("rel-a")
	history := rel.state.ScoreHistory
	if len(history) != len(gaps) {
		t.Fatalf("score_history length: got %d want %d", len(history), len(gaps))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp.Before(history[i-1].Timestamp) {
			t.Fatalf("score_history timestamps regress at %d", i)
		}
	}
	if !rel.state.LastUpdateTime.Equal(cursor) {
		t.Fatalf("last_update_time: got %v want %v", rel.state.LastUpdateTime, cursor)
	}
}

func TestEngine_IndependentRelationships(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := e.Record(ctx, eventAt("rel-a", 1, at)); err != nil {
		t.Fatalf("record a: %v", err)
	}
	evB := eventAt("rel-b", 1, at.Add(-100*time.Hour)) // earlier than rel-a is fine
	if _, err := e.Record(ctx, evB); err != nil {
		t.Fatalf("record b: %v", err)
	}

	keys, err := e.RelationshipKeys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("keys: got %v", keys)
	}
}

func TestEngine_RehydratesFromStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	e1 := NewEngine(Config{}, store, nil)
	snap, err := e1.Record(ctx, eventAt("rel-a", 1, at))
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	// A second engine over the same store sees the aggregate.
	e2 := NewEngine(Config{}, store, nil)
	got, ok := e2.CurrentScore(ctx, "rel-a")
	if !ok {
		t.Fatalf("rehydrated score missing")
	}
	if !relTolEqual(got.Score, snap.Score, 1e-12) {
		t.Fatalf("rehydrated score: got %v want %v", got.Score, snap.Score)
	}

	// And ordering is still enforced against the rehydrated state.
	if _, err := e2.Record(ctx, eventAt("rel-a", 2, at.Add(-time.Hour))); !errors.Is(err, ErrOutOfOrderEvent) {
		t.Fatalf("want ErrOutOfOrderEvent after rehydration, got %v", err)
	}
}

func TestEngine_CurrentScoreUnknownKey(t *testing.T) {
	e := testEngine(t)
	if _, ok := e.CurrentScore(context.Background(), "nobody"); ok {
		t.Fatalf("unknown relationship reported a score")
	}
}

func TestEngine_RetentionPriority(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return at.Add(10 * time.Hour) }

	snap, err := e.Record(ctx, eventAt("rel-a", 1, at))
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := e.RetentionPriority(ctx, "rel-a", 5, 0.1)
	if err != nil {
		t.Fatalf("priority: %v", err)
	}
	want := RetentionPriority(snap.Score, 10*time.Hour, 5, 0.1)
	if !relTolEqual(got, want, 1e-12) {
		t.Fatalf("priority: got %v want %v", got, want)
	}

	if _, err := e.RetentionPriority(ctx, "nobody", 0, 0.1); !errors.Is(err, ErrUnknownRelationship) {
		t.Fatalf("want ErrUnknownRelationship, got %v", err)
	}
}

func TestEngine_ObservedAccessCount(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return at }

	if _, err := e.Record(ctx, eventAt("rel-a", 1, at)); err != nil {
		t.Fatalf("record: %v", err)
	}
	for i := 0; i < 3; i++ {
		e.CurrentScore(ctx, "rel-a")
	}

	observed, err := e.RetentionPriority(ctx, "rel-a", -1, 0.1)
	if err != nil {
		t.Fatalf("priority: %v", err)
	}
	explicit, _ := e.RetentionPriority(ctx, "rel-a", 3, 0.1)
	if observed != explicit {
		t.Fatalf("observed access count not used: %v vs %v", observed, explicit)
	}
}

func TestEngine_RegisterSchema(t *testing.T) {
	e := testEngine(t)
	d := SchemaDescriptor{
		Name:    "interaction_event",
		Version: 1,
		Fields: map[string]FieldCapability{
			"event_id":         CapIndexed,
			"relationship_key": CapIndexed | CapEncrypted | CapSearchableEncrypted,
			"outcome_value":    0,
		},
	}
	if err := e.RegisterSchema(d); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := e.Schema("interaction_event"); !ok {
		t.Fatalf("registered schema not found")
	}
	if err := e.RegisterSchema(d); err == nil {
		t.Fatalf("duplicate registration allowed")
	}

	bad := SchemaDescriptor{
		Name:    "bad",
		Version: 1,
		Fields:  map[string]FieldCapability{"x": CapSearchableEncrypted},
	}
	if err := e.RegisterSchema(bad); err == nil {
		t.Fatalf("searchable-encrypted without encrypted allowed")
	}
}

// snapshotFailStore fails a configurable number of snapshot writes so tests
// can exercise the write path's rollback.
type snapshotFailStore struct {
	Store
	failures int
}

func (s *snapshotFailStore) SaveStateSnapshot(ctx context.Context, state *RelationshipState) error {
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("snapshot write refused")
	}
	return s.Store.SaveStateSnapshot(ctx, state)
}

func TestEngine_RecordRollsBackAppendOnSnapshotFailure(t *testing.T) {
	store := &snapshotFailStore{Store: NewMemoryStore(), failures: 1}
	e := NewEngine(Config{}, store, nil)
	ctx := context.Background()
	ev := validEvent("rel-a", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	if _, err := e.Record(ctx, ev); err == nil {
		t.Fatal("record should surface the snapshot failure")
	}
	if n, _ := store.CountEvents(ctx, "rel-a"); n != 0 {
		t.Fatalf("failed record left %d events in the backlog", n)
	}

	// Retrying the identical event must fully succeed and count it once.
	snap, err := e.Record(ctx, ev)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if snap.RelationshipKey != "rel-a" {
		t.Fatalf("retry snapshot: %+v", snap)
	}
	if n, _ := store.CountEvents(ctx, "rel-a"); n != 1 {
		t.Fatalf("backlog after retry: got %d events, want 1", n)
	}
	if got := e.handle("rel-a").state.EventCount; got != 1 {
		t.Fatalf("aggregate after retry: got event count %d, want 1", got)
	}
}
