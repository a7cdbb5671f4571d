package exchange

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable single-file Store. Records are persisted as
// schema-versioned JSON payloads with the identity and ordering columns
// broken out for indexing.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates/opens the engine database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single shared connection avoids writer lock contention with SQLite
	// under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS interaction_events (
			id TEXT PRIMARY KEY,
			relationship_key TEXT NOT NULL,
			seq INTEGER NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			payload_json TEXT NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS events_key_seq_idx ON interaction_events(relationship_key, seq);`,
		`CREATE INDEX IF NOT EXISTS events_key_ts_idx ON interaction_events(relationship_key, timestamp_ms);`,
		`CREATE TABLE IF NOT EXISTS interaction_summaries (
			id TEXT PRIMARY KEY,
			relationship_key TEXT NOT NULL,
			action TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			payload_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS summaries_key_idx ON interaction_summaries(relationship_key, created_at_ms);`,
		`CREATE TABLE IF NOT EXISTS relationship_snapshots (
			relationship_key TEXT PRIMARY KEY,
			updated_at_ms INTEGER NOT NULL,
			payload_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sweep_checkpoints (
			relationship_key TEXT PRIMARY KEY,
			payload_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS lifetime_stats (
			relationship_key TEXT PRIMARY KEY,
			payload_json TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite init: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev InteractionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM interaction_events WHERE relationship_key = ?`,
		ev.RelationshipKey).Scan(&seq); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO interaction_events (id, relationship_key, seq, timestamp_ms, payload_json)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.EventID, ev.RelationshipKey, seq, ev.Timestamp.UnixMilli(), string(payload)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListEvents(ctx context.Context, key string, sinceSeq int64, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, payload_json FROM interaction_events
		 WHERE relationship_key = ? AND seq > ?
		 ORDER BY seq ASC LIMIT ?`, key, sinceSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var se StoredEvent
		var payload string
		if err := rows.Scan(&se.Seq, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &se.Event); err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteEvents(ctx context.Context, key string, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, id := range eventIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM interaction_events WHERE relationship_key = ? AND id = ?`, key, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) CountEvents(ctx context.Context, key string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM interaction_events WHERE relationship_key = ?`, key).Scan(&n)
	return n, err
}

func (s *SQLiteStore) SaveSummary(ctx context.Context, sum InteractionSummary) error {
	payload, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO interaction_summaries (id, relationship_key, action, created_at_ms, payload_json)
		 VALUES (?, ?, ?, ?, ?)`,
		sum.SummaryID, sum.RelationshipKey, string(sum.Action), sum.CreatedAt.UnixMilli(), string(payload))
	return err
}

func (s *SQLiteStore) ListSummaries(ctx context.Context, key string, limit int) ([]InteractionSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload_json FROM interaction_summaries
		 WHERE relationship_key = ? ORDER BY created_at_ms DESC, id DESC LIMIT ?`, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InteractionSummary
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var sum InteractionSummary
		if err := json.Unmarshal([]byte(payload), &sum); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Newest-first query, oldest-first result.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) SaveStateSnapshot(ctx context.Context, state *RelationshipState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO relationship_snapshots (relationship_key, updated_at_ms, payload_json)
		 VALUES (?, ?, ?)
		 ON CONFLICT(relationship_key) DO UPDATE SET updated_at_ms = excluded.updated_at_ms, payload_json = excluded.payload_json`,
		state.RelationshipKey, state.LastUpdateTime.UnixMilli(), string(payload))
	return err
}

func (s *SQLiteStore) GetStateSnapshot(ctx context.Context, key string) (*RelationshipState, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload_json FROM relationship_snapshots WHERE relationship_key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state RelationshipState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *SQLiteStore) SaveSweepCheckpoint(ctx context.Context, cp SweepCheckpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sweep_checkpoints (relationship_key, payload_json) VALUES (?, ?)
		 ON CONFLICT(relationship_key) DO UPDATE SET payload_json = excluded.payload_json`,
		cp.RelationshipKey, string(payload))
	return err
}

func (s *SQLiteStore) GetSweepCheckpoint(ctx context.Context, key string) (*SweepCheckpoint, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload_json FROM sweep_checkpoints WHERE relationship_key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cp SweepCheckpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *SQLiteStore) ClearSweepCheckpoint(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sweep_checkpoints WHERE relationship_key = ?`, key)
	return err
}

func (s *SQLiteStore) GetLifetimeStats(ctx context.Context, key string) (LifetimeStats, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload_json FROM lifetime_stats WHERE relationship_key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return LifetimeStats{}, nil
	}
	if err != nil {
		return LifetimeStats{}, err
	}
	var stats LifetimeStats
	if err := json.Unmarshal([]byte(payload), &stats); err != nil {
		return LifetimeStats{}, err
	}
	return stats, nil
}

func (s *SQLiteStore) SaveLifetimeStats(ctx context.Context, stats LifetimeStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lifetime_stats (relationship_key, payload_json) VALUES (?, ?)
		 ON CONFLICT(relationship_key) DO UPDATE SET payload_json = excluded.payload_json`,
		stats.RelationshipKey, string(payload))
	return err
}

func (s *SQLiteStore) ListRelationshipKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT relationship_key FROM relationship_snapshots
		 UNION SELECT relationship_key FROM interaction_events
		 ORDER BY relationship_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
