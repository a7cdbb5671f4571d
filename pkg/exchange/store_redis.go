package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the retained backlog in Redis. Events live in a hash
// keyed by event ID with a sorted-set sequence index alongside, so sweep
// pagination and mid-backlog deletion both stay cheap.
//
// Key layout (namespaced under a configurable prefix):
//
//	{prefix}:{key}:seq        INCR counter for sequence numbers
//	{prefix}:{key}:events     hash: event_id -> event JSON
//	{prefix}:{key}:index      zset: event_id scored by seq
//	{prefix}:{key}:summaries  list of summary JSON
//	{prefix}:{key}:snapshot   latest state snapshot JSON
//	{prefix}:{key}:checkpoint sweep checkpoint JSON
//	{prefix}:{key}:lifetime   lifetime stats JSON
//	{prefix}:keys             set of known relationship keys
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisStoreConfig configures the Redis store.
type RedisStoreConfig struct {
	Prefix string // key prefix, default "xk"
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(client *redis.Client, config ...RedisStoreConfig) *RedisStore {
	cfg := RedisStoreConfig{Prefix: "xk"}
	if len(config) > 0 && config[0].Prefix != "" {
		cfg = config[0]
	}
	return &RedisStore{client: client, prefix: cfg.Prefix}
}

func (r *RedisStore) k(key, kind string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, key, kind)
}

func (r *RedisStore) keysSet() string { return r.prefix + ":keys" }

func (r *RedisStore) AppendEvent(ctx context.Context, ev InteractionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	seq, err := r.client.Incr(ctx, r.k(ev.RelationshipKey, "seq")).Result()
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.k(ev.RelationshipKey, "events"), ev.EventID, string(payload)).Err(); err != nil {
		return err
	}
	if err := r.client.ZAdd(ctx, r.k(ev.RelationshipKey, "index"), redis.Z{
		Score:  float64(seq),
		Member: ev.EventID,
	}).Err(); err != nil {
		return err
	}
	return r.client.SAdd(ctx, r.keysSet(), ev.RelationshipKey).Err()
}

func (r *RedisStore) ListEvents(ctx context.Context, key string, sinceSeq int64, limit int) ([]StoredEvent, error) {
	rng := &redis.ZRangeBy{
		Min: fmt.Sprintf("(%d", sinceSeq),
		Max: "+inf",
	}
	if limit > 0 {
		rng.Count = int64(limit)
	}
	members, err := r.client.ZRangeByScoreWithScores(ctx, r.k(key, "index"), rng).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]string, len(members))
	for i, z := range members {
		ids[i] = z.Member.(string)
	}
	raw, err := r.client.HMGet(ctx, r.k(key, "events"), ids...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]StoredEvent, 0, len(members))
	for i, z := range members {
		body, ok := raw[i].(string)
		if !ok {
			return nil, fmt.Errorf("redis store: missing event body for %s", ids[i])
		}
		var ev InteractionEvent
		if err := json.Unmarshal([]byte(body), &ev); err != nil {
			return nil, err
		}
		out = append(out, StoredEvent{Seq: int64(z.Score), Event: ev})
	}
	return out, nil
}

func (r *RedisStore) DeleteEvents(ctx context.Context, key string, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(eventIDs))
	for i, id := range eventIDs {
		members[i] = id
	}
	if err := r.client.ZRem(ctx, r.k(key, "index"), members...).Err(); err != nil {
		return err
	}
	return r.client.HDel(ctx, r.k(key, "events"), eventIDs...).Err()
}

func (r *RedisStore) CountEvents(ctx context.Context, key string) (int, error) {
	n, err := r.client.ZCard(ctx, r.k(key, "index")).Result()
	return int(n), err
}

func (r *RedisStore) SaveSummary(ctx context.Context, sum InteractionSummary) error {
	payload, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, r.k(sum.RelationshipKey, "summaries"), string(payload)).Err()
}

func (r *RedisStore) ListSummaries(ctx context.Context, key string, limit int) ([]InteractionSummary, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	rows, err := r.client.LRange(ctx, r.k(key, "summaries"), start, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]InteractionSummary, 0, len(rows))
	for _, row := range rows {
		var sum InteractionSummary
		if err := json.Unmarshal([]byte(row), &sum); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

func (r *RedisStore) SaveStateSnapshot(ctx context.Context, state *RelationshipState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.k(state.RelationshipKey, "snapshot"), string(payload), 0).Err(); err != nil {
		return err
	}
	return r.client.SAdd(ctx, r.keysSet(), state.RelationshipKey).Err()
}

func (r *RedisStore) GetStateSnapshot(ctx context.Context, key string) (*RelationshipState, error) {
	raw, err := r.client.Get(ctx, r.k(key, "snapshot")).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state RelationshipState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *RedisStore) SaveSweepCheckpoint(ctx context.Context, cp SweepCheckpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.k(cp.RelationshipKey, "checkpoint"), string(payload), 0).Err()
}

func (r *RedisStore) GetSweepCheckpoint(ctx context.Context, key string) (*SweepCheckpoint, error) {
	raw, err := r.client.Get(ctx, r.k(key, "checkpoint")).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cp SweepCheckpoint
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *RedisStore) ClearSweepCheckpoint(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.k(key, "checkpoint")).Err()
}

func (r *RedisStore) GetLifetimeStats(ctx context.Context, key string) (LifetimeStats, error) {
	raw, err := r.client.Get(ctx, r.k(key, "lifetime")).Result()
	if errors.Is(err, redis.Nil) {
		return LifetimeStats{}, nil
	}
	if err != nil {
		return LifetimeStats{}, err
	}
	var stats LifetimeStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return LifetimeStats{}, err
	}
	return stats, nil
}

func (r *RedisStore) SaveLifetimeStats(ctx context.Context, stats LifetimeStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.k(stats.RelationshipKey, "lifetime"), string(payload), 0).Err()
}

func (r *RedisStore) ListRelationshipKeys(ctx context.Context) ([]string, error) {
	keys, err := r.client.SMembers(ctx, r.keysSet()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
