package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/clinicdesk/coord/internal/platform/fault"
)

const redisKeyPrefix = "presence:"

// RedisRepo stores one JSON value per user. Keys carry a TTL so a workstation
// that vanished without withdrawing is eventually dropped by Redis itself;
// liveness is still decided by LastSeenAt.
type RedisRepo struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepo(client *redis.Client, ttl time.Duration) *RedisRepo {
	return &RedisRepo{client: client, ttl: ttl}
}

func redisKey(userID uuid.UUID) string {
	return redisKeyPrefix + userID.String()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %v", op, fault.ErrStoreUnavailable, err)
}

func (r *RedisRepo) Upsert(ctx context.Context, rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(rec.UserID), b, r.ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (r *RedisRepo) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := r.client.Del(ctx, redisKey(userID)).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

func (r *RedisRepo) ListSince(ctx context.Context, cutoff time.Time) ([]*Record, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("scan", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("mget", err)
	}

	var out []*Record
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		if rec.LastSeenAt.Before(cutoff) {
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

// Prune is a no-op: key TTLs already evict stale entries.
func (r *RedisRepo) Prune(context.Context, time.Time) (int, error) {
	return 0, nil
}
