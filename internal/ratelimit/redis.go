package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindows keeps each (subject, tier) window in a sorted set whose
// scores and members both encode the request timestamp.
type RedisWindows struct {
	rdb *redis.Client
}

func NewRedisWindows(rdb *redis.Client) *RedisWindows {
	return &RedisWindows{rdb: rdb}
}

func (w *RedisWindows) Purge(ctx context.Context, key string, cutoff time.Time) (int, error) {
	// Exclusive bound: an entry exactly at the cutoff is still inside
	// the window.
	max := "(" + strconv.FormatInt(cutoff.UnixNano(), 10)
	if err := w.rdb.ZRemRangeByScore(ctx, key, "-inf", max).Err(); err != nil {
		return 0, err
	}
	count, err := w.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (w *RedisWindows) Oldest(ctx context.Context, key string) (time.Time, bool, error) {
	members, err := w.rdb.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return time.Time{}, false, err
	}
	if len(members) == 0 {
		return time.Time{}, false, nil
	}
	return time.Unix(0, int64(members[0].Score)), true, nil
}

func (w *RedisWindows) Record(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	member := strconv.FormatInt(at.UnixNano(), 10)
	if err := w.rdb.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixNano()), Member: member}).Err(); err != nil {
		return err
	}
	// Let the whole window expire if the subject goes quiet.
	return w.rdb.Expire(ctx, key, ttl).Err()
}
