package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyHigh         = "scan_queue:high"
	keyNormal       = "scan_queue:normal"
	keyStatusPrefix = "scan_status:"
)

// RedisQueue implements Queue on Redis lists plus SETEX status keys.
// LPUSH with BRPOP/RPOP gives FIFO per lane; BRPOP's key ordering
// gives the high lane strict preference, and its pop is atomic across
// competing workers.
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func laneKey(lane Lane) (string, error) {
	switch lane {
	case LaneHigh:
		return keyHigh, nil
	case LaneNormal:
		return keyNormal, nil
	default:
		return "", fmt.Errorf("unknown lane %q", lane)
	}
}

func statusKey(jobID uuid.UUID) string {
	return keyStatusPrefix + jobID.String()
}

func (q *RedisQueue) Enqueue(ctx context.Context, d Descriptor, lane Lane) error {
	key, err := laneKey(lane)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}

	if err := q.rdb.LPush(ctx, key, payload).Err(); err != nil {
		return err
	}

	return q.SetStatus(ctx, d.JobID, StatusQueued, DefaultStatusTTL)
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Descriptor, error) {
	var payload string

	if timeout > 0 {
		res, err := q.rdb.BRPop(ctx, timeout, keyHigh, keyNormal).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}
			return nil, err
		}
		// BRPOP returns [key, value].
		payload = res[1]
	} else {
		res, err := q.rdb.RPop(ctx, keyHigh).Result()
		if errors.Is(err, redis.Nil) {
			res, err = q.rdb.RPop(ctx, keyNormal).Result()
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}
		payload = res
	}

	var d Descriptor
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, fmt.Errorf("malformed queue entry: %w", err)
	}
	return &d, nil
}

func (q *RedisQueue) Cancel(ctx context.Context, jobID uuid.UUID) error {
	return q.SetStatus(ctx, jobID, StatusCancelled, DefaultStatusTTL)
}

func (q *RedisQueue) SetStatus(ctx context.Context, jobID uuid.UUID, status Status, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return q.rdb.SetEx(ctx, statusKey(jobID), string(status), ttl).Err()
}

func (q *RedisQueue) GetStatus(ctx context.Context, jobID uuid.UUID) (Status, bool, error) {
	val, err := q.rdb.Get(ctx, statusKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return Status(val), true, nil
}

func (q *RedisQueue) Len(ctx context.Context, lane Lane) (int64, error) {
	if lane == LaneAll {
		high, err := q.rdb.LLen(ctx, keyHigh).Result()
		if err != nil {
			return 0, err
		}
		normal, err := q.rdb.LLen(ctx, keyNormal).Result()
		if err != nil {
			return 0, err
		}
		return high + normal, nil
	}

	key, err := laneKey(lane)
	if err != nil {
		return 0, err
	}
	return q.rdb.LLen(ctx, key).Result()
}

func (q *RedisQueue) Clear(ctx context.Context, lane Lane) error {
	switch lane {
	case LaneAll:
		return q.rdb.Del(ctx, keyHigh, keyNormal).Err()
	default:
		key, err := laneKey(lane)
		if err != nil {
			return err
		}
		return q.rdb.Del(ctx, key).Err()
	}
}
