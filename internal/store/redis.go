package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"cflp/internal/costmatrix"
	"cflp/internal/model"
)

const maxRedisRuns = 500

// Redis stores records as plain string keys cflp:<kind>:<scenario> with no expiry;
// solve runs live in a capped list, newest first.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects using a redis:// URL (REDIS_URL).
func NewRedis(url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Redis{rdb: redis.NewClient(opt)}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

// Client exposes the underlying client so lockers and brokers can share it.
func (r *Redis) Client() *redis.Client { return r.rdb }

func redisKey(kind, scenario string) string { return "cflp:" + kind + ":" + scenario }

func (r *Redis) get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (r *Redis) LoadCostMatrix(ctx context.Context, scenario string) (*costmatrix.Matrix, error) {
	data, err := r.get(ctx, redisKey("cost_matrix", scenario))
	if err != nil {
		return nil, err
	}
	return decodeMatrix(data)
}

func (r *Redis) SaveCostMatrix(ctx context.Context, scenario string, m *costmatrix.Matrix) error {
	data, err := encodeMatrix(m)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, redisKey("cost_matrix", scenario), data, 0).Err()
}

func (r *Redis) DeleteCostMatrix(ctx context.Context, scenario string) error {
	n, err := r.rdb.Del(ctx, redisKey("cost_matrix", scenario)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Redis) SaveAssignment(ctx context.Context, scenario string, a model.Assignment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, redisKey("assignment", scenario), data, 0).Err()
}

func (r *Redis) LoadAssignment(ctx context.Context, scenario string) (model.Assignment, error) {
	data, err := r.get(ctx, redisKey("assignment", scenario))
	if err != nil {
		return nil, err
	}
	return decodeAssignment(data)
}

func (r *Redis) SaveSolveRun(ctx context.Context, run SolveRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	key := redisKey("runs", run.Scenario)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, maxRedisRuns-1)
		return nil
	})
	return err
}

func (r *Redis) ListSolveRuns(ctx context.Context, scenario string, limit int) ([]SolveRun, error) {
	items, err := r.rdb.LRange(ctx, redisKey("runs", scenario), 0, int64(runLimit(limit)-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]SolveRun, 0, len(items))
	for _, it := range items {
		var run SolveRun
		if err := json.Unmarshal([]byte(it), &run); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		out = append(out, run)
	}
	return out, nil
}

func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }
