// Package redisstore caches iteration snapshots of running simulations in
// Redis. Entries expire after a TTL; the iteration index of a run is a
// sorted set scored by iteration.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"universe-server/internal/physics"
	"universe-server/internal/shared/errors"
	"universe-server/internal/storage"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "universe:run:"

type Store struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

var _ storage.SnapshotStore = (*Store)(nil)

// NewStore keeps snapshots for ttl. A ttl of zero keeps them forever.
func NewStore(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func indexKey(runID int64) string {
	return fmt.Sprintf("%s%d:iterations", keyPrefix, runID)
}

func iterationKey(runID int64, iteration int) string {
	return fmt.Sprintf("%s%d:iteration:%d", keyPrefix, runID, iteration)
}

func (s *Store) SaveIterationSnapshot(ctx context.Context, runID int64, iteration int, u *physics.Universe) error {
	logger := s.logger.With("component", "redis_snapshot_store", "operation", "save_iteration",
		"run_id", runID, "iteration", iteration)

	records := storage.Records(u)
	data, err := json.Marshal(records)
	if err != nil {
		return errors.WrapValidation("universe cannot be encoded", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, iterationKey(runID, iteration), data, s.ttl)
		pipe.ZAdd(ctx, indexKey(runID), redis.Z{
			Score:  float64(iteration),
			Member: strconv.Itoa(iteration),
		})
		if s.ttl > 0 {
			pipe.Expire(ctx, indexKey(runID), s.ttl)
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to cache iteration snapshot", "error", err)
		return errors.WrapExternal("failed to save iteration snapshot", err)
	}

	logger.Debug("Iteration snapshot cached", "bodies", len(records), "ttl", s.ttl)
	return nil
}

func (s *Store) LoadIterationSnapshot(ctx context.Context, runID int64, iteration int) (*physics.Universe, error) {
	data, err := s.client.Get(ctx, iterationKey(runID, iteration)).Bytes()
	if err == redis.Nil {
		return nil, errors.NotFoundf("iteration %d of run %d not found", iteration, runID)
	}
	if err != nil {
		s.logger.Error("Failed to read iteration snapshot",
			"run_id", runID, "iteration", iteration, "error", err)
		return nil, errors.WrapExternal("failed to load iteration snapshot", err)
	}

	var records []storage.BodyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.WrapValidation("iteration snapshot is corrupt", err)
	}
	return storage.Universe(records), nil
}

// ListIterations drops index entries whose snapshot has already expired.
func (s *Store) ListIterations(ctx context.Context, runID int64) ([]int, error) {
	logger := s.logger.With("component", "redis_snapshot_store", "operation", "list_iterations", "run_id", runID)

	members, err := s.client.ZRange(ctx, indexKey(runID), 0, -1).Result()
	if err != nil {
		logger.Error("Failed to read iteration index", "error", err)
		return nil, errors.WrapExternal("failed to list iterations", err)
	}
	if len(members) == 0 {
		return []int{}, nil
	}

	exists := make([]*redis.IntCmd, len(members))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, m := range members {
			it, _ := strconv.Atoi(m)
			exists[i] = pipe.Exists(ctx, iterationKey(runID, it))
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to check iteration snapshots", "error", err)
		return nil, errors.WrapExternal("failed to list iterations", err)
	}

	iterations := make([]int, 0, len(members))
	var stale []any
	for i, m := range members {
		it, convErr := strconv.Atoi(m)
		if convErr != nil || exists[i].Val() == 0 {
			stale = append(stale, m)
			continue
		}
		iterations = append(iterations, it)
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, indexKey(runID), stale...).Err(); err != nil {
			logger.Warn("Failed to prune expired iterations", "error", err)
		} else {
			logger.Debug("Pruned expired iterations", "count", len(stale))
		}
	}

	return iterations, nil
}
