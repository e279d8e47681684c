package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"async-chat-broker/internal/apperr"
	"async-chat-broker/internal/logging"
	"async-chat-broker/internal/models"
)

var _ Store = (*RedisStore)(nil)

const (
	updateRetries = 10
	// readBatch bounds how many records one pipelined round trip fetches.
	readBatch = 100
)

// RedisStore keeps one JSON record per job plus a sorted-set index scored by
// creation time, so sweeps can walk the table without SCAN.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	indexKey  string
	recordTTL time.Duration
	log       *zerolog.Logger
}

// NewRedisStore builds a store on an existing client. recordTTL, when positive,
// expires records that outlive the reaper; the index is cleaned lazily.
func NewRedisStore(client *redis.Client, recordTTL time.Duration, logger *zerolog.Logger) *RedisStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RedisStore{
		client:    client,
		keyPrefix: "chatjob:",
		indexKey:  "chatjob:index",
		recordTTL: recordTTL,
		log:       logging.Component(logger, "redis_store"),
	}
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

func (s *RedisStore) Put(ctx context.Context, job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(job.ID), data, s.recordTTL)
	pipe.ZAdd(ctx, s.indexKey, redis.Z{Score: float64(job.CreatedAt.UnixMilli()), Member: job.ID})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (models.Job, bool, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, fmt.Errorf("get job: %w", err)
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return models.Job{}, false, fmt.Errorf("unmarshal job: %w", err)
	}
	return job, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

// ForEach walks the index oldest first. Index entries whose record expired are removed.
func (s *RedisStore) ForEach(ctx context.Context, fn func(models.Job) bool) error {
	ids, err := s.client.ZRange(ctx, s.indexKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read job index: %w", err)
	}
	return s.visit(ctx, ids, fn)
}

// ForEachCreatedBefore walks, oldest first, only the jobs whose createdAt
// millisecond is at or before cutoff's.
func (s *RedisStore) ForEachCreatedBefore(ctx context.Context, cutoff time.Time, fn func(models.Job) bool) error {
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("read job index: %w", err)
	}
	return s.visit(ctx, ids, fn)
}

// visit loads ids in pipelined batches and feeds them to fn in order.
func (s *RedisStore) visit(ctx context.Context, ids []string, fn func(models.Job) bool) error {
	var stale []any
	defer func() { s.dropFromIndex(ctx, stale) }()

	for start := 0; start < len(ids); start += readBatch {
		batch := ids[start:min(start+readBatch, len(ids))]
		cmds := make([]*redis.StringCmd, len(batch))
		_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, id := range batch {
				cmds[i] = pipe.Get(ctx, s.key(id))
			}
			return nil
		})
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("get jobs: %w", err)
		}
		for i, cmd := range cmds {
			data, err := cmd.Bytes()
			if errors.Is(err, redis.Nil) {
				stale = append(stale, batch[i])
				continue
			}
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}
			var job models.Job
			if err := json.Unmarshal(data, &job); err != nil {
				return fmt.Errorf("unmarshal job %s: %w", batch[i], err)
			}
			if !fn(job) {
				return nil
			}
		}
	}
	return nil
}

func (s *RedisStore) dropFromIndex(ctx context.Context, ids []any) {
	if len(ids) == 0 {
		return
	}
	if err := s.client.ZRem(ctx, s.indexKey, ids...).Err(); err != nil {
		s.log.Warn().Err(err).Int("count", len(ids)).Msg("drop expired ids from job index")
	}
}

// Update runs mutate inside a WATCH/MULTI transaction and retries on contention.
func (s *RedisStore) Update(ctx context.Context, id string, mutate func(*models.Job) (bool, error)) (models.Job, error) {
	key := s.key(id)
	var result models.Job

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return apperr.NotFound("job %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		var job models.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("unmarshal job: %w", err)
		}
		changed, err := mutate(&job)
		if err != nil {
			return err
		}
		result = job
		if !changed {
			return nil
		}
		out, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return models.Job{}, err
		}
		return result, nil
	}
	return models.Job{}, fmt.Errorf("update job %s: too much contention", id)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
