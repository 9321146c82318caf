package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docucast/api/internal/model"
)

const keyPrefix = "job:"

// maxTxRetries bounds optimistic-lock retries when two writers race on one id.
const maxTxRetries = 5

// RedisStore keeps one JSON record per job under job:<id> with a retention
// TTL. Expiry doubles as the purge policy for terminal jobs.
type RedisStore struct {
	rdb       *redis.Client
	retention time.Duration
}

func NewRedisStore(rdb *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{
		rdb:       rdb,
		retention: retention,
	}
}

func jobKey(id string) string {
	return keyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, jobKey(job.ID), data, s.retention).Result()
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	if !ok {
		return fmt.Errorf("job id %s already exists", job.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Update runs mutate inside a WATCH transaction so concurrent mutations of
// the same id serialize. A lost race is retried with a fresh read.
func (s *RedisStore) Update(ctx context.Context, id string, mutate func(*model.Job) error) (*model.Job, error) {
	key := jobKey(id)
	var updated *model.Job

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}

		if err := mutate(&job); err != nil {
			return err
		}
		job.UpdatedAt = time.Now()

		out, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.retention)
			return nil
		})
		if err == nil {
			updated = &job
		}
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("job %s: update contention, gave up after %d attempts", id, maxTxRetries)
}

func (s *RedisStore) ScanStale(ctx context.Context, cutoff time.Time) ([]*model.Job, error) {
	var stale []*model.Job

	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // expired between scan and read
			}
			return nil, err
		}

		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			continue
		}
		if !job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			stale = append(stale, &job)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return stale, nil
}
