package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tagforge/api/internal/model"
)

// RedisJobStore implements JobStore on Redis. Records live as JSON under
// musicjob:<id>; each owner has a ZSET index scored by creation time so
// listings come back newest first without scanning.
type RedisJobStore struct {
	redis *redis.Client
}

// NewRedisJobStore creates a job store backed by the given Redis client.
func NewRedisJobStore(redisClient *redis.Client) *RedisJobStore {
	return &RedisJobStore{redis: redisClient}
}

func jobKey(id string) string {
	return fmt.Sprintf("musicjob:%s", id)
}

func ownerIndexKey(ownerID string) string {
	return fmt.Sprintf("musicjobs:%s", ownerID)
}

// CreateJob stores a new record and adds it to the owner's index.
func (s *RedisJobStore) CreateJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := s.redis.Set(ctx, jobKey(job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	member := redis.Z{
		Score:  float64(job.CreatedAt.UnixNano()),
		Member: job.ID,
	}
	if err := s.redis.ZAdd(ctx, ownerIndexKey(job.OwnerID), member).Err(); err != nil {
		return fmt.Errorf("failed to index job: %w", err)
	}

	return nil
}

// GetJob fetches a record by id.
func (s *RedisJobStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// UpdateJob overwrites an existing record.
func (s *RedisJobStore) UpdateJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, 0).Err()
}

// DeleteJob removes a record and its index entry.
func (s *RedisJobStore) DeleteJob(ctx context.Context, id string) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}

	if err := s.redis.Del(ctx, jobKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return s.redis.ZRem(ctx, ownerIndexKey(job.OwnerID), id).Err()
}

// ListJobs returns the owner's jobs newest first, excluding soft-deleted
// records. Ids in the index whose record has vanished are skipped.
func (s *RedisJobStore) ListJobs(ctx context.Context, ownerID string) ([]*model.Job, error) {
	ids, err := s.redis.ZRevRange(ctx, ownerIndexKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			if err == ErrJobNotFound {
				continue
			}
			return nil, err
		}
		if job.DeletedAt != nil {
			continue
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}
