package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MoldoAndr/hashbreaker/internal/models"
	"github.com/MoldoAndr/hashbreaker/pkg/debug"
)

const jobKeyPrefix = "job:"

// RedisStore persists job records as JSON under job:<id> with a TTL
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis using a redis:// URL
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second

	return &RedisStore{
		client: redis.NewClient(opts),
		ttl:    ttl,
	}, nil
}

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

// Get returns the job record, or (nil, nil) when the key is absent
func (s *RedisStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	payload, err := s.client.Get(ctx, jobKey(jobID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}

	var job models.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	return &job, nil
}

// Set writes the full record with the given TTL
func (s *RedisStore) Set(ctx context.Context, jobID string, job *models.Job, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", jobID, err)
	}

	if err := s.client.Set(ctx, jobKey(jobID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set job %s: %w", jobID, err)
	}
	return nil
}

// Update merges the patch into the current record and writes it back,
// refreshing the TTL. Not atomic: a concurrent writer between the read
// and the write wins or loses wholesale.
func (s *RedisStore) Update(ctx context.Context, jobID string, patch models.JobPatch) (bool, error) {
	current, err := s.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if current == nil {
		debug.Warning("Job %s not found for update", jobID)
		return false, nil
	}

	merged := models.Merge(*current, patch)
	if err := s.Set(ctx, jobID, &merged, s.ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Ping reports whether Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}
