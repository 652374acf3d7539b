package store

import (
	"context"
	"sync"
	"time"

	"github.com/MoldoAndr/hashbreaker/internal/models"
)

// JobStore persists job records in a TTL key-value store.
//
// Update is read current -> merge fields -> write full record, refreshing
// the TTL. It is not transactional: a cancel request issued concurrently
// with a phase-boundary update can be lost or reordered. Exactly one
// worker owns a given job at a time, so this window only matters for the
// cancellation path.
type JobStore interface {
	// Get returns the job record, or (nil, nil) when the key is absent.
	Get(ctx context.Context, jobID string) (*models.Job, error)
	// Set writes the full record with the given TTL.
	Set(ctx context.Context, jobID string, job *models.Job, ttl time.Duration) error
	// Update merges the patch into the current record and writes it back,
	// refreshing the TTL. Returns false when the record does not exist.
	Update(ctx context.Context, jobID string, patch models.JobPatch) (bool, error)
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// MemoryStore is an in-process JobStore with the same read-merge-write
// semantics as the Redis store. Used for tests and embedded runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	ttl     time.Duration
}

type memoryRecord struct {
	job       models.Job
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory job store with the given default TTL
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]memoryRecord),
		ttl:     ttl,
	}
}

// Get returns a copy of the stored record, or (nil, nil) when absent
func (s *MemoryStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[jobID]
	if !ok || time.Now().After(rec.expiresAt) {
		return nil, nil
	}
	job := rec.job
	return &job, nil
}

// Set writes the full record
func (s *MemoryStore) Set(ctx context.Context, jobID string, job *models.Job, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[jobID] = memoryRecord{
		job:       *job,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Update merges the patch into the current record, refreshing the TTL
func (s *MemoryStore) Update(ctx context.Context, jobID string, patch models.JobPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[jobID]
	if !ok || time.Now().After(rec.expiresAt) {
		return false, nil
	}

	merged := models.Merge(rec.job, patch)
	s.records[jobID] = memoryRecord{
		job:       merged,
		expiresAt: time.Now().Add(s.ttl),
	}
	return true, nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
