// Package jobstore provides core.JobStore implementations.
//
// MemoryStore keeps jobs in process memory and suits single-instance
// deployments and tests. RedisStore keeps them in Redis so any instance
// behind a load balancer can serve the next chunk call.
//
// Both stores serialize jobs as JSON and bump the job version on every
// write, so a job read back from either store looks the same.
package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/core"
)

// DefaultReapInterval is how often expired jobs are purged from memory.
const DefaultReapInterval = time.Minute

type memoryEntry struct {
	data      []byte
	version   int64
	expiresAt time.Time
}

// MemoryStore is an in-process job store with TTL expiry.
// Expired entries are invisible immediately and freed by Reap.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements core.JobStore.
func (s *MemoryStore) Get(ctx context.Context, token string) (core.ImportJob, error) {
	s.mu.Lock()
	entry, ok := s.live(token)
	s.mu.Unlock()

	if !ok {
		return core.ImportJob{}, core.ErrNotFound
	}
	return decodeJob(entry.data)
}

// Put implements core.JobStore.
func (s *MemoryStore) Put(ctx context.Context, token string, job core.ImportJob, ttl time.Duration) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[token] = memoryEntry{
		data:      data,
		version:   job.Version,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// CompareAndSwap implements core.JobStore.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, token string, expected int64, job core.ImportJob, ttl time.Duration) (int64, error) {
	job.Version = expected + 1
	data, err := encodeJob(job)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(token)
	if !ok {
		return 0, core.ErrNotFound
	}
	if entry.version != expected {
		return 0, core.ErrVersionMismatch
	}

	s.entries[token] = memoryEntry{
		data:      data,
		version:   job.Version,
		expiresAt: s.now().Add(ttl),
	}
	return job.Version, nil
}

// Delete implements core.JobStore.
func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	delete(s.entries, token)
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries held, including expired ones not yet reaped.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Reap deletes every expired entry and returns how many were removed.
func (s *MemoryStore) Reap() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, token)
			removed++
		}
	}
	return removed
}

// StartReaper purges expired jobs every interval until ctx is cancelled.
// It is meant to run in its own goroutine.
func (s *MemoryStore) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReapInterval
	}

	slog.Info("job reaper started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("job reaper stopped")
			return
		case <-ticker.C:
			if removed := s.Reap(); removed > 0 {
				slog.Info("expired import jobs reaped", "count", removed, "remaining", s.Len())
			}
		}
	}
}

// live returns the entry for token if it has not expired. Caller holds mu.
func (s *MemoryStore) live(token string) (memoryEntry, bool) {
	entry, ok := s.entries[token]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, token)
		return memoryEntry{}, false
	}
	return entry, true
}

func encodeJob(job core.ImportJob) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	return data, nil
}

func decodeJob(data []byte) (core.ImportJob, error) {
	var job core.ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		return core.ImportJob{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
