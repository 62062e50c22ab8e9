package store

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps job records for the life of the process. gmedia uses
// it to drive the progress display when no journal file is configured.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]JobRecord
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]JobRecord)}
}

// SaveJob stamps job.UpdatedAt and keeps a copy of it.
func (s *MemoryStore) SaveJob(job *JobRecord) error {
	job.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) GetJob(id string) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

// ListJobs returns every job, most recently updated first.
func (s *MemoryStore) ListJobs() ([]*JobRecord, error) {
	s.mu.Lock()
	jobs := make([]*JobRecord, 0, len(s.jobs))
	for _, j := range s.jobs {
		j := j
		jobs = append(jobs, &j)
	}
	s.mu.Unlock()

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
	})
	return jobs, nil
}

func (s *MemoryStore) Close() error { return nil }
