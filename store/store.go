// Package store journals transfer jobs in an embedded bbolt database so a
// folder copy or move can be inspected after the process exits.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

// ErrJobNotFound is returned when no job with the requested ID is journaled.
var ErrJobNotFound = errors.New("job not found")

var jobsBucket = []byte("jobs")

// openTimeout bounds how long NewBoltStore waits for the file lock held by
// another gmedia process.
const openTimeout = time.Second

// JobState is the lifecycle stage of one journaled job.
type JobState string

const (
	StatePending    JobState = "Pending"
	StateInProgress JobState = "InProgress"
	StateCompleted  JobState = "Completed"
	StateFailed     JobState = "Failed"
)

// Finished reports whether no further updates are expected for the job.
func (s JobState) Finished() bool {
	return s == StateCompleted || s == StateFailed
}

// JobRecord is one file or folder of a copy or move.
type JobRecord struct {
	ID               string    `json:"id"`
	Op               string    `json:"op"`
	SourcePath       string    `json:"source_path"`
	DestinationPath  string    `json:"destination_path"`
	Folder           bool      `json:"folder,omitempty"`
	State            JobState  `json:"state"`
	BytesTransferred int64     `json:"bytes_transferred"`
	TotalBytes       int64     `json:"total_bytes"`
	Error            string    `json:"error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Store persists job records.
type Store interface {
	SaveJob(job *JobRecord) error
	GetJob(id string) (*JobRecord, error)
	ListJobs() ([]*JobRecord, error)
	Close() error
}

// BoltStore is a Store backed by a single bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens or creates the journal at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(jobsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create jobs bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// SaveJob stamps job.UpdatedAt and writes it, replacing any record with the
// same ID.
func (s *BoltStore) SaveJob(job *JobRecord) error {
	job.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(jobsBucket).Put([]byte(job.ID), data); err != nil {
			return fmt.Errorf("failed to put job: %w", err)
		}
		return nil
	})
}

// GetJob returns the record for id or ErrJobNotFound.
func (s *BoltStore) GetJob(id string) (*JobRecord, error) {
	var job *JobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(jobsBucket).Get([]byte(id))
		if data == nil {
			return ErrJobNotFound
		}
		var err error
		job, err = decodeJob(id, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns every journaled job, most recently updated first.
func (s *BoltStore) ListJobs() ([]*JobRecord, error) {
	var jobs []*JobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(jobsBucket).ForEach(func(k, v []byte) error {
			job, err := decodeJob(string(k), v)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
	})
	return jobs, nil
}

// PruneJobs deletes finished jobs last updated before cutoff and returns how
// many were removed. Pending and running jobs are kept.
func (s *BoltStore) PruneJobs(cutoff time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(jobsBucket)

		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			job, err := decodeJob(string(k), v)
			if err != nil {
				return err
			}
			if job.State.Finished() && job.UpdatedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		// bbolt forbids deleting from a bucket while iterating it
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("failed to delete job %s: %w", k, err)
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func decodeJob(id string, data []byte) (*JobRecord, error) {
	var job JobRecord
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}
