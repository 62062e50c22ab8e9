package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/franksops/gomedia/store"
)

// CheckpointConfig decides how often the bytes copied for a running job are
// saved. Whichever threshold is crossed first triggers a save.
type CheckpointConfig struct {
	BytesInterval int64
	TimeInterval  time.Duration
}

// DefaultCheckpointConfig saves every 10 MB or every 5 seconds.
var DefaultCheckpointConfig = CheckpointConfig{
	BytesInterval: 10 * 1024 * 1024,
	TimeInterval:  5 * time.Second,
}

// JobTracker journals the jobs of a transfer in a store.Store. A job is
// saved as pending, then in progress, at checkpoints while its bytes are
// written and once more with its outcome. A nil *JobTracker is valid and
// journals nothing.
type JobTracker struct {
	store  store.Store
	config CheckpointConfig

	mu       sync.Mutex
	active   map[string]*store.JobRecord
	onUpdate func(store.JobRecord)
}

// NewJobTracker creates a JobTracker saving into s.
func NewJobTracker(s store.Store, config CheckpointConfig) *JobTracker {
	return &JobTracker{
		store:  s,
		config: config,
		active: make(map[string]*store.JobRecord),
	}
}

// OnUpdate registers fn to receive a copy of every record after it is
// saved. It must be called before the tracker is used; fn may be called from
// several workers at once.
func (jt *JobTracker) OnUpdate(fn func(store.JobRecord)) {
	if jt == nil {
		return
	}
	jt.onUpdate = fn
}

// Run journals job around a call to handler and returns handler's error.
func (jt *JobTracker) Run(ctx context.Context, job TransferJob, handler JobHandler) error {
	if jt == nil {
		return handler(ctx, job)
	}

	rec, err := jt.start(job)
	if err != nil {
		return fmt.Errorf("failed to journal job: %w", err)
	}
	defer jt.forget(job.ID)

	if err := handler(ctx, job); err != nil {
		_ = jt.update(rec, func(r *store.JobRecord) {
			r.State = store.StateFailed
			r.Error = err.Error()
		})
		return err
	}
	return jt.update(rec, func(r *store.JobRecord) {
		r.State = store.StateCompleted
		r.BytesTransferred = r.TotalBytes
	})
}

func (jt *JobTracker) start(job TransferJob) (*store.JobRecord, error) {
	rec := &store.JobRecord{
		ID:              job.ID,
		Op:              job.Op,
		SourcePath:      job.SourcePath,
		DestinationPath: job.DestinationPath,
		State:           store.StatePending,
		Folder:          job.IsDir(),
	}
	if job.FileInfo != nil && !rec.Folder {
		rec.TotalBytes = job.FileInfo.Size()
	}

	jt.mu.Lock()
	jt.active[job.ID] = rec
	jt.mu.Unlock()

	if err := jt.update(rec, func(*store.JobRecord) {}); err != nil {
		jt.forget(job.ID)
		return nil, err
	}
	if err := jt.update(rec, func(r *store.JobRecord) { r.State = store.StateInProgress }); err != nil {
		jt.forget(job.ID)
		return nil, err
	}
	return rec, nil
}

// update mutates rec under the lock and saves a snapshot outside it, so one
// slow save does not stall the other workers. Updates of a single record
// come from the goroutine running its job and stay ordered.
func (jt *JobTracker) update(rec *store.JobRecord, mutate func(*store.JobRecord)) error {
	jt.mu.Lock()
	mutate(rec)
	snap := *rec
	jt.mu.Unlock()

	if err := jt.store.SaveJob(&snap); err != nil {
		return err
	}
	if jt.onUpdate != nil {
		jt.onUpdate(snap)
	}
	return nil
}

func (jt *JobTracker) forget(id string) {
	jt.mu.Lock()
	delete(jt.active, id)
	jt.mu.Unlock()
}

// checkpoint is best effort; a failed save never fails the write.
func (jt *JobTracker) checkpoint(id string, written int64) {
	jt.mu.Lock()
	rec := jt.active[id]
	jt.mu.Unlock()
	if rec == nil {
		return
	}
	_ = jt.update(rec, func(r *store.JobRecord) { r.BytesTransferred = written })
}

// WriterFor wraps w so the bytes written for jobID are checkpointed. On a
// nil tracker it returns w unchanged.
func (jt *JobTracker) WriterFor(w io.Writer, jobID string) io.Writer {
	if jt == nil {
		return w
	}
	return &ProgressWriter{
		w:       w,
		tracker: jt,
		jobID:   jobID,
		last:    time.Now(),
	}
}

// ProgressWriter counts the bytes of one job and checkpoints them. It is
// used by a single goroutine.
type ProgressWriter struct {
	w       io.Writer
	tracker *JobTracker
	jobID   string

	written int64
	saved   int64
	last    time.Time
}

// Write implements io.Writer.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	if n > 0 {
		pw.written += int64(n)
		cfg := pw.tracker.config
		if pw.written-pw.saved >= cfg.BytesInterval || time.Since(pw.last) >= cfg.TimeInterval {
			pw.tracker.checkpoint(pw.jobID, pw.written)
			pw.saved = pw.written
			pw.last = time.Now()
		}
	}
	return n, err
}

// Written returns the number of bytes written so far.
func (pw *ProgressWriter) Written() int64 {
	return pw.written
}
