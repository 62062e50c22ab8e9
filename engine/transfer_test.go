package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/franksops/gomedia/store"
)

func TestTransfer_ProcessesEveryJob(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]string)

	err := Transfer(context.Background(), TransferOptions{Workers: 3},
		WalkProducer(newTreeLister(), OpCopy, "/root", "/dest"),
		func(ctx context.Context, job TransferJob) error {
			mu.Lock()
			seen[job.SourcePath] = job.DestinationPath
			mu.Unlock()
			return nil
		})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	if len(seen) != 6 {
		t.Fatalf("Expected 6 jobs, got %d: %v", len(seen), seen)
	}
	if seen["/root/dir1/dir2/file3.txt"] != "/dest/dir1/dir2/file3.txt" {
		t.Errorf("Unexpected destination %q", seen["/root/dir1/dir2/file3.txt"])
	}
}

func TestTransfer_FirstFailureCancels(t *testing.T) {
	boom := errors.New("disk full")

	produce := func(ctx context.Context, jobs JobChannel) error {
		for i := 0; i < 1000; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case jobs <- TransferJob{Op: OpCopy, SourcePath: "/f"}:
			}
		}
		return nil
	}

	var handled atomic.Int32
	err := Transfer(context.Background(), TransferOptions{Workers: 1}, produce,
		func(ctx context.Context, job TransferJob) error {
			handled.Add(1)
			return boom
		})

	if !errors.Is(err, boom) {
		t.Fatalf("Expected %v, got %v", boom, err)
	}
	if errors.Is(err, context.Canceled) {
		t.Errorf("Expected the producer's cancellation to be dropped, got %v", err)
	}
	if !strings.Contains(err.Error(), "copy /f") {
		t.Errorf("Expected job context in error, got %q", err)
	}
	if handled.Load() >= 1000 {
		t.Error("Expected remaining jobs to be skipped after the failure")
	}
}

func TestTransfer_ProducerError(t *testing.T) {
	err := Transfer(context.Background(), TransferOptions{},
		WalkProducer(newMockLister(), OpCopy, "/missing", "/dest"),
		func(ctx context.Context, job TransferJob) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "/missing") {
		t.Fatalf("Expected stat error for /missing, got %v", err)
	}
}

func TestTransfer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Transfer(ctx, TransferOptions{Workers: 2},
		WalkProducer(newTreeLister(), OpCopy, "/root", "/dest"),
		func(ctx context.Context, job TransferJob) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestTransfer_TracksJobs(t *testing.T) {
	mockStore := NewMockStore()
	opts := TransferOptions{
		Workers: 2,
		Tracker: NewJobTracker(mockStore, DefaultCheckpointConfig),
	}

	err := Transfer(context.Background(), opts,
		WalkProducer(newTreeLister(), OpMove, "/root", "/dest"),
		func(ctx context.Context, job TransferJob) error { return nil })
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	jobs, _ := mockStore.ListJobs()
	if len(jobs) != 6 {
		t.Fatalf("Expected 6 journaled jobs, got %d", len(jobs))
	}
	for _, j := range jobs {
		if j.State != store.StateCompleted {
			t.Errorf("Expected %s for %s, got %s", store.StateCompleted, j.SourcePath, j.State)
		}
		if j.Op != OpMove {
			t.Errorf("Expected op %s, got %s", OpMove, j.Op)
		}
	}
}
