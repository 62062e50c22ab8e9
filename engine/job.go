package engine

import (
	"time"

	"github.com/google/uuid"
)

// FileInfo is the metadata the engine needs about a file or folder. It is
// satisfied by os.FileInfo as well as by the adapters' own entry types.
type FileInfo interface {
	Name() string
	Size() int64
	IsDir() bool
	ModTime() time.Time
}

// Operation names recorded on jobs.
const (
	OpCopy = "copy"
	OpMove = "move"
)

// TransferJob represents a single file or folder to be transferred from a
// source path to a destination path within one adapter.
type TransferJob struct {
	// ID uniquely identifies the job in the job store.
	ID string

	// Op is the operation that produced the job, e.g. OpCopy.
	Op string

	// SourcePath is the path to read from.
	SourcePath string

	// DestinationPath is the path to write to.
	DestinationPath string

	// FileInfo holds the metadata of the source entry. It is nil when the
	// producer did not stat the source.
	FileInfo FileInfo
}

// NewTransferJob returns a job with a fresh random ID.
func NewTransferJob(op, src, dst string, info FileInfo) TransferJob {
	return TransferJob{
		ID:              uuid.NewString(),
		Op:              op,
		SourcePath:      src,
		DestinationPath: dst,
		FileInfo:        info,
	}
}

// IsDir reports whether the job describes a folder.
func (j TransferJob) IsDir() bool {
	return j.FileInfo != nil && j.FileInfo.IsDir()
}

// JobChannel is a channel used to queue and dispatch TransferJobs to workers
// in the worker pool.
type JobChannel chan TransferJob
