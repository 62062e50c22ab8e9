package engine

import (
	"context"
	"fmt"
	"path"
)

// Lister is the read side of a tree the Walker can traverse. Paths are
// slash-separated.
type Lister interface {
	Stat(ctx context.Context, path string) (FileInfo, error)
	List(ctx context.Context, path string) ([]FileInfo, error)
}

// Walker traverses a directory iteratively to push TransferJobs to a channel.
// It avoids deep recursion to prevent stack overflows on very deep directory structures.
type Walker struct {
	Source  Lister
	JobChan JobChannel
	Op      string
}

// NewWalker creates a new iterative directory walker whose jobs carry op.
func NewWalker(src Lister, jobChan JobChannel, op string) *Walker {
	return &Walker{
		Source:  src,
		JobChan: jobChan,
		Op:      op,
	}
}

// Walk starts an iterative (stack-based) walk of sourcePath. Every folder,
// the root included, yields a job before any of its children, followed by
// one job per file.
func (w *Walker) Walk(ctx context.Context, sourcePath string, destPath string) error {
	stat, err := w.Source.Stat(ctx, sourcePath)
	if err != nil {
		return fmt.Errorf("failed to stat source %s: %w", sourcePath, err)
	}

	if err := w.emit(ctx, sourcePath, destPath, stat); err != nil {
		return err
	}
	if !stat.IsDir() {
		return nil
	}

	// Paths on the stack are relative to sourcePath so the destination can
	// be derived from them.
	stack := []string{""}

	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := w.Source.List(ctx, path.Join(sourcePath, rel))
		if err != nil {
			return fmt.Errorf("failed to list directory %s: %w", path.Join(sourcePath, rel), err)
		}

		for _, entry := range entries {
			entryRel := path.Join(rel, entry.Name())
			if entry.IsDir() {
				stack = append(stack, entryRel)
			}
			if err := w.emit(ctx, path.Join(sourcePath, entryRel), path.Join(destPath, entryRel), entry); err != nil {
				return err
			}
		}
	}

	return nil
}

func (w *Walker) emit(ctx context.Context, src, dst string, info FileInfo) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.JobChan <- NewTransferJob(w.Op, src, dst, info):
		return nil
	}
}
