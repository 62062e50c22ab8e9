package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/franksops/gomedia/engine"
)

// tmpMarker tags the hidden sibling a forced copy or move fills before it
// replaces the destination.
const tmpMarker = ".tmp-"

// ensure interface is implemented
var _ Adapter = (*LocalAdapter)(nil)

// LocalAdapter stores files in a directory on the local file system. It is
// safe for concurrent use.
type LocalAdapter struct {
	basePath string
	logger   *zap.Logger
	transfer engine.TransferOptions
	verify   bool
	buffers  *engine.BufferPool
	digests  *engine.DigestPool
}

// NewLocalAdapter creates a LocalAdapter rooted at basePath. The directory
// is not created.
func NewLocalAdapter(basePath string) *LocalAdapter {
	return &LocalAdapter{
		basePath: basePath,
		logger:   zap.NewNop(),
		buffers:  engine.NewBufferPool(0),
		digests:  engine.NewDigestPool(),
	}
}

// WithLogger sets the logger.
func (a *LocalAdapter) WithLogger(logger *zap.Logger) *LocalAdapter {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// WithTransfer sets the worker count and job tracker used for tree copies.
func (a *LocalAdapter) WithTransfer(opts engine.TransferOptions) *LocalAdapter {
	a.transfer = opts
	return a
}

// WithVerify makes copies re-read every written file and compare its CRC64
// with the source.
func (a *LocalAdapter) WithVerify(verify bool) *LocalAdapter {
	a.verify = verify
	return a
}

// resolve cleans p and maps it below basePath.
func (a *LocalAdapter) resolve(op, p string) (string, string, error) {
	cleaned, err := checkPath(op, p)
	if err != nil {
		return "", "", err
	}
	full := a.fullPath(cleaned)
	if err := a.validatePath(full); err != nil {
		return "", "", Invalid(op, p, err.Error())
	}
	return cleaned, full, nil
}

func (a *LocalAdapter) fullPath(cleaned string) string {
	return filepath.Join(a.basePath, filepath.FromSlash(strings.TrimPrefix(cleaned, "/")))
}

// validatePath checks that fullPath stays within basePath.
func (a *LocalAdapter) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(a.basePath)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}
	if absPath != absBase && !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return errors.New("path escapes base directory")
	}
	return nil
}

func (a *LocalAdapter) entry(p, full string, info os.FileInfo) *FileEntry {
	if info.IsDir() {
		return newDirEntry(p, info.ModTime())
	}

	// No portable birth time; the modification time stands in.
	e := newFileEntry(p, info.Size(), info.ModTime(), info.ModTime())
	f, err := os.Open(full)
	if err != nil {
		a.logger.Warn("cannot inspect file", zap.String("path", p), zap.Error(err))
		return e
	}
	defer f.Close()
	if err := inspect(e, f); err != nil {
		a.logger.Warn("cannot inspect file", zap.String("path", p), zap.Error(err))
	}
	return e
}

func (a *LocalAdapter) GetFile(ctx context.Context, p string) (*FileEntry, error) {
	const op = "get-file"

	select {
	case <-ctx.Done():
		return nil, Wrap(op, p, ctx.Err())
	default:
	}

	cleaned, full, err := a.resolve(op, p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, Wrap(op, cleaned, err)
	}
	return a.entry(cleaned, full, info), nil
}

func (a *LocalAdapter) GetFiles(ctx context.Context, p, filter string) ([]*FileEntry, error) {
	const op = "get-files"

	select {
	case <-ctx.Done():
		return nil, Wrap(op, p, ctx.Err())
	default:
	}

	cleaned, full, err := a.resolve(op, p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, Wrap(op, cleaned, err)
	}
	if !info.IsDir() {
		return []*FileEntry{a.entry(cleaned, full, info)}, nil
	}

	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, Wrap(op, cleaned, err)
	}

	entries := make([]*FileEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !MatchFilter(filter, de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}
		entries = append(entries, a.entry(Join(cleaned, de.Name()), filepath.Join(full, de.Name()), info))
	}
	SortEntries(entries)
	return entries, nil
}

func (a *LocalAdapter) CreateFolder(ctx context.Context, name, dir string) error {
	const op = "create-folder"

	if err := ctx.Err(); err != nil {
		return Wrap(op, dir, err)
	}

	target, err := checkEntry(op, name, dir)
	if err != nil {
		return err
	}
	_, full, err := a.resolve(op, target)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return Wrap(op, target, err)
	}
	if err := os.Mkdir(full, 0755); err != nil {
		return Wrap(op, target, err)
	}

	a.logger.Debug("folder created", zap.String("path", target))
	return nil
}

func (a *LocalAdapter) CreateFile(ctx context.Context, name, dir string, data []byte) error {
	const op = "create-file"

	if err := ctx.Err(); err != nil {
		return Wrap(op, dir, err)
	}

	target, err := checkEntry(op, name, dir)
	if err != nil {
		return err
	}
	_, full, err := a.resolve(op, target)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return Wrap(op, target, err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return Wrap(op, target, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(full)
		return Wrap(op, target, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return Wrap(op, target, err)
	}

	a.logger.Debug("file created", zap.String("path", target), zap.Int("size", len(data)))
	return nil
}

func (a *LocalAdapter) UpdateFile(ctx context.Context, name, dir string, data []byte) error {
	const op = "update-file"

	if err := ctx.Err(); err != nil {
		return Wrap(op, dir, err)
	}

	target, err := checkEntry(op, name, dir)
	if err != nil {
		return err
	}
	_, full, err := a.resolve(op, target)
	if err != nil {
		return err
	}

	info, err := os.Stat(full)
	if err != nil {
		return Wrap(op, target, err)
	}
	if info.IsDir() {
		return Invalid(op, target, "path is a folder")
	}

	// Write beside the target and rename over it so readers never see a
	// partial file.
	tmp, err := os.CreateTemp(filepath.Dir(full), "."+info.Name()+".*")
	if err != nil {
		return Wrap(op, target, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Wrap(op, target, err)
	}
	if err := tmp.Close(); err != nil {
		return Wrap(op, target, err)
	}
	if err := os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return Wrap(op, target, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return Wrap(op, target, err)
	}

	a.logger.Debug("file updated", zap.String("path", target), zap.Int("size", len(data)))
	return nil
}

func (a *LocalAdapter) Delete(ctx context.Context, p string) error {
	const op = "delete"

	if err := ctx.Err(); err != nil {
		return Wrap(op, p, err)
	}

	cleaned, full, err := a.resolve(op, p)
	if err != nil {
		return err
	}
	if cleaned == Root {
		return Invalid(op, cleaned, "cannot delete the root folder")
	}
	if _, err := os.Lstat(full); err != nil {
		return Wrap(op, cleaned, err)
	}
	if err := os.RemoveAll(full); err != nil {
		return Wrap(op, cleaned, err)
	}

	a.logger.Debug("deleted", zap.String("path", cleaned))
	return nil
}

func (a *LocalAdapter) Copy(ctx context.Context, src, dst string, force bool) error {
	const op = "copy"

	s, d, replace, err := a.prepareTransfer(ctx, op, src, dst, force)
	if err != nil {
		return err
	}

	discard := func(target string) error { return os.RemoveAll(a.fullPath(target)) }
	err = a.replaceInto(d, replace, func(target string) error {
		return a.copyTree(ctx, engine.OpCopy, s, target)
	}, discard)
	if err != nil {
		a.logger.Error("copy failed", zap.String("src", s), zap.String("dst", d), zap.Error(err))
		return Wrap(op, s, err)
	}

	a.logger.Debug("copied", zap.String("src", s), zap.String("dst", d), zap.Bool("replaced", replace))
	return nil
}

func (a *LocalAdapter) Move(ctx context.Context, src, dst string, force bool) error {
	const op = "move"

	s, d, replace, err := a.prepareTransfer(ctx, op, src, dst, force)
	if err != nil {
		return err
	}

	copied := false
	fill := func(target string) error {
		err := os.Rename(a.fullPath(s), a.fullPath(target))
		if errors.Is(err, syscall.EXDEV) {
			// The base directory spans file systems; fall back to copy+delete.
			copied = true
			return a.copyTree(ctx, engine.OpMove, s, target)
		}
		return err
	}
	// a renamed source goes back where it came from
	discard := func(target string) error {
		if copied {
			return os.RemoveAll(a.fullPath(target))
		}
		if _, err := os.Lstat(a.fullPath(target)); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return os.Rename(a.fullPath(target), a.fullPath(s))
	}

	err = a.replaceInto(d, replace, fill, discard)
	if err == nil && copied {
		err = os.RemoveAll(a.fullPath(s))
	}
	if err != nil {
		a.logger.Error("move failed", zap.String("src", s), zap.String("dst", d), zap.Error(err))
		return Wrap(op, s, err)
	}

	a.logger.Debug("moved", zap.String("src", s), zap.String("dst", d), zap.Bool("replaced", replace))
	return nil
}

// prepareTransfer validates a copy or move. It reports whether dst exists
// and may be replaced; without force an existing dst is a conflict.
func (a *LocalAdapter) prepareTransfer(ctx context.Context, op, src, dst string, force bool) (string, string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", "", false, Wrap(op, src, err)
	}

	s, d, err := checkTransfer(op, src, dst)
	if err != nil {
		return "", "", false, err
	}
	for _, p := range []string{s, d} {
		if err := a.validatePath(a.fullPath(p)); err != nil {
			return "", "", false, Invalid(op, p, err.Error())
		}
	}

	if _, err := os.Lstat(a.fullPath(s)); err != nil {
		return "", "", false, Wrap(op, s, err)
	}

	dstFull := a.fullPath(d)
	replace := false
	if _, err := os.Lstat(dstFull); err == nil {
		if !force {
			return "", "", false, Conflict(op, d)
		}
		replace = true
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", "", false, Wrap(op, d, err)
	}

	if err := os.MkdirAll(filepath.Dir(dstFull), 0755); err != nil {
		return "", "", false, Wrap(op, d, err)
	}
	return s, d, replace, nil
}

// replaceInto runs fill against d or, when replace is set, against a hidden
// sibling of d that takes d's place only after fill succeeds. Whatever fill
// left behind is handed to discard when the transfer fails, so the old d
// survives a failed replace.
func (a *LocalAdapter) replaceInto(d string, replace bool, fill, discard func(target string) error) error {
	target := d
	if replace {
		target = path.Join(path.Dir(d), "."+path.Base(d)+tmpMarker+uuid.NewString())
	}

	if err := fill(target); err != nil {
		if derr := discard(target); derr != nil {
			a.logger.Warn("cannot clean up failed transfer", zap.String("path", target), zap.Error(derr))
		}
		return err
	}
	if !replace {
		return nil
	}

	full := a.fullPath(d)
	err := os.RemoveAll(full)
	if err == nil {
		err = os.Rename(a.fullPath(target), full)
	}
	if err != nil {
		if derr := discard(target); derr != nil {
			a.logger.Warn("cannot clean up failed transfer", zap.String("path", target), zap.Error(derr))
		}
		return err
	}
	return nil
}

// copyTree copies the file or folder s to d through the transfer engine.
// Folder modes are applied once every file is written so a read-only
// source folder does not lock its own copy.
func (a *LocalAdapter) copyTree(ctx context.Context, opName, s, d string) error {
	var (
		mu      sync.Mutex
		folders []copiedFolder
	)

	err := engine.Transfer(ctx, a.transfer,
		engine.WalkProducer(localLister{a}, opName, s, d),
		func(ctx context.Context, job engine.TransferJob) error {
			if !job.IsDir() {
				return a.copyJob(ctx, job)
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			full := a.fullPath(job.DestinationPath)
			if err := os.MkdirAll(full, 0755); err != nil {
				return err
			}
			if info, ok := job.FileInfo.(os.FileInfo); ok {
				mu.Lock()
				folders = append(folders, copiedFolder{full, info})
				mu.Unlock()
			}
			return nil
		})
	if err != nil {
		return err
	}

	// deepest first, so a parent's mtime is not bumped by its children
	sort.Slice(folders, func(i, j int) bool { return len(folders[i].path) > len(folders[j].path) })
	for _, f := range folders {
		if err := applyMetadata(f.path, f.info); err != nil {
			return err
		}
	}
	return nil
}

type copiedFolder struct {
	path string
	info os.FileInfo
}

func (a *LocalAdapter) copyJob(ctx context.Context, job engine.TransferJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcFull := a.fullPath(job.SourcePath)
	dstFull := a.fullPath(job.DestinationPath)
	info, _ := job.FileInfo.(os.FileInfo)

	if err := os.MkdirAll(filepath.Dir(dstFull), 0755); err != nil {
		return err
	}

	in, err := os.Open(srcFull)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dstFull, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	buf := a.buffers.Get()
	defer a.buffers.Put(buf)

	sum := a.digests.Get()
	defer a.digests.Put(sum)

	// Both ends are wrapped so CopyBuffer cannot bypass the pooled buffer.
	dst := struct{ io.Writer }{a.transfer.Tracker.WriterFor(out, job.ID)}
	if _, err := io.CopyBuffer(dst, sum.Tee(in), *buf); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if a.verify {
		if err := a.verifyCopy(dstFull, sum.Sum64(), *buf); err != nil {
			return err
		}
	}

	if err := applyMetadata(dstFull, info); err != nil {
		a.logger.Warn("cannot preserve metadata", zap.String("path", job.DestinationPath), zap.Error(err))
	}
	return nil
}

func (a *LocalAdapter) verifyCopy(fullPath string, want uint64, buf []byte) error {
	f, err := os.Open(fullPath)
	if err != nil {
		return err
	}
	defer f.Close()

	got, _, err := a.digests.Sum(f, buf)
	if err != nil {
		return err
	}
	return engine.Verify(got, want)
}

// localLister exposes the adapter tree to the engine walker.
type localLister struct {
	a *LocalAdapter
}

func (l localLister) Stat(ctx context.Context, p string) (engine.FileInfo, error) {
	info, err := os.Lstat(l.a.fullPath(p))
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (l localLister) List(ctx context.Context, p string) ([]engine.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	entries, err := os.ReadDir(l.a.fullPath(p))
	if err != nil {
		return nil, err
	}

	infos := make([]engine.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			// links could point outside the base directory
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}
