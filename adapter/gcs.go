package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/franksops/gomedia/engine"
)

var _ Adapter = (*GCSAdapter)(nil)

// GCSConfig addresses a Google Cloud Storage bucket.
type GCSConfig struct {
	Bucket          string
	Prefix          string // object name prefix acting as the adapter root
	CredentialsFile string // optional; application default credentials otherwise
	Endpoint        string // optional, e.g. a local emulator
}

// GCSAdapter stores files as objects in a GCS bucket, with the same
// folder model as S3Adapter. It is safe for concurrent use.
type GCSAdapter struct {
	client   *storage.Client
	bucket   *storage.BucketHandle
	keys     keyspace
	logger   *zap.Logger
	transfer engine.TransferOptions
}

// NewGCSAdapter creates a storage client for cfg. Extra client options are
// applied after the ones derived from cfg.
func NewGCSAdapter(ctx context.Context, cfg GCSConfig, extra ...option.ClientOption) (*GCSAdapter, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	opts = append(opts, extra...)

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSAdapter{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		keys:   newKeyspace(cfg.Prefix),
		logger: zap.NewNop(),
	}, nil
}

// WithLogger sets the logger.
func (a *GCSAdapter) WithLogger(logger *zap.Logger) *GCSAdapter {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// WithTransfer sets the worker count and job tracker for folder copies.
func (a *GCSAdapter) WithTransfer(opts engine.TransferOptions) *GCSAdapter {
	a.transfer = opts
	return a
}

// Close closes the storage client.
func (a *GCSAdapter) Close() error {
	return a.client.Close()
}

// classifyGCSError converts a storage error for op on p into an *Error.
func classifyGCSError(op, p string, err error) error {
	if err == nil {
		return nil
	}

	var ae *Error
	if errors.As(err, &ae) {
		return err
	}

	if errors.Is(err, storage.ErrObjectNotExist) {
		e := NotFound(op, p)
		e.Err = err
		return e
	}
	if errors.Is(err, storage.ErrBucketNotExist) {
		return &Error{Kind: KindConfiguration, Op: op, Path: p, Message: "bucket does not exist", Err: err}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusNotFound:
			e := NotFound(op, p)
			e.Err = err
			return e
		case http.StatusPreconditionFailed, http.StatusConflict:
			e := Conflict(op, p)
			e.Err = err
			return e
		case http.StatusUnauthorized, http.StatusForbidden:
			return &Error{Kind: KindAdapter, Op: op, Path: p, Message: fmt.Sprintf("gcs rejected the request (status %d)", gErr.Code), Err: err}
		}
	}

	return Wrap(op, p, err)
}

func (a *GCSAdapter) stat(ctx context.Context, op, p string) (*FileEntry, error) {
	if p == Root {
		return newDirEntry(p, time.Time{}), nil
	}

	attrs, err := a.bucket.Object(a.keys.key(p)).Attrs(ctx)
	if err == nil {
		e := newFileEntry(p, attrs.Size, attrs.Created, attrs.Updated)
		e.MimeType = attrs.ContentType
		return e, nil
	}
	if err = classifyGCSError(op, p, err); !IsNotFound(err) {
		return nil, err
	}

	it := a.bucket.Objects(ctx, &storage.Query{Prefix: a.keys.dirPrefix(p)})
	first, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return nil, NotFound(op, p)
	}
	if err != nil {
		return nil, classifyGCSError(op, p, err)
	}

	e := newDirEntry(p, time.Time{})
	if first.Name == a.keys.dirPrefix(p) {
		e.CreatedAt, e.ModifiedAt = first.Created, first.Updated
	}
	return e, nil
}

func (a *GCSAdapter) exists(ctx context.Context, op, p string) (bool, error) {
	_, err := a.stat(ctx, op, p)
	switch {
	case err == nil:
		return true, nil
	case IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

func (a *GCSAdapter) checkParent(ctx context.Context, op, target string) error {
	parent := path.Dir(target)
	if parent == Root {
		return nil
	}
	e, err := a.stat(ctx, op, parent)
	if err == nil && !e.IsDir() {
		return Invalid(op, parent, "parent is a file")
	}
	if err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

func (a *GCSAdapter) GetFile(ctx context.Context, p string) (*FileEntry, error) {
	const op = "get-file"

	cleaned, err := checkPath(op, p)
	if err != nil {
		return nil, err
	}
	return a.stat(ctx, op, cleaned)
}

func (a *GCSAdapter) GetFiles(ctx context.Context, p, filter string) ([]*FileEntry, error) {
	const op = "get-files"

	cleaned, err := checkPath(op, p)
	if err != nil {
		return nil, err
	}
	e, err := a.stat(ctx, op, cleaned)
	if err != nil {
		return nil, err
	}
	if !e.IsDir() {
		return []*FileEntry{e}, nil
	}

	dirPrefix := a.keys.dirPrefix(cleaned)
	entries := make([]*FileEntry, 0)

	it := a.bucket.Objects(ctx, &storage.Query{Prefix: dirPrefix, Delimiter: "/"})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyGCSError(op, cleaned, err)
		}

		if attrs.Prefix != "" {
			child := a.keys.path(attrs.Prefix)
			if MatchFilter(filter, path.Base(child)) {
				entries = append(entries, newDirEntry(child, time.Time{}))
			}
			continue
		}
		if attrs.Name == dirPrefix {
			continue
		}
		child := a.keys.path(attrs.Name)
		if !MatchFilter(filter, path.Base(child)) {
			continue
		}
		fe := newFileEntry(child, attrs.Size, attrs.Created, attrs.Updated)
		fe.MimeType = attrs.ContentType
		entries = append(entries, fe)
	}

	SortEntries(entries)
	return entries, nil
}

// write stores data at key. With mustNotExist the write fails with a
// Conflict if the object appeared in the meantime.
func (a *GCSAdapter) write(ctx context.Context, op, p, key string, data []byte, mustNotExist bool) error {
	obj := a.bucket.Object(key)
	if mustNotExist {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}

	w := obj.NewWriter(ctx)
	w.ContentType = mimetype.Detect(data).String()
	if _, err := w.Write(data); err != nil {
		w.Close()
		return classifyGCSError(op, p, err)
	}
	if err := w.Close(); err != nil {
		return classifyGCSError(op, p, err)
	}
	return nil
}

func (a *GCSAdapter) CreateFolder(ctx context.Context, name, dir string) error {
	const op = "create-folder"

	target, err := checkEntry(op, name, dir)
	if err != nil {
		return err
	}
	if found, err := a.exists(ctx, op, target); err != nil {
		return err
	} else if found {
		return Conflict(op, target)
	}
	if err := a.checkParent(ctx, op, target); err != nil {
		return err
	}
	if err := a.write(ctx, op, target, a.keys.dirPrefix(target), nil, true); err != nil {
		return err
	}

	a.logger.Debug("folder created", zap.String("path", target))
	return nil
}

func (a *GCSAdapter) CreateFile(ctx context.Context, name, dir string, data []byte) error {
	const op = "create-file"

	target, err := checkEntry(op, name, dir)
	if err != nil {
		return err
	}
	if found, err := a.exists(ctx, op, target); err != nil {
		return err
	} else if found {
		return Conflict(op, target)
	}
	if err := a.checkParent(ctx, op, target); err != nil {
		return err
	}
	if err := a.write(ctx, op, target, a.keys.key(target), data, true); err != nil {
		return err
	}

	a.logger.Debug("file created", zap.String("path", target), zap.Int("size", len(data)))
	return nil
}

func (a *GCSAdapter) UpdateFile(ctx context.Context, name, dir string, data []byte) error {
	const op = "update-file"

	target, err := checkEntry(op, name, dir)
	if err != nil {
		return err
	}
	e, err := a.stat(ctx, op, target)
	if err != nil {
		return err
	}
	if e.IsDir() {
		return Invalid(op, target, "path is a folder")
	}
	if err := a.write(ctx, op, target, a.keys.key(target), data, false); err != nil {
		return err
	}

	a.logger.Debug("file updated", zap.String("path", target), zap.Int("size", len(data)))
	return nil
}

func (a *GCSAdapter) Delete(ctx context.Context, p string) error {
	const op = "delete"

	cleaned, err := checkPath(op, p)
	if err != nil {
		return err
	}
	if cleaned == Root {
		return Invalid(op, cleaned, "cannot delete the root folder")
	}
	e, err := a.stat(ctx, op, cleaned)
	if err != nil {
		return err
	}
	if err := a.deleteEntry(ctx, op, e); err != nil {
		return err
	}

	a.logger.Debug("deleted", zap.String("path", cleaned))
	return nil
}

func (a *GCSAdapter) deleteEntry(ctx context.Context, op string, e *FileEntry) error {
	if !e.IsDir() {
		return classifyGCSError(op, e.Path, a.bucket.Object(a.keys.key(e.Path)).Delete(ctx))
	}

	keys, err := a.entryKeys(ctx, op, e)
	if err != nil {
		return err
	}
	return a.deleteKeys(ctx, op, e.Path, keys)
}

// entryKeys returns the name of a file object or every name below a folder.
func (a *GCSAdapter) entryKeys(ctx context.Context, op string, e *FileEntry) ([]string, error) {
	if !e.IsDir() {
		return []string{a.keys.key(e.Path)}, nil
	}
	infos, err := a.listKeys(ctx, op, e.Path)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(infos))
	for _, k := range infos {
		keys = append(keys, k.key)
	}
	return keys, nil
}

// deleteKeys removes objects through the worker pool; GCS has no batch
// delete in this client. Objects already gone are skipped.
func (a *GCSAdapter) deleteKeys(ctx context.Context, op, p string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	produce := func(ctx context.Context, jobs engine.JobChannel) error {
		for _, k := range keys {
			if err := sendJob(ctx, jobs, engine.NewTransferJob("delete", a.keys.path(k), "", objectInfo{key: k})); err != nil {
				return err
			}
		}
		return nil
	}
	err := engine.Transfer(ctx, engine.TransferOptions{Workers: a.transfer.Workers}, produce,
		func(ctx context.Context, job engine.TransferJob) error {
			err := a.bucket.Object(job.FileInfo.(objectInfo).key).Delete(ctx)
			if errors.Is(err, storage.ErrObjectNotExist) {
				return nil
			}
			return err
		})
	return classifyGCSError(op, p, err)
}

func (a *GCSAdapter) listKeys(ctx context.Context, op, p string) ([]objectInfo, error) {
	var keys []objectInfo
	it := a.bucket.Objects(ctx, &storage.Query{Prefix: a.keys.dirPrefix(p)})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return keys, nil
		}
		if err != nil {
			return nil, classifyGCSError(op, p, err)
		}
		keys = append(keys, objectInfo{key: attrs.Name, size: attrs.Size, modified: attrs.Updated})
	}
}

func (a *GCSAdapter) Copy(ctx context.Context, src, dst string, force bool) error {
	return a.copyOrMove(ctx, "copy", engine.OpCopy, src, dst, force)
}

func (a *GCSAdapter) Move(ctx context.Context, src, dst string, force bool) error {
	return a.copyOrMove(ctx, "move", engine.OpMove, src, dst, force)
}

// copyOrMove follows S3Adapter.copyOrMove: objects are copied first and the
// old destination objects the copy did not overwrite go only afterwards.
func (a *GCSAdapter) copyOrMove(ctx context.Context, op, jobOp, src, dst string, force bool) error {
	s, d, err := checkTransfer(op, src, dst)
	if err != nil {
		return err
	}

	srcEntry, err := a.stat(ctx, op, s)
	if err != nil {
		return err
	}
	var stale []string
	dstEntry, err := a.stat(ctx, op, d)
	switch {
	case err == nil && !force:
		return Conflict(op, d)
	case err == nil:
		if stale, err = a.entryKeys(ctx, op, dstEntry); err != nil {
			return err
		}
	case !IsNotFound(err):
		return err
	}
	if err := a.checkParent(ctx, op, d); err != nil {
		return err
	}

	produce := func(ctx context.Context, jobs engine.JobChannel) error {
		if !srcEntry.IsDir() {
			info := objectInfo{key: a.keys.key(s), size: srcEntry.Size, modified: srcEntry.ModifiedAt}
			return sendJob(ctx, jobs, engine.NewTransferJob(jobOp, s, d, info))
		}
		keys, err := a.listKeys(ctx, op, s)
		if err != nil {
			return err
		}
		srcPrefix, dstPrefix := a.keys.dirPrefix(s), a.keys.dirPrefix(d)
		for _, k := range keys {
			job := engine.NewTransferJob(jobOp, a.keys.path(k.key), a.keys.path(rebase(k.key, srcPrefix, dstPrefix)), k)
			if err := sendJob(ctx, jobs, job); err != nil {
				return err
			}
		}
		return nil
	}

	var written keySet
	err = engine.Transfer(ctx, a.transfer, produce, func(ctx context.Context, job engine.TransferJob) error {
		srcKey, dstKey := a.keys.key(job.SourcePath), a.keys.key(job.DestinationPath)
		if job.IsDir() {
			srcKey, dstKey = srcKey+"/", dstKey+"/"
		}
		if _, err := a.bucket.Object(dstKey).CopierFrom(a.bucket.Object(srcKey)).Run(ctx); err != nil {
			return err
		}
		written.add(dstKey)
		return nil
	})
	if err != nil {
		a.logger.Error(op+" failed", zap.String("src", s), zap.String("dst", d), zap.Error(err))
		cleanup := context.WithoutCancel(ctx)
		if derr := a.deleteKeys(cleanup, op, d, without(written.list(), stale)); derr != nil {
			a.logger.Warn("cannot clean up failed "+op, zap.String("dst", d), zap.Error(derr))
		}
		return classifyGCSError(op, s, err)
	}
	if err := a.deleteKeys(ctx, op, d, without(stale, written.list())); err != nil {
		return err
	}

	if jobOp == engine.OpMove {
		if err := a.deleteEntry(ctx, op, srcEntry); err != nil {
			return err
		}
	}

	a.logger.Debug(op+" done", zap.String("src", s), zap.String("dst", d), zap.Int("replaced", len(stale)))
	return nil
}
