package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/franksops/gomedia/engine"
)

// ensure interface is implemented
var _ Adapter = (*S3Adapter)(nil)

// maxDeleteBatch is the most keys a DeleteObjects request accepts.
const maxDeleteBatch = 1000

// S3Client is the subset of the S3 API the adapter uses. *s3.Client
// satisfies it; tests substitute an in-memory fake.
type S3Client interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
}

// S3Config addresses a bucket on AWS S3 or an S3-compatible service.
type S3Config struct {
	Bucket         string
	Region         string
	Prefix         string // key prefix acting as the adapter root
	AccessKeyID    string // optional; the default credential chain is used when empty
	SecretKey      string
	Endpoint       string // for S3-compatible services such as MinIO
	ForcePathStyle bool
}

// S3Option configures an S3Adapter.
type S3Option func(*s3Options)

type s3Options struct {
	client   S3Client
	logger   *zap.Logger
	transfer engine.TransferOptions
}

// WithS3Client replaces the SDK client, e.g. with a fake in tests.
func WithS3Client(client S3Client) S3Option {
	return func(o *s3Options) {
		o.client = client
	}
}

// WithS3Logger sets the logger.
func WithS3Logger(logger *zap.Logger) S3Option {
	return func(o *s3Options) {
		o.logger = logger
	}
}

// WithS3Transfer sets the worker count and job tracker for folder copies.
func WithS3Transfer(opts engine.TransferOptions) S3Option {
	return func(o *s3Options) {
		o.transfer = opts
	}
}

// S3Adapter stores files as objects in an S3 bucket. Folders are
// zero-byte "name/" marker objects or simply shared key prefixes. It is
// safe for concurrent use.
type S3Adapter struct {
	client   S3Client
	uploader *manager.Uploader
	bucket   string
	keys     keyspace
	logger   *zap.Logger
	transfer engine.TransferOptions
}

// NewS3Adapter creates an S3Adapter for cfg.
func NewS3Adapter(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Adapter, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	options := &s3Options{}
	for _, opt := range opts {
		opt(options)
	}

	client := options.client
	if client == nil {
		if cfg.Region == "" {
			return nil, errors.New("s3 region is required")
		}

		awsOptions := []func(*config.LoadOptions) error{
			config.WithRegion(cfg.Region),
		}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions,
				config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID,
					cfg.SecretKey,
					"",
				)),
			)
		}

		awsConfig, err := config.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, fmt.Errorf("unable to load AWS config: %w", err)
		}

		client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.ForcePathStyle
		})
	}

	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &S3Adapter{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		keys:     newKeyspace(cfg.Prefix),
		logger:   logger,
		transfer: options.transfer,
	}, nil
}

// stat returns the entry at the cleaned path p.
func (a *S3Adapter) stat(ctx context.Context, op, p string) (*FileEntry, error) {
	if p == Root {
		return newDirEntry(p, time.Time{}), nil
	}

	key := a.keys.key(p)
	head, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		modified := aws.ToTime(head.LastModified)
		e := newFileEntry(p, aws.ToInt64(head.ContentLength), modified, modified)
		e.MimeType = aws.ToString(head.ContentType)
		return e, nil
	}
	if err = classifyS3Error(op, p, err); KindOf(err) != KindNotFound {
		return nil, err
	}

	// No object under the exact key; it is a folder if anything lives
	// below it, marker included.
	out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(a.keys.dirPrefix(p)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, classifyS3Error(op, p, err)
	}
	if len(out.Contents) == 0 && len(out.CommonPrefixes) == 0 {
		return nil, NotFound(op, p)
	}

	var modified time.Time
	if len(out.Contents) > 0 && aws.ToString(out.Contents[0].Key) == a.keys.dirPrefix(p) {
		modified = aws.ToTime(out.Contents[0].LastModified)
	}
	return newDirEntry(p, modified), nil
}

// exists reports whether anything lives at the cleaned path p.
func (a *S3Adapter) exists(ctx context.Context, op, p string) (bool, error) {
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

// checkParent refuses to create entries below a file.
func (a *S3Adapter) checkParent(ctx context.Context, op, target string) error {
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

func (a *S3Adapter) GetFile(ctx context.Context, p string) (*FileEntry, error) {
	const op = "get-file"

	cleaned, err := checkPath(op, p)
	if err != nil {
		return nil, err
	}
	return a.stat(ctx, op, cleaned)
}

func (a *S3Adapter) GetFiles(ctx context.Context, p, filter string) ([]*FileEntry, error) {
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
	var continuationToken *string

	for {
		out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(dirPrefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, classifyS3Error(op, cleaned, err)
		}

		for _, cp := range out.CommonPrefixes {
			child := a.keys.path(aws.ToString(cp.Prefix))
			if MatchFilter(filter, path.Base(child)) {
				entries = append(entries, newDirEntry(child, time.Time{}))
			}
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if key == dirPrefix {
				continue // the folder's own marker
			}
			child := a.keys.path(key)
			if !MatchFilter(filter, path.Base(child)) {
				continue
			}
			modified := aws.ToTime(obj.LastModified)
			entries = append(entries, newFileEntry(child, aws.ToInt64(obj.Size), modified, modified))
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	SortEntries(entries)
	return entries, nil
}

func (a *S3Adapter) CreateFolder(ctx context.Context, name, dir string) error {
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

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.keys.dirPrefix(target)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return classifyS3Error(op, target, err)
	}

	a.logger.Debug("folder created", zap.String("path", target))
	return nil
}

func (a *S3Adapter) CreateFile(ctx context.Context, name, dir string, data []byte) error {
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

	if err := a.upload(ctx, op, target, data); err != nil {
		return err
	}

	a.logger.Debug("file created", zap.String("path", target), zap.Int("size", len(data)))
	return nil
}

func (a *S3Adapter) UpdateFile(ctx context.Context, name, dir string, data []byte) error {
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

	if err := a.upload(ctx, op, target, data); err != nil {
		return err
	}

	a.logger.Debug("file updated", zap.String("path", target), zap.Int("size", len(data)))
	return nil
}

func (a *S3Adapter) upload(ctx context.Context, op, p string, data []byte) error {
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.keys.key(p)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimetype.Detect(data).String()),
	})
	if err != nil {
		return classifyS3Error(op, p, err)
	}
	return nil
}

func (a *S3Adapter) Delete(ctx context.Context, p string) error {
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

func (a *S3Adapter) deleteEntry(ctx context.Context, op string, e *FileEntry) error {
	if !e.IsDir() {
		_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(a.keys.key(e.Path)),
		})
		return classifyS3Error(op, e.Path, err)
	}

	keys, err := a.entryKeys(ctx, op, e)
	if err != nil {
		return err
	}
	return a.deleteKeys(ctx, op, e.Path, keys)
}

// entryKeys returns the key of a file or every key below a folder.
func (a *S3Adapter) entryKeys(ctx context.Context, op string, e *FileEntry) ([]string, error) {
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

// deleteKeys removes keys in DeleteObjects batches.
func (a *S3Adapter) deleteKeys(ctx context.Context, op, p string, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return classifyS3Error(op, p, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return Invalid(op, a.keys.path(aws.ToString(first.Key)),
				fmt.Sprintf("delete failed for %d objects: %s", len(out.Errors), aws.ToString(first.Message)))
		}
	}
	return nil
}

// objectInfo describes a listed key; it satisfies engine.FileInfo.
type objectInfo struct {
	key      string
	size     int64
	modified time.Time
}

func (o objectInfo) Name() string       { return path.Base(o.key) }
func (o objectInfo) Size() int64        { return o.size }
func (o objectInfo) IsDir() bool        { return strings.HasSuffix(o.key, "/") }
func (o objectInfo) ModTime() time.Time { return o.modified }

// listKeys returns every object below the folder p, its marker included.
func (a *S3Adapter) listKeys(ctx context.Context, op, p string) ([]objectInfo, error) {
	var keys []objectInfo
	var continuationToken *string

	for {
		out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(a.keys.dirPrefix(p)),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, classifyS3Error(op, p, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, objectInfo{
				key:      aws.ToString(obj.Key),
				size:     aws.ToInt64(obj.Size),
				modified: aws.ToTime(obj.LastModified),
			})
		}
		if !aws.ToBool(out.IsTruncated) {
			return keys, nil
		}
		continuationToken = out.NextContinuationToken
	}
}

func (a *S3Adapter) Copy(ctx context.Context, src, dst string, force bool) error {
	return a.copyOrMove(ctx, "copy", engine.OpCopy, src, dst, force)
}

func (a *S3Adapter) Move(ctx context.Context, src, dst string, force bool) error {
	return a.copyOrMove(ctx, "move", engine.OpMove, src, dst, force)
}

// copyOrMove copies before it removes anything. A forced replace drops the
// old destination keys the copy did not overwrite only once every object is
// in place; a failed copy deletes the new keys it wrote.
func (a *S3Adapter) copyOrMove(ctx context.Context, op, jobOp, src, dst string, force bool) error {
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

	var written keySet
	if err := a.copyEntry(ctx, op, jobOp, srcEntry, d, &written); err != nil {
		a.logger.Error(op+" failed", zap.String("src", s), zap.String("dst", d), zap.Error(err))
		// the caller's context may be what failed
		cleanup := context.WithoutCancel(ctx)
		if derr := a.deleteKeys(cleanup, op, d, without(written.list(), stale)); derr != nil {
			a.logger.Warn("cannot clean up failed "+op, zap.String("dst", d), zap.Error(derr))
		}
		return err
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

// copyEntry copies every object of src to below dst through the transfer
// engine, one CopyObject per key. Each key written is added to written.
func (a *S3Adapter) copyEntry(ctx context.Context, op, jobOp string, src *FileEntry, dst string, written *keySet) error {
	produce := func(ctx context.Context, jobs engine.JobChannel) error {
		if !src.IsDir() {
			info := objectInfo{key: a.keys.key(src.Path), size: src.Size, modified: src.ModifiedAt}
			return sendJob(ctx, jobs, engine.NewTransferJob(jobOp, src.Path, dst, info))
		}

		keys, err := a.listKeys(ctx, op, src.Path)
		if err != nil {
			return err
		}
		srcPrefix, dstPrefix := a.keys.dirPrefix(src.Path), a.keys.dirPrefix(dst)
		for _, k := range keys {
			job := engine.NewTransferJob(jobOp, a.keys.path(k.key), a.keys.path(rebase(k.key, srcPrefix, dstPrefix)), k)
			if err := sendJob(ctx, jobs, job); err != nil {
				return err
			}
		}
		return nil
	}

	err := engine.Transfer(ctx, a.transfer, produce, func(ctx context.Context, job engine.TransferJob) error {
		srcKey, dstKey := a.keys.key(job.SourcePath), a.keys.key(job.DestinationPath)
		if job.IsDir() {
			srcKey, dstKey = srcKey+"/", dstKey+"/"
		}
		_, err := a.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(a.bucket),
			Key:        aws.String(dstKey),
			CopySource: aws.String(copySource(a.bucket, srcKey)),
		})
		if err != nil {
			return err
		}
		written.add(dstKey)
		return nil
	})
	return classifyS3Error(op, src.Path, err)
}

// copySource builds the URL-encoded "bucket/key" CopyObject expects.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

func sendJob(ctx context.Context, jobs engine.JobChannel, job engine.TransferJob) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case jobs <- job:
		return nil
	}
}
