package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var _ Adapter = (*BoltAdapter)(nil)

var (
	entriesBucket = []byte("entries")
	blobsBucket   = []byte("blobs")
)

// boltRecord is the JSON stored for every path in the entries bucket.
type boltRecord struct {
	Type       EntryType `json:"type"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type,omitempty"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// BoltAdapter keeps files and folders in a single bbolt database file.
// Keys are cleaned adapter paths; every operation runs in one transaction,
// so copying or moving a tree is atomic.
type BoltAdapter struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// OpenBoltAdapter opens or creates the database at dbPath.
func OpenBoltAdapter(dbPath string) (*BoltAdapter, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		entries, err := tx.CreateBucketIfNotExists(entriesBucket)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(blobsBucket); err != nil {
			return err
		}
		if entries.Get([]byte(Root)) == nil {
			now := time.Now().UTC()
			return putRecord(entries, Root, &boltRecord{Type: TypeDir, CreatedAt: now, ModifiedAt: now})
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return &BoltAdapter{db: db, logger: zap.NewNop()}, nil
}

// WithLogger sets the logger.
func (a *BoltAdapter) WithLogger(logger *zap.Logger) *BoltAdapter {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Close closes the database.
func (a *BoltAdapter) Close() error {
	return a.db.Close()
}

func getRecord(b *bbolt.Bucket, p string) (*boltRecord, error) {
	data := b.Get([]byte(p))
	if data == nil {
		return nil, nil
	}
	var rec boltRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry %s: %w", p, err)
	}
	return &rec, nil
}

func putRecord(b *bbolt.Bucket, p string, rec *boltRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal entry %s: %w", p, err)
	}
	return b.Put([]byte(p), data)
}

func (rec *boltRecord) entry(p string) *FileEntry {
	var e *FileEntry
	if rec.Type == TypeDir {
		e = newDirEntry(p, rec.ModifiedAt)
		e.CreatedAt = rec.CreatedAt
		return e
	}
	e = newFileEntry(p, rec.Size, rec.CreatedAt, rec.ModifiedAt)
	e.MimeType = rec.MimeType
	e.Width, e.Height = rec.Width, rec.Height
	return e
}

// subtreePrefix is the key prefix of everything below folder p.
func subtreePrefix(p string) []byte {
	if p == Root {
		return []byte(Root)
	}
	return []byte(p + "/")
}

// subtreeKeys returns copies of every key strictly below p.
func subtreeKeys(b *bbolt.Bucket, p string) [][]byte {
	prefix := subtreePrefix(p)
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		if string(k) == Root {
			continue
		}
		keys = append(keys, bytes.Clone(k))
	}
	return keys
}

// ensureParents creates every missing folder from dir up to the root.
func ensureParents(entries *bbolt.Bucket, op, dir string, now time.Time) error {
	var missing []string
	for p := dir; p != Root; p = path.Dir(p) {
		rec, err := getRecord(entries, p)
		if err != nil {
			return err
		}
		if rec == nil {
			missing = append(missing, p)
			continue
		}
		if rec.Type != TypeDir {
			return Invalid(op, p, "parent is a file")
		}
		break
	}
	for _, p := range missing {
		if err := putRecord(entries, p, &boltRecord{Type: TypeDir, CreatedAt: now, ModifiedAt: now}); err != nil {
			return err
		}
	}
	return nil
}

func (a *BoltAdapter) GetFile(ctx context.Context, p string) (*FileEntry, error) {
	const op = "get-file"

	if err := ctx.Err(); err != nil {
		return nil, Wrap(op, p, err)
	}
	cleaned, err := checkPath(op, p)
	if err != nil {
		return nil, err
	}

	var entry *FileEntry
	err = a.db.View(func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx.Bucket(entriesBucket), cleaned)
		if err != nil {
			return err
		}
		if rec == nil {
			return NotFound(op, cleaned)
		}
		entry = rec.entry(cleaned)
		return nil
	})
	if err != nil {
		return nil, Wrap(op, cleaned, err)
	}
	return entry, nil
}

func (a *BoltAdapter) GetFiles(ctx context.Context, p, filter string) ([]*FileEntry, error) {
	const op = "get-files"

	if err := ctx.Err(); err != nil {
		return nil, Wrap(op, p, err)
	}
	cleaned, err := checkPath(op, p)
	if err != nil {
		return nil, err
	}

	entries := make([]*FileEntry, 0)
	err = a.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		rec, err := getRecord(b, cleaned)
		if err != nil {
			return err
		}
		if rec == nil {
			return NotFound(op, cleaned)
		}
		if rec.Type != TypeDir {
			entries = append(entries, rec.entry(cleaned))
			return nil
		}

		prefix := subtreePrefix(cleaned)
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			name := string(k[len(prefix):])
			if name == "" || strings.Contains(name, "/") || !MatchFilter(filter, name) {
				continue
			}
			var child boltRecord
			if err := json.Unmarshal(v, &child); err != nil {
				return fmt.Errorf("failed to unmarshal entry %s: %w", k, err)
			}
			entries = append(entries, child.entry(string(k)))
		}
		return nil
	})
	if err != nil {
		return nil, Wrap(op, cleaned, err)
	}

	SortEntries(entries)
	return entries, nil
}

func (a *BoltAdapter) CreateFolder(ctx context.Context, name, dir string) error {
	const op = "create-folder"

	if err := ctx.Err(); err != nil {
		return Wrap(op, dir, err)
	}
	target, err := checkEntry(op, name, dir)
	if err != nil {
		return err
	}

	err = a.db.Update(func(tx *bbolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		if entries.Get([]byte(target)) != nil {
			return Conflict(op, target)
		}
		now := time.Now().UTC()
		if err := ensureParents(entries, op, path.Dir(target), now); err != nil {
			return err
		}
		return putRecord(entries, target, &boltRecord{Type: TypeDir, CreatedAt: now, ModifiedAt: now})
	})
	if err != nil {
		return Wrap(op, target, err)
	}

	a.logger.Debug("folder created", zap.String("path", target))
	return nil
}

func (a *BoltAdapter) CreateFile(ctx context.Context, name, dir string, data []byte) error {
	const op = "create-file"

	if err := ctx.Err(); err != nil {
		return Wrap(op, dir, err)
	}
	target, err := checkEntry(op, name, dir)
	if err != nil {
		return err
	}

	err = a.db.Update(func(tx *bbolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		if entries.Get([]byte(target)) != nil {
			return Conflict(op, target)
		}
		now := time.Now().UTC()
		if err := ensureParents(entries, op, path.Dir(target), now); err != nil {
			return err
		}
		return a.putFile(tx, target, data, now, now)
	})
	if err != nil {
		return Wrap(op, target, err)
	}

	a.logger.Debug("file created", zap.String("path", target), zap.Int("size", len(data)))
	return nil
}

func (a *BoltAdapter) putFile(tx *bbolt.Tx, p string, data []byte, created, modified time.Time) error {
	e := newFileEntry(p, int64(len(data)), created, modified)
	inspectBytes(e, data)

	rec := &boltRecord{
		Type:       TypeFile,
		Size:       e.Size,
		MimeType:   e.MimeType,
		Width:      e.Width,
		Height:     e.Height,
		CreatedAt:  created,
		ModifiedAt: modified,
	}
	if err := putRecord(tx.Bucket(entriesBucket), p, rec); err != nil {
		return err
	}
	return tx.Bucket(blobsBucket).Put([]byte(p), data)
}

func (a *BoltAdapter) UpdateFile(ctx context.Context, name, dir string, data []byte) error {
	const op = "update-file"

	if err := ctx.Err(); err != nil {
		return Wrap(op, dir, err)
	}
	target, err := checkEntry(op, name, dir)
	if err != nil {
		return err
	}

	err = a.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx.Bucket(entriesBucket), target)
		if err != nil {
			return err
		}
		if rec == nil {
			return NotFound(op, target)
		}
		if rec.Type == TypeDir {
			return Invalid(op, target, "path is a folder")
		}
		return a.putFile(tx, target, data, rec.CreatedAt, time.Now().UTC())
	})
	if err != nil {
		return Wrap(op, target, err)
	}

	a.logger.Debug("file updated", zap.String("path", target), zap.Int("size", len(data)))
	return nil
}

func (a *BoltAdapter) Delete(ctx context.Context, p string) error {
	const op = "delete"

	if err := ctx.Err(); err != nil {
		return Wrap(op, p, err)
	}
	cleaned, err := checkPath(op, p)
	if err != nil {
		return err
	}
	if cleaned == Root {
		return Invalid(op, cleaned, "cannot delete the root folder")
	}

	err = a.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(entriesBucket).Get([]byte(cleaned)) == nil {
			return NotFound(op, cleaned)
		}
		return deleteTree(tx, cleaned)
	})
	if err != nil {
		return Wrap(op, cleaned, err)
	}

	a.logger.Debug("deleted", zap.String("path", cleaned))
	return nil
}

// deleteTree removes p and everything below it from both buckets.
func deleteTree(tx *bbolt.Tx, p string) error {
	entries, blobs := tx.Bucket(entriesBucket), tx.Bucket(blobsBucket)
	keys := append(subtreeKeys(entries, p), []byte(p))
	for _, k := range keys {
		if err := entries.Delete(k); err != nil {
			return err
		}
		if err := blobs.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (a *BoltAdapter) Copy(ctx context.Context, src, dst string, force bool) error {
	return a.transfer(ctx, "copy", src, dst, force, false)
}

func (a *BoltAdapter) Move(ctx context.Context, src, dst string, force bool) error {
	return a.transfer(ctx, "move", src, dst, force, true)
}

func (a *BoltAdapter) transfer(ctx context.Context, op, src, dst string, force, removeSource bool) error {
	if err := ctx.Err(); err != nil {
		return Wrap(op, src, err)
	}
	s, d, err := checkTransfer(op, src, dst)
	if err != nil {
		return err
	}

	err = a.db.Update(func(tx *bbolt.Tx) error {
		entries, blobs := tx.Bucket(entriesBucket), tx.Bucket(blobsBucket)

		if entries.Get([]byte(s)) == nil {
			return NotFound(op, s)
		}
		if entries.Get([]byte(d)) != nil {
			if !force {
				return Conflict(op, d)
			}
			if err := deleteTree(tx, d); err != nil {
				return err
			}
		}
		if err := ensureParents(entries, op, path.Dir(d), time.Now().UTC()); err != nil {
			return err
		}

		// Values are only valid until the next write, so read everything
		// before writing anything.
		type item struct {
			from, to    []byte
			entry, blob []byte
		}
		srcPrefix, dstPrefix := s, d
		keys := append([][]byte{[]byte(s)}, subtreeKeys(entries, s)...)
		items := make([]item, 0, len(keys))
		for _, k := range keys {
			it := item{
				from:  k,
				to:    []byte(rebase(string(k), srcPrefix, dstPrefix)),
				entry: bytes.Clone(entries.Get(k)),
			}
			if blob := blobs.Get(k); blob != nil {
				it.blob = bytes.Clone(blob)
			}
			items = append(items, it)
		}

		for _, it := range items {
			if err := entries.Put(it.to, it.entry); err != nil {
				return err
			}
			if it.blob != nil {
				if err := blobs.Put(it.to, it.blob); err != nil {
					return err
				}
			}
		}

		if removeSource {
			return deleteTree(tx, s)
		}
		return nil
	})
	if err != nil {
		a.logger.Error(op+" failed", zap.String("src", s), zap.String("dst", d), zap.Error(err))
		return Wrap(op, s, err)
	}

	a.logger.Debug(op+" done", zap.String("src", s), zap.String("dst", d))
	return nil
}
