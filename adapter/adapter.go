// Package adapter defines the storage adapter contract used by the media
// facade, the error kinds every adapter reports, and the adapters that ship
// with gomedia: local disk, an embedded bbolt store, Amazon S3 and Google
// Cloud Storage.
//
// Paths are slash-separated and rooted at "/", the adapter's own root. Every
// adapter cleans incoming paths with Clean and rejects those that escape the
// root.
package adapter

import (
	"context"
	"time"
)

// Root is the path of an adapter's root folder.
const Root = "/"

// Adapter is a storage backend for files and folders.
type Adapter interface {
	// GetFile returns the entry at path.
	GetFile(ctx context.Context, path string) (*FileEntry, error)

	// GetFiles lists the folder at path, folders first then by name. Only
	// entries whose name matches filter are returned; an empty filter
	// matches everything. On a file path it returns that file alone.
	GetFiles(ctx context.Context, path, filter string) ([]*FileEntry, error)

	// CreateFolder creates the folder name inside path.
	CreateFolder(ctx context.Context, name, path string) error

	// CreateFile stores data as the new file name inside path.
	CreateFile(ctx context.Context, name, path string, data []byte) error

	// UpdateFile replaces the content of the existing file name inside path.
	UpdateFile(ctx context.Context, name, path string, data []byte) error

	// Delete removes the file or folder at path, folders recursively.
	Delete(ctx context.Context, path string) error

	// Copy duplicates the file or folder tree at src to dst. An existing
	// dst is replaced only when force is set.
	Copy(ctx context.Context, src, dst string, force bool) error

	// Move relocates src to dst with the same overwrite policy as Copy.
	Move(ctx context.Context, src, dst string, force bool) error
}

// EntryType tells files and folders apart.
type EntryType string

const (
	TypeFile EntryType = "file"
	TypeDir  EntryType = "dir"
)

// FileEntry describes a file or folder. Width and Height are set for images
// whose header the adapter could read.
type FileEntry struct {
	Type       EntryType `json:"type"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Extension  string    `json:"extension,omitempty"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type,omitempty"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// IsDir reports whether e is a folder.
func (e *FileEntry) IsDir() bool { return e.Type == TypeDir }
