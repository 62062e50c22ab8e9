// Package media is the entry point for file and folder management. A
// Facade forwards every operation to one storage adapter and sanitizes
// user-supplied names on the create paths.
package media

import (
	"context"

	"go.uber.org/zap"

	"github.com/franksops/gomedia/adapter"
	"github.com/franksops/gomedia/sanitize"
)

// Facade delegates to a single adapter. A Facade without an adapter still
// answers GetFiles with an empty listing; every other operation fails with
// a KindConfiguration error. It holds no state besides the adapter and is
// as safe for concurrent use as that adapter.
type Facade struct {
	adapter adapter.Adapter
	logger  *zap.Logger
}

// Option configures a Facade.
type Option func(*Facade)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Facade) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New returns a Facade bound to a, which may be nil.
func New(a adapter.Adapter, opts ...Option) *Facade {
	f := &Facade{adapter: a, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFromRegistry opens the adapter registered as name, or the first one
// when name is empty. An empty registry yields a Facade with no adapter.
func NewFromRegistry(ctx context.Context, reg *adapter.Registry, name string, opts ...Option) (*Facade, error) {
	if reg == nil || (reg.Len() == 0 && name == "") {
		return New(nil, opts...), nil
	}
	a, err := reg.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return New(a, opts...), nil
}

// Adapter returns the bound adapter, or nil.
func (f *Facade) Adapter() adapter.Adapter { return f.adapter }

func orRoot(p string) string {
	if p == "" {
		return adapter.Root
	}
	return p
}

// GetFile returns the entry at path; an empty path is the root.
func (f *Facade) GetFile(ctx context.Context, path string) (*adapter.FileEntry, error) {
	if f.adapter == nil {
		return nil, adapter.NotConfigured("get-file")
	}
	return f.adapter.GetFile(ctx, orRoot(path))
}

// GetFiles lists the folder at path, folders first then by name, keeping
// the entries whose name matches filter.
func (f *Facade) GetFiles(ctx context.Context, path, filter string) ([]*adapter.FileEntry, error) {
	if f.adapter == nil {
		return []*adapter.FileEntry{}, nil
	}
	return f.adapter.GetFiles(ctx, orRoot(path), filter)
}

// CreateFolder creates a folder inside path and returns the sanitized name
// it was stored under.
func (f *Facade) CreateFolder(ctx context.Context, name, path string) (string, error) {
	if f.adapter == nil {
		return "", adapter.NotConfigured("create-folder")
	}

	safe := sanitize.Name(name)
	if err := f.adapter.CreateFolder(ctx, safe, path); err != nil {
		f.logger.Debug("create folder failed", zap.String("name", safe), zap.String("path", path), zap.Error(err))
		return "", err
	}

	f.logger.Info("folder created", zap.String("name", safe), zap.String("path", path))
	return safe, nil
}

// CreateFile stores data as a new file inside path and returns the
// sanitized name it was stored under.
func (f *Facade) CreateFile(ctx context.Context, name, path string, data []byte) (string, error) {
	if f.adapter == nil {
		return "", adapter.NotConfigured("create-file")
	}

	safe := sanitize.Name(name)
	if err := f.adapter.CreateFile(ctx, safe, path, data); err != nil {
		f.logger.Debug("create file failed", zap.String("name", safe), zap.String("path", path), zap.Error(err))
		return "", err
	}

	f.logger.Info("file created", zap.String("name", safe), zap.String("path", path), zap.Int("size", len(data)))
	return safe, nil
}

// UpdateFile overwrites the existing file name inside path. The name is
// used as given; it addresses a file created earlier.
func (f *Facade) UpdateFile(ctx context.Context, name, path string, data []byte) error {
	if f.adapter == nil {
		return adapter.NotConfigured("update-file")
	}
	return f.adapter.UpdateFile(ctx, name, path, data)
}

// Delete removes the file or folder at path; a folder goes with everything
// inside it.
func (f *Facade) Delete(ctx context.Context, path string) error {
	if f.adapter == nil {
		return adapter.NotConfigured("delete")
	}
	return f.adapter.Delete(ctx, path)
}

// Copy duplicates src to dst. An existing dst is replaced only when force
// is set, and it survives a copy that fails part way.
func (f *Facade) Copy(ctx context.Context, src, dst string, force bool) error {
	if f.adapter == nil {
		return adapter.NotConfigured("copy")
	}
	return f.adapter.Copy(ctx, src, dst, force)
}

// Move relocates src to dst with the same overwrite policy as Copy.
func (f *Facade) Move(ctx context.Context, src, dst string, force bool) error {
	if f.adapter == nil {
		return adapter.NotConfigured("move")
	}
	return f.adapter.Move(ctx, src, dst, force)
}
