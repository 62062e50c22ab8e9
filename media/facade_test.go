package media

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/gomedia/adapter"
)

type call struct {
	op   string
	args []any
}

// recordingAdapter records every call and answers with err.
type recordingAdapter struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (r *recordingAdapter) record(op string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{op: op, args: args})
}

func (r *recordingAdapter) last() call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func (r *recordingAdapter) GetFile(_ context.Context, p string) (*adapter.FileEntry, error) {
	r.record("GetFile", p)
	if r.err != nil {
		return nil, r.err
	}
	return &adapter.FileEntry{Type: adapter.TypeDir, Path: p}, nil
}

func (r *recordingAdapter) GetFiles(_ context.Context, p, filter string) ([]*adapter.FileEntry, error) {
	r.record("GetFiles", p, filter)
	return nil, r.err
}

func (r *recordingAdapter) CreateFolder(_ context.Context, name, p string) error {
	r.record("CreateFolder", name, p)
	return r.err
}

func (r *recordingAdapter) CreateFile(_ context.Context, name, p string, data []byte) error {
	r.record("CreateFile", name, p, string(data))
	return r.err
}

func (r *recordingAdapter) UpdateFile(_ context.Context, name, p string, data []byte) error {
	r.record("UpdateFile", name, p, string(data))
	return r.err
}

func (r *recordingAdapter) Delete(_ context.Context, p string) error {
	r.record("Delete", p)
	return r.err
}

func (r *recordingAdapter) Copy(_ context.Context, src, dst string, force bool) error {
	r.record("Copy", src, dst, force)
	return r.err
}

func (r *recordingAdapter) Move(_ context.Context, src, dst string, force bool) error {
	r.record("Move", src, dst, force)
	return r.err
}

func newBoltFacade(t *testing.T) *Facade {
	t.Helper()
	a, err := adapter.OpenBoltAdapter(filepath.Join(t.TempDir(), "media.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return New(a)
}

func TestFacade_SanitizesCreateNames(t *testing.T) {
	rec := &recordingAdapter{}
	f := New(rec)
	ctx := context.Background()

	name, err := f.CreateFolder(ctx, "Summer Trip 2024!", "/albums")
	require.NoError(t, err)
	assert.Equal(t, "Summer_Trip_2024", name)
	assert.Equal(t, call{"CreateFolder", []any{"Summer_Trip_2024", "/albums"}}, rec.last())

	name, err = f.CreateFile(ctx, "héllo world.JPG", "/albums", []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "hello_world.jpg", name)
	assert.Equal(t, call{"CreateFile", []any{"hello_world.jpg", "/albums", "img"}}, rec.last())
}

func TestFacade_ForwardsVerbatim(t *testing.T) {
	rec := &recordingAdapter{}
	f := New(rec)
	ctx := context.Background()

	require.NoError(t, f.UpdateFile(ctx, "My File!.TXT", "/docs", []byte("v2")))
	assert.Equal(t, call{"UpdateFile", []any{"My File!.TXT", "/docs", "v2"}}, rec.last())

	require.NoError(t, f.Delete(ctx, "/docs/a.txt"))
	assert.Equal(t, call{"Delete", []any{"/docs/a.txt"}}, rec.last())

	require.NoError(t, f.Copy(ctx, "/a", "/b", true))
	assert.Equal(t, call{"Copy", []any{"/a", "/b", true}}, rec.last())

	require.NoError(t, f.Move(ctx, "/a", "/c", false))
	assert.Equal(t, call{"Move", []any{"/a", "/c", false}}, rec.last())

	_, err := f.GetFiles(ctx, "/docs", "*.txt")
	require.NoError(t, err)
	assert.Equal(t, call{"GetFiles", []any{"/docs", "*.txt"}}, rec.last())
}

func TestFacade_DefaultsToRoot(t *testing.T) {
	rec := &recordingAdapter{}
	f := New(rec)
	ctx := context.Background()

	e, err := f.GetFile(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "/", e.Path)

	_, err = f.GetFiles(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, call{"GetFiles", []any{"/", ""}}, rec.last())
}

func TestFacade_PropagatesAdapterErrors(t *testing.T) {
	want := adapter.Conflict("create-file", "/docs/a.txt")
	rec := &recordingAdapter{err: want}
	f := New(rec)

	name, err := f.CreateFile(context.Background(), "a.txt", "/docs", nil)
	assert.Empty(t, name)
	assert.Same(t, want, err)

	rec.err = errors.New("disk on fire")
	err = f.Delete(context.Background(), "/x")
	assert.EqualError(t, err, "disk on fire")
}

func TestFacade_NoAdapter(t *testing.T) {
	f := New(nil)
	ctx := context.Background()

	entries, err := f.GetFiles(ctx, "/", "")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	_, err = f.GetFile(ctx, "/")
	assert.ErrorIs(t, err, adapter.ErrNotConfigured)

	_, err = f.CreateFolder(ctx, "a", "/")
	assert.Equal(t, adapter.KindConfiguration, adapter.KindOf(err))
	_, err = f.CreateFile(ctx, "a", "/", nil)
	assert.Equal(t, adapter.KindConfiguration, adapter.KindOf(err))

	for _, err := range []error{
		f.UpdateFile(ctx, "a", "/", nil),
		f.Delete(ctx, "/a"),
		f.Copy(ctx, "/a", "/b", false),
		f.Move(ctx, "/a", "/b", false),
	} {
		assert.ErrorIs(t, err, adapter.ErrNotConfigured)
	}
}

func TestNewFromRegistry(t *testing.T) {
	ctx := context.Background()

	f, err := NewFromRegistry(ctx, adapter.NewRegistry(), "")
	require.NoError(t, err)
	assert.Nil(t, f.Adapter())

	first, second := &recordingAdapter{}, &recordingAdapter{}
	reg := adapter.NewRegistry()
	require.NoError(t, reg.Register("first", func(context.Context) (adapter.Adapter, error) { return first, nil }))
	require.NoError(t, reg.Register("second", func(context.Context) (adapter.Adapter, error) { return second, nil }))

	f, err = NewFromRegistry(ctx, reg, "")
	require.NoError(t, err)
	assert.Same(t, first, f.Adapter())

	f, err = NewFromRegistry(ctx, reg, "second")
	require.NoError(t, err)
	assert.Same(t, second, f.Adapter())

	_, err = NewFromRegistry(ctx, reg, "missing")
	assert.Equal(t, adapter.KindConfiguration, adapter.KindOf(err))
}

func TestFacade_RoundTrip(t *testing.T) {
	f := newBoltFacade(t)
	ctx := context.Background()

	name, err := f.CreateFile(ctx, "My File!.TXT", "/docs", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "My_File.txt", name)

	e, err := f.GetFile(ctx, "/docs/My_File.txt")
	require.NoError(t, err)
	assert.Equal(t, "My_File.txt", e.Name)
	assert.Equal(t, "txt", e.Extension)

	entries, err := f.GetFiles(ctx, "/docs", "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/docs/My_File.txt", entries[0].Path)

	_, err = f.CreateFile(ctx, "My File!.TXT", "/docs", []byte("again"))
	assert.True(t, adapter.IsConflict(err), "got %v", err)

	require.NoError(t, f.UpdateFile(ctx, name, "/docs", []byte("hello, again")))
	e, err = f.GetFile(ctx, "/docs/My_File.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello, again")), e.Size)
}

func TestFacade_CopyOverwriteGuard(t *testing.T) {
	f := newBoltFacade(t)
	ctx := context.Background()

	_, err := f.CreateFile(ctx, "a.txt", "/", []byte("aaaa"))
	require.NoError(t, err)
	_, err = f.CreateFile(ctx, "b.txt", "/", []byte("b"))
	require.NoError(t, err)

	err = f.Copy(ctx, "/a.txt", "/b.txt", false)
	assert.True(t, adapter.IsConflict(err), "got %v", err)

	require.NoError(t, f.Copy(ctx, "/a.txt", "/b.txt", true))
	e, err := f.GetFile(ctx, "/b.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(4), e.Size)
}

func TestFacade_MoveOverwriteGuard(t *testing.T) {
	f := newBoltFacade(t)
	ctx := context.Background()

	_, err := f.CreateFolder(ctx, "src", "/")
	require.NoError(t, err)
	_, err = f.CreateFile(ctx, "one.txt", "/src", []byte("1"))
	require.NoError(t, err)
	_, err = f.CreateFolder(ctx, "dst", "/")
	require.NoError(t, err)

	err = f.Move(ctx, "/src", "/dst", false)
	assert.True(t, adapter.IsConflict(err), "got %v", err)
	_, err = f.GetFile(ctx, "/src/one.txt")
	require.NoError(t, err)

	require.NoError(t, f.Move(ctx, "/src", "/dst", true))
	_, err = f.GetFile(ctx, "/src")
	assert.True(t, adapter.IsNotFound(err), "got %v", err)
	e, err := f.GetFile(ctx, "/dst/one.txt")
	require.NoError(t, err)
	assert.Equal(t, "one.txt", e.Name)
}
