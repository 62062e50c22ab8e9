package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runContract exercises the behavior every Adapter shares.
func runContract(t *testing.T, newAdapter func(t *testing.T) Adapter) {
	ctx := context.Background()

	names := func(entries []*FileEntry) []string {
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.Name)
		}
		return out
	}

	t.Run("EmptyRoot", func(t *testing.T) {
		a := newAdapter(t)
		entries, err := a.GetFiles(ctx, "/", "")
		require.NoError(t, err)
		assert.Empty(t, entries)

		root, err := a.GetFile(ctx, "")
		require.NoError(t, err)
		assert.True(t, root.IsDir())
	})

	t.Run("CreateFolder", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.CreateFolder(ctx, "photos", "/"))

		e, err := a.GetFile(ctx, "/photos")
		require.NoError(t, err)
		assert.Equal(t, TypeDir, e.Type)
		assert.Equal(t, "photos", e.Name)
		assert.Equal(t, "/photos", e.Path)

		err = a.CreateFolder(ctx, "photos", "/")
		assert.True(t, IsConflict(err), "got %v", err)

		require.NoError(t, a.CreateFolder(ctx, "2024", "/albums/summer"))
		parent, err := a.GetFile(ctx, "/albums/summer")
		require.NoError(t, err)
		assert.True(t, parent.IsDir())
	})

	t.Run("CreateFile", func(t *testing.T) {
		a := newAdapter(t)
		data := []byte("hello media")
		require.NoError(t, a.CreateFile(ctx, "note.txt", "/docs/nested", data))

		e, err := a.GetFile(ctx, "/docs/nested/note.txt")
		require.NoError(t, err)
		assert.Equal(t, TypeFile, e.Type)
		assert.Equal(t, "note.txt", e.Name)
		assert.Equal(t, "txt", e.Extension)
		assert.Equal(t, int64(len(data)), e.Size)
		assert.Contains(t, e.MimeType, "text/plain")

		err = a.CreateFile(ctx, "note.txt", "/docs/nested", []byte("again"))
		assert.True(t, IsConflict(err), "got %v", err)

		err = a.CreateFile(ctx, "inside.txt", "/docs/nested/note.txt", data)
		assert.Error(t, err, "a file cannot be a parent")
	})

	t.Run("UpdateFile", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.CreateFile(ctx, "a.txt", "/", []byte("v1")))
		require.NoError(t, a.UpdateFile(ctx, "a.txt", "/", []byte("version two")))

		e, err := a.GetFile(ctx, "/a.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(len("version two")), e.Size)

		err = a.UpdateFile(ctx, "missing.txt", "/", []byte("x"))
		assert.True(t, IsNotFound(err), "got %v", err)

		require.NoError(t, a.CreateFolder(ctx, "dir", "/"))
		err = a.UpdateFile(ctx, "dir", "/", []byte("x"))
		require.Error(t, err)
		assert.Equal(t, KindAdapter, KindOf(err))
	})

	t.Run("GetFiles", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.CreateFile(ctx, "b.txt", "/lib", []byte("b")))
		require.NoError(t, a.CreateFile(ctx, "a.jpg", "/lib", []byte("a")))
		require.NoError(t, a.CreateFolder(ctx, "zeta", "/lib"))
		require.NoError(t, a.CreateFolder(ctx, "alpha", "/lib"))
		require.NoError(t, a.CreateFile(ctx, "deep.txt", "/lib/alpha", []byte("d")))

		entries, err := a.GetFiles(ctx, "/lib", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "zeta", "a.jpg", "b.txt"}, names(entries))

		entries, err = a.GetFiles(ctx, "/lib", "*.txt")
		require.NoError(t, err)
		assert.Equal(t, []string{"b.txt"}, names(entries))

		entries, err = a.GetFiles(ctx, "/lib", "eta")
		require.NoError(t, err)
		assert.Equal(t, []string{"zeta"}, names(entries))

		entries, err = a.GetFiles(ctx, "/lib/a.jpg", "")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "/lib/a.jpg", entries[0].Path)

		_, err = a.GetFiles(ctx, "/nowhere", "")
		assert.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("GetFileMissing", func(t *testing.T) {
		a := newAdapter(t)
		_, err := a.GetFile(ctx, "/missing.txt")
		assert.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("PathEscape", func(t *testing.T) {
		a := newAdapter(t)
		_, err := a.GetFile(ctx, "../outside")
		require.Error(t, err)
		assert.Equal(t, KindAdapter, KindOf(err))
		assert.False(t, IsNotFound(err))
	})

	t.Run("Delete", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.CreateFile(ctx, "a.txt", "/tree/sub", []byte("a")))
		require.NoError(t, a.CreateFile(ctx, "keep.txt", "/", []byte("k")))

		require.NoError(t, a.Delete(ctx, "/tree"))
		_, err := a.GetFile(ctx, "/tree/sub/a.txt")
		assert.True(t, IsNotFound(err), "got %v", err)
		_, err = a.GetFile(ctx, "/tree")
		assert.True(t, IsNotFound(err), "got %v", err)

		require.NoError(t, a.Delete(ctx, "/keep.txt"))
		err = a.Delete(ctx, "/keep.txt")
		assert.True(t, IsNotFound(err), "got %v", err)

		assert.Error(t, a.Delete(ctx, "/"))
	})

	t.Run("CopyFile", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.CreateFile(ctx, "a.txt", "/", []byte("original")))
		require.NoError(t, a.CreateFile(ctx, "b.txt", "/", []byte("other")))

		require.NoError(t, a.Copy(ctx, "/a.txt", "/copies/a.txt", false))
		e, err := a.GetFile(ctx, "/copies/a.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(len("original")), e.Size)

		_, err = a.GetFile(ctx, "/a.txt")
		require.NoError(t, err, "copy keeps the source")

		err = a.Copy(ctx, "/a.txt", "/b.txt", false)
		assert.True(t, IsConflict(err), "got %v", err)
		e, err = a.GetFile(ctx, "/b.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(len("other")), e.Size, "destination untouched without force")

		require.NoError(t, a.Copy(ctx, "/a.txt", "/b.txt", true))
		e, err = a.GetFile(ctx, "/b.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(len("original")), e.Size)

		err = a.Copy(ctx, "/missing.txt", "/x.txt", false)
		assert.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("CopyTree", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.CreateFile(ctx, "1.txt", "/src", []byte("1")))
		require.NoError(t, a.CreateFile(ctx, "2.txt", "/src/sub", []byte("22")))
		require.NoError(t, a.CreateFolder(ctx, "empty", "/src"))

		require.NoError(t, a.Copy(ctx, "/src", "/dst", false))

		entries, err := a.GetFiles(ctx, "/dst", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"empty", "sub", "1.txt"}, names(entries))

		e, err := a.GetFile(ctx, "/dst/sub/2.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(2), e.Size)

		err = a.Copy(ctx, "/src", "/src/sub/again", false)
		require.Error(t, err)
		assert.Equal(t, KindAdapter, KindOf(err))
	})

	t.Run("Move", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.CreateFile(ctx, "a.txt", "/", []byte("moved content")))
		require.NoError(t, a.CreateFile(ctx, "b.txt", "/", []byte("b")))

		err := a.Move(ctx, "/a.txt", "/b.txt", false)
		assert.True(t, IsConflict(err), "got %v", err)
		_, err = a.GetFile(ctx, "/a.txt")
		require.NoError(t, err, "failed move keeps the source")

		require.NoError(t, a.Move(ctx, "/a.txt", "/b.txt", true))
		_, err = a.GetFile(ctx, "/a.txt")
		assert.True(t, IsNotFound(err), "got %v", err)
		e, err := a.GetFile(ctx, "/b.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(len("moved content")), e.Size)
	})

	t.Run("MoveTree", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.CreateFile(ctx, "x.txt", "/old/inner", []byte("x")))

		require.NoError(t, a.Move(ctx, "/old", "/archive/new", false))

		_, err := a.GetFile(ctx, "/old")
		assert.True(t, IsNotFound(err), "got %v", err)
		e, err := a.GetFile(ctx, "/archive/new/inner/x.txt")
		require.NoError(t, err)
		assert.Equal(t, "x.txt", e.Name)
	})

	t.Run("ForcedCopyReplacesTree", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.CreateFile(ctx, "new.txt", "/src", []byte("new")))
		require.NoError(t, a.CreateFile(ctx, "shared.txt", "/src", []byte("fresh")))
		require.NoError(t, a.CreateFile(ctx, "stale.txt", "/dst", []byte("stale")))
		require.NoError(t, a.CreateFile(ctx, "shared.txt", "/dst", []byte("old")))

		require.NoError(t, a.Copy(ctx, "/src", "/dst", true))

		entries, err := a.GetFiles(ctx, "/dst", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"new.txt", "shared.txt"}, names(entries))

		e, err := a.GetFile(ctx, "/dst/shared.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(len("fresh")), e.Size)

		root, err := a.GetFiles(ctx, "/", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"dst", "src"}, names(root), "no leftovers beside the destination")
	})
}
