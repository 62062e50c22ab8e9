package adapter

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBolt(t *testing.T, path string) *BoltAdapter {
	t.Helper()
	a, err := OpenBoltAdapter(path)
	require.NoError(t, err)
	return a
}

func TestBoltAdapter_Contract(t *testing.T) {
	runContract(t, func(t *testing.T) Adapter {
		a := openBolt(t, filepath.Join(t.TempDir(), "media.db"))
		t.Cleanup(func() { a.Close() })
		return a
	})
}

func TestBoltAdapter_Persists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "media.db")
	ctx := context.Background()

	a := openBolt(t, dbPath)
	require.NoError(t, a.CreateFile(ctx, "pixel.png", "/img", pngBytes(t, 4, 5)))
	require.NoError(t, a.Close())

	a = openBolt(t, dbPath)
	defer a.Close()

	e, err := a.GetFile(ctx, "/img/pixel.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", e.MimeType)
	assert.Equal(t, 4, e.Width)
	assert.Equal(t, 5, e.Height)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestBoltAdapter_UpdateKeepsCreatedAt(t *testing.T) {
	a := openBolt(t, filepath.Join(t.TempDir(), "media.db"))
	defer a.Close()
	ctx := context.Background()

	require.NoError(t, a.CreateFile(ctx, "a.txt", "/", []byte("one")))
	before, err := a.GetFile(ctx, "/a.txt")
	require.NoError(t, err)

	require.NoError(t, a.UpdateFile(ctx, "a.txt", "/", []byte("three")))
	after, err := a.GetFile(ctx, "/a.txt")
	require.NoError(t, err)

	assert.True(t, after.CreatedAt.Equal(before.CreatedAt))
	assert.False(t, after.ModifiedAt.Before(before.ModifiedAt))
	assert.Equal(t, int64(5), after.Size)
}

func TestBoltAdapter_SiblingPrefixIsolation(t *testing.T) {
	a := openBolt(t, filepath.Join(t.TempDir(), "media.db"))
	defer a.Close()
	ctx := context.Background()

	require.NoError(t, a.CreateFile(ctx, "in.txt", "/set", []byte("1")))
	require.NoError(t, a.CreateFile(ctx, "out.txt", "/settings", []byte("2")))

	require.NoError(t, a.Delete(ctx, "/set"))

	_, err := a.GetFile(ctx, "/settings/out.txt")
	assert.NoError(t, err, "deleting /set must not touch /settings")
}
