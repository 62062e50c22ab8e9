package adapter

import (
	"bytes"
	"image"
	"image/color/palette"
	"image/gif"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyMetadata(t *testing.T) {
	tmpDir := t.TempDir()

	src := filepath.Join(tmpDir, "src.txt")
	if err := os.WriteFile(src, []byte("hello"), 0640); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	past := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(src, past, past); err != nil {
		t.Fatalf("failed to set times: %v", err)
	}
	srcInfo, err := os.Stat(src)
	if err != nil {
		t.Fatalf("failed to stat file: %v", err)
	}

	dst := filepath.Join(tmpDir, "dst.txt")
	if err := os.WriteFile(dst, []byte("hello"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	if err := applyMetadata(dst, srcInfo); err != nil {
		t.Fatalf("applyMetadata failed: %v", err)
	}

	dstInfo, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("failed to stat file: %v", err)
	}
	if dstInfo.Mode().Perm() != srcInfo.Mode().Perm() {
		t.Errorf("expected mode %v, got %v", srcInfo.Mode().Perm(), dstInfo.Mode().Perm())
	}
	if !dstInfo.ModTime().Equal(past) {
		t.Errorf("expected mtime %v, got %v", past, dstInfo.ModTime())
	}

	if err := applyMetadata(dst, nil); err != nil {
		t.Errorf("nil info should be a no-op, got %v", err)
	}
}

func TestInspect(t *testing.T) {
	var gifBuf bytes.Buffer
	if err := gif.Encode(&gifBuf, image.NewPaletted(image.Rect(0, 0, 7, 9), palette.Plan9), nil); err != nil {
		t.Fatalf("failed to encode gif: %v", err)
	}

	tests := []struct {
		name   string
		data   []byte
		mime   string
		width  int
		height int
	}{
		{"text", []byte("just some words"), "text/plain; charset=utf-8", 0, 0},
		{"png", pngBytes(t, 5, 4), "image/png", 5, 4},
		{"gif", gifBuf.Bytes(), "image/gif", 7, 9},
		{"truncated png", pngBytes(t, 5, 4)[:12], "image/png", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newFileEntry("/x", int64(len(tt.data)), time.Time{}, time.Time{})
			inspectBytes(e, tt.data)

			if e.MimeType != tt.mime {
				t.Errorf("expected mime %q, got %q", tt.mime, e.MimeType)
			}
			if e.Width != tt.width || e.Height != tt.height {
				t.Errorf("expected %dx%d, got %dx%d", tt.width, tt.height, e.Width, e.Height)
			}
		})
	}
}

func TestNewFileEntry(t *testing.T) {
	e := newFileEntry("/albums/Cover.JPG", 10, time.Time{}, time.Time{})
	if e.Name != "Cover.JPG" || e.Extension != "jpg" || e.Type != TypeFile {
		t.Errorf("unexpected entry %+v", e)
	}

	d := newDirEntry("/albums", time.Time{})
	if d.Name != "albums" || !d.IsDir() || d.Extension != "" {
		t.Errorf("unexpected entry %+v", d)
	}
}
