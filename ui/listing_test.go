package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/franksops/gomedia/adapter"
	"github.com/franksops/gomedia/store"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{500, "500 B"},
		{1024, "1.00 KB"},
		{2048, "2.00 KB"},
		{1048576, "1.00 MB"},
		{1572864, "1.50 MB"},
		{1073741824, "1.00 GB"},
	}

	for _, tt := range tests {
		result := FormatSize(tt.bytes)
		if result != tt.expected {
			t.Errorf("FormatSize(%v) = %v; want %v", tt.bytes, result, tt.expected)
		}
	}
}

func TestPrinter_Entries(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	modified := time.Date(2024, 5, 6, 7, 8, 0, 0, time.Local)
	p.Entries([]*adapter.FileEntry{
		{Type: adapter.TypeDir, Name: "albums", Path: "/albums"},
		{Type: adapter.TypeFile, Name: "cover.png", Path: "/cover.png", Size: 2048, MimeType: "image/png", ModifiedAt: modified},
	})

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "albums/")
	assert.Contains(t, lines[1], "folder")
	assert.Contains(t, lines[2], "cover.png")
	assert.Contains(t, lines[2], "2.00 KB")
	assert.Contains(t, lines[2], "image/png")
	assert.Contains(t, lines[2], "2024-05-06 07:08")
}

func TestPrinter_EmptyListing(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Entries(nil)
	assert.Contains(t, buf.String(), "(empty)")
}

func TestPrinter_Entry(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Entry(&adapter.FileEntry{
		Type: adapter.TypeFile, Name: "p.png", Path: "/img/p.png", Extension: "png",
		Size: 10, MimeType: "image/png", Width: 3, Height: 2,
	})

	out := buf.String()
	assert.Contains(t, out, "/img/p.png")
	assert.Contains(t, out, "10 B (10 bytes)")
	assert.Contains(t, out, "3x2")
	assert.Contains(t, out, "Created:")
}

func TestPrinter_Jobs(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Jobs([]*store.JobRecord{
		{ID: "1", Op: "copy", SourcePath: "/a", DestinationPath: "/b", State: store.StateCompleted, BytesTransferred: 1024, TotalBytes: 1024},
		{ID: "2", Op: "move", SourcePath: "/c", DestinationPath: "/d", State: store.StateFailed, Error: "disk full"},
	})

	out := buf.String()
	assert.Contains(t, out, "/a -> /b")
	assert.Contains(t, out, "1.00 KB / 1.00 KB")
	assert.Contains(t, out, "Failed")
	assert.Contains(t, out, "disk full")

	buf.Reset()
	p.Jobs(nil)
	assert.Contains(t, buf.String(), "no journaled jobs")
}

func TestPrinter_Error(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Error(adapter.NotFound("get-file", "/x"))
	assert.Contains(t, buf.String(), "error (not found)")

	buf.Reset()
	p.Error(errors.New("boom"))
	assert.Contains(t, buf.String(), "error (adapter): boom")
}

func TestNames(t *testing.T) {
	got := Names([]*adapter.FileEntry{
		{Type: adapter.TypeDir, Name: "a"},
		{Type: adapter.TypeFile, Name: "b.txt"},
	})
	assert.Equal(t, "a/\nb.txt", got)
}
