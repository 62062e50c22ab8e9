package adapter

import (
	"bytes"
	"image"
	_ "image/gif"  // register GIF for DecodeConfig
	_ "image/jpeg" // register JPEG for DecodeConfig
	_ "image/png"  // register PNG for DecodeConfig
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how many leading bytes are handed to the MIME detector.
const sniffLen = 3072

func newDirEntry(p string, modified time.Time) *FileEntry {
	return &FileEntry{
		Type:       TypeDir,
		Name:       path.Base(p),
		Path:       p,
		CreatedAt:  modified,
		ModifiedAt: modified,
	}
}

func newFileEntry(p string, size int64, created, modified time.Time) *FileEntry {
	name := path.Base(p)
	return &FileEntry{
		Type:       TypeFile,
		Name:       name,
		Path:       p,
		Extension:  extension(name),
		Size:       size,
		CreatedAt:  created,
		ModifiedAt: modified,
	}
}

// inspect sets the MIME type of e from the start of r and, for images,
// their dimensions. Only as much of r as the image header needs is read.
func inspect(e *FileEntry, r io.Reader) error {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return err
	}
	head = head[:n]

	e.MimeType = mimetype.Detect(head).String()
	if !strings.HasPrefix(e.MimeType, "image/") {
		return nil
	}

	cfg, _, err := image.DecodeConfig(io.MultiReader(bytes.NewReader(head), r))
	if err != nil {
		// formats without a registered decoder keep their MIME type only
		return nil
	}
	e.Width, e.Height = cfg.Width, cfg.Height
	return nil
}

// inspectBytes is inspect over an in-memory payload.
func inspectBytes(e *FileEntry, data []byte) {
	_ = inspect(e, bytes.NewReader(data))
}

// applyMetadata copies the permission bits and modification time of info
// onto the file at fullPath.
func applyMetadata(fullPath string, info os.FileInfo) error {
	if info == nil {
		return nil
	}
	if mode := info.Mode().Perm(); mode != 0 {
		if err := os.Chmod(fullPath, mode); err != nil {
			return err
		}
	}
	if !info.ModTime().IsZero() {
		return os.Chtimes(fullPath, time.Now(), info.ModTime())
	}
	return nil
}
