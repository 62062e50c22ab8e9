package adapter

import (
	"path"
	"sort"
	"strings"
)

// Clean returns p as a rooted, slash-separated path without "." or ".."
// elements. ok is false when p climbs above the root.
func Clean(p string) (cleaned string, ok bool) {
	p = strings.ReplaceAll(p, "\\", "/")
	rel := path.Clean(strings.TrimLeft(p, "/"))
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	if rel == "." {
		return Root, true
	}
	return Root + rel, true
}

// Join joins a folder path and an entry name into a cleaned path.
func Join(dir, name string) string {
	return path.Join(Root, dir, name)
}

// IsWithin reports whether child is parent or lies below it. Both must be
// cleaned.
func IsWithin(parent, child string) bool {
	if parent == Root || parent == child {
		return true
	}
	return strings.HasPrefix(child, parent+"/")
}

// MatchFilter reports whether name passes filter. A filter holding any of
// "*?[" is a glob; any other filter matches names containing it. An empty
// filter matches every name.
func MatchFilter(filter, name string) bool {
	if filter == "" {
		return true
	}
	if strings.ContainsAny(filter, "*?[") {
		ok, err := path.Match(filter, name)
		return err == nil && ok
	}
	return strings.Contains(name, filter)
}

// SortEntries orders entries folders first, then by name.
func SortEntries(entries []*FileEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		return a.Name < b.Name
	})
}

// checkPath cleans p for op.
func checkPath(op, p string) (string, error) {
	cleaned, ok := Clean(p)
	if !ok {
		return "", Invalid(op, p, "path escapes the adapter root")
	}
	return cleaned, nil
}

// checkEntry cleans dir and validates name for the create operations.
func checkEntry(op, name, dir string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return "", Invalid(op, name, "invalid entry name")
	}
	cleanedDir, err := checkPath(op, dir)
	if err != nil {
		return "", err
	}
	return Join(cleanedDir, name), nil
}

// checkTransfer validates the source and destination of a copy or move.
func checkTransfer(op, src, dst string) (string, string, error) {
	s, err := checkPath(op, src)
	if err != nil {
		return "", "", err
	}
	d, err := checkPath(op, dst)
	if err != nil {
		return "", "", err
	}
	switch {
	case s == Root:
		return "", "", Invalid(op, s, "cannot transfer the root folder")
	case d == Root:
		return "", "", Invalid(op, d, "cannot replace the root folder")
	case s == d:
		return "", "", Invalid(op, s, "source and destination are the same")
	case IsWithin(s, d):
		return "", "", Invalid(op, d, "destination is inside the source")
	case IsWithin(d, s):
		return "", "", Invalid(op, d, "destination contains the source")
	}
	return s, d, nil
}

// extension returns the lowercased extension of a file name without the
// dot.
func extension(name string) string {
	ext := path.Ext(name)
	if ext == "" || ext == name {
		return ""
	}
	return strings.ToLower(ext[1:])
}
