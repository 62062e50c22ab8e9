// Package sanitize turns user-supplied file and folder names into names that
// are safe to use as storage keys on every supported backend.
//
// The result of Name always matches ^[A-Za-z0-9_]*(\.[a-z0-9]+)?$ and Name is
// idempotent: sanitizing an already sanitized name returns it unchanged.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// illegalChars are rejected by at least one common file system.
const illegalChars = `<>:"/\|?*`

var (
	dotRun        = regexp.MustCompile(`\.{2,}`)
	whitespaceRun = regexp.MustCompile(`\s+`)
	notBaseChar   = regexp.MustCompile(`[^A-Za-z0-9_]`)
	notExtChar    = regexp.MustCompile(`[^a-z0-9]`)
)

// reservedNames are device names that Windows refuses as file names
// regardless of extension.
var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// Name returns the storage-safe form of raw.
//
// The extension (everything after the last dot) is lowercased and kept; the
// base name has whitespace runs folded into a single underscore and every
// other character outside [A-Za-z0-9_] removed. Non-ASCII letters are folded
// to their unaccented form where one exists and Punycode-encoded otherwise.
// The base may come out empty, e.g. "$$$.TXT" becomes ".txt".
func Name(raw string) string {
	name := Transliterate(MakeSafe(raw))

	base, ext := SplitExt(name)

	ext = notExtChar.ReplaceAllString(strings.ToLower(ext), "")
	if ext != "" {
		ext = "." + ext
	}

	base = whitespaceRun.ReplaceAllString(base, "_")
	base = notBaseChar.ReplaceAllString(base, "")
	if IsReserved(base) {
		base = "_" + base
	}

	return base + ext
}

// MakeSafe strips control characters, path separators and characters that
// are illegal on common file systems, turns every Unicode space into an ASCII
// space and collapses runs of dots.
func MakeSafe(raw string) string {
	s := norm.NFC.String(raw)

	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			return -1
		case strings.ContainsRune(illegalChars, r):
			return -1
		}
		return r
	}, s)

	return dotRun.ReplaceAllString(s, ".")
}

// Transliterate converts s to ASCII. Diacritics are dropped first (é -> e);
// any dot-separated label still holding non-ASCII characters is then
// Punycode-encoded. ASCII input is returned unchanged.
func Transliterate(s string) string {
	if isASCII(s) {
		return s
	}

	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(folder, s); err == nil {
		s = folded
	}
	if isASCII(s) {
		return s
	}

	labels := strings.Split(s, ".")
	for i, label := range labels {
		if isASCII(label) {
			continue
		}
		encoded, err := idna.Punycode.ToASCII(label)
		if err != nil {
			// Left as is; the character filter in Name drops what remains.
			continue
		}
		labels[i] = encoded
	}
	return strings.Join(labels, ".")
}

// SplitExt splits name at its last dot. The extension is returned without
// the dot and is empty when name has no dot.
func SplitExt(name string) (base, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// IsReserved reports whether base is a reserved device name.
func IsReserved(base string) bool {
	_, ok := reservedNames[strings.ToUpper(base)]
	return ok
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
