package adapter

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind classifies an adapter failure.
type Kind int

const (
	// KindAdapter is any backend failure that has no more specific kind.
	KindAdapter Kind = iota
	// KindConfiguration means no usable adapter is bound.
	KindConfiguration
	// KindNotFound means the addressed file or folder does not exist.
	KindNotFound
	// KindConflict means the target already exists and overwriting was not
	// requested.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	default:
		return "adapter"
	}
}

var (
	// ErrNotFound matches every KindNotFound error.
	ErrNotFound = errors.New("not found")
	// ErrConflict matches every KindConflict error.
	ErrConflict = errors.New("already exists")
	// ErrNotConfigured matches every KindConfiguration error.
	ErrNotConfigured = errors.New("no adapter configured")
)

// Error is the error type returned by adapters and the media facade.
type Error struct {
	Kind    Kind
	Op      string
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
	} else if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrNotConfigured:
		return e.Kind == KindConfiguration
	}
	return false
}

// NotFound reports that path does not exist.
func NotFound(op, path string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Path: path, Message: "no such file or folder"}
}

// Conflict reports that path already exists.
func Conflict(op, path string) *Error {
	return &Error{Kind: KindConflict, Op: op, Path: path, Message: "already exists"}
}

// NotConfigured reports that op was called without an adapter.
func NotConfigured(op string) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Message: ErrNotConfigured.Error()}
}

// Invalid reports a request the adapter refuses, such as a path outside
// the root.
func Invalid(op, path, msg string) *Error {
	return &Error{Kind: KindAdapter, Op: op, Path: path, Message: msg}
}

// Wrap turns err into an *Error for op on path. Errors that already are
// *Error pass through; fs.ErrNotExist and fs.ErrExist map to their kinds.
func Wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var ae *Error
	if errors.As(err, &ae) {
		return err
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		e := NotFound(op, path)
		e.Err = err
		return e
	case errors.Is(err, fs.ErrExist):
		e := Conflict(op, path)
		e.Err = err
		return e
	}
	return &Error{Kind: KindAdapter, Op: op, Path: path, Message: "failed", Err: err}
}

// KindOf returns the kind of err. Errors that are not *Error are
// KindAdapter.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindAdapter
}

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a KindConflict error.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
