package versioner

import (
	"errors"
	"fmt"
)

// Kind tags a snapshot failure so callers can tell a benign "nothing to do"
// apart from a genuine I/O failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindSourceRootNotFound
	KindBackupRootNotFound
	KindNoActionTaken
	KindDirectoryCreationFailed
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindSourceRootNotFound:
		return "SourceRootNotFound"
	case KindBackupRootNotFound:
		return "BackupRootNotFound"
	case KindNoActionTaken:
		return "NoActionTaken"
	case KindDirectoryCreationFailed:
		return "DirectoryCreationFailed"
	case KindIO:
		return "IOFailure"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by every snapshot stage.
// Path is the offending path: absolute for root and directory failures,
// relative to the walked tree for listing, copy and link failures.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

// Sentinels for use with errors.Is. They match any *Error of the same Kind.
var (
	ErrConfiguration           = &Error{Kind: KindConfiguration}
	ErrSourceRootNotFound      = &Error{Kind: KindSourceRootNotFound}
	ErrBackupRootNotFound      = &Error{Kind: KindBackupRootNotFound}
	ErrNoActionTaken           = &Error{Kind: KindNoActionTaken}
	ErrDirectoryCreationFailed = &Error{Kind: KindDirectoryCreationFailed}
	ErrIO                      = &Error{Kind: KindIO}
)

func (e *Error) Error() string {
	msg := e.message()
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) message() string {
	switch e.Kind {
	case KindConfiguration:
		return "source root and backup root must both be specified"
	case KindSourceRootNotFound:
		return "source root not found"
	case KindBackupRootNotFound:
		return "backup root not found"
	case KindNoActionTaken:
		return "no new files found to copy or link"
	case KindDirectoryCreationFailed:
		return "failed to create directory"
	case KindIO:
		return "i/o failure"
	default:
		return "snapshot failed"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Path == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func ioFailure(path string, err error) error {
	return &Error{Kind: KindIO, Path: path, Err: err}
}
