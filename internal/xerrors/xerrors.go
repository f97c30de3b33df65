// Package xerrors defines the sentinel error kinds used across the core,
// matching the error-kind table in spec.md §7. No exceptions: every
// operation either returns one of these through a normal error return, or
// converts it into a terminal status event (see internal/logdata.Status
// and internal/search.Status).
package xerrors

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per spec.md §7 row plus the regex-compile case.
// Only ErrInvalidRegex is returned by code in this module; the others name
// the remaining error kinds and no function returns them.
var (
	// ErrFileOpen names the kind for a file LogData cannot open. Indexing
	// treats such a file as empty and reports Successful instead.
	ErrFileOpen = errors.New("file open error")
	// ErrRead names the kind for a mid-operation I/O failure.
	ErrRead = errors.New("read error")
	// ErrInterrupted names the kind for an observed cancellation flag.
	ErrInterrupted = errors.New("interrupted")
	// ErrOutOfMemory names the kind for an allocation failure during
	// indexing.
	ErrOutOfMemory = errors.New("out of memory")
	// ErrInvalidRegex is returned when a pattern fails to compile.
	ErrInvalidRegex = errors.New("invalid regex")
	// ErrFileTruncatedDuringSearch names the kind for a search that
	// observes a line number beyond the last indexed line.
	ErrFileTruncatedDuringSearch = errors.New("file truncated during search")
)

// Wrap wraps err with msg, returning nil if err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps err with a formatted message, returning nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether err matches target, per errors.Is semantics.
func Is(err, target error) bool { return errors.Is(err, target) }
