// Package apperr defines the sentinel error taxonomy shared by the store,
// stream processor and HTTP surface. Callers wrap a sentinel with
// fmt.Errorf("...: %w", ...) and the HTTP layer recovers it with
// errors.Is at the outermost boundary.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: a referenced campaign does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: non-creator mutation, or a missing or invalid token.
	ErrForbidden = errors.New("forbidden")
	// ErrBadRequest: malformed JSON, wrong geometry type, unknown geometry family.
	ErrBadRequest = errors.New("bad request")
	// ErrConflict: results requested while the campaign is still running.
	ErrConflict = errors.New("conflict")
	// ErrParseFailed: the upstream XML response was malformed.
	ErrParseFailed = errors.New("parse failed")
	// ErrFetchFailed: the upstream data source returned a non-2xx status.
	ErrFetchFailed = errors.New("fetch failed")
)

// Wrap attaches msg to sentinel while keeping it errors.Is-matchable.
func Wrap(sentinel error, msg string) error {
	return fmt.Errorf("%s: %w", msg, sentinel)
}

// Wrapf is Wrap with fmt.Sprintf-style formatting.
func Wrapf(sentinel error, format string, args ...any) error {
	return Wrap(sentinel, fmt.Sprintf(format, args...))
}

// FetchFailedError carries the upstream status code and a truncated body
// snippet.
type FetchFailedError struct {
	Status int
	Body   string
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch failed: upstream status %d: %s", e.Status, e.Body)
}

func (e *FetchFailedError) Unwrap() error {
	return ErrFetchFailed
}
