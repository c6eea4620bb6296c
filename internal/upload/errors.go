package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks lookups for upload sessions that do not exist.
	ErrNotFound = errors.New("upload session not found")

	// ErrInvalidState marks operations against sessions that already
	// finished, such as completing an aborted upload.
	ErrInvalidState = errors.New("invalid upload session state")

	// ErrInvalidRequest marks initiation requests that fail validation.
	ErrInvalidRequest = errors.New("invalid upload request")
)

// AssemblyError reports that the uploaded parts could not be assembled into
// the final object, either because the part list is incomplete or because
// the backend rejected it.
type AssemblyError struct {
	Key    string
	Reason string
	Err    error
}

func (e *AssemblyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("assemble upload %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("assemble upload %s: %s", e.Key, e.Reason)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}
