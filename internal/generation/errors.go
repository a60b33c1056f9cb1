package generation

import (
	"errors"
	"fmt"
)

// ErrDocumentNotFound is returned when the store has no document for the user and id.
var ErrDocumentNotFound = errors.New("document not found")

// RequestError reports a request that failed validation before any work was done.
type RequestError struct {
	Message string
	Cause   error
}

func (e *RequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid request: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid request: %s", e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}

// StoreError reports a document store failure. Store failures are never folded
// into a failed result.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("document store %s failed: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}
