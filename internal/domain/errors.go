package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidQuery signals a search request that cannot be executed.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrSourceNotFound signals a source id absent from the registry.
	ErrSourceNotFound = errors.New("source not found")
	// ErrSourceDisabled signals a source that is registered but switched off.
	ErrSourceDisabled = errors.New("source disabled")
	// ErrSourceAlreadyRegistered signals a duplicate registry entry.
	ErrSourceAlreadyRegistered = errors.New("source already registered")
	// ErrBudgetExceeded signals an exhausted spend budget for paid sources.
	ErrBudgetExceeded = errors.New("source budget exceeded")
	// ErrSourcePanic signals an adapter that panicked instead of returning an error.
	ErrSourcePanic = errors.New("source adapter panicked")
)

// SourceError attaches the failing source id to an adapter error.
type SourceError struct {
	SourceID string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %s", e.SourceID, e.Err.Error())
}

func (e *SourceError) Unwrap() error { return e.Err }

// NewSourceError wraps err with the source id.
func NewSourceError(sourceID string, err error) error {
	return &SourceError{SourceID: sourceID, Err: err}
}
