package gtfsnext

import (
	"errors"
	"fmt"
)

// ErrDatasetInvalid is returned when a converted store fails the
// structural integrity checks in Validate.
var ErrDatasetInvalid = errors.New("dataset invalid")

// ErrUpdateRunning is returned by TriggerUpdate while a run is in flight.
var ErrUpdateRunning = errors.New("update already running")

// StatusError reports a non-2xx response from the feed server.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Code)
}

// ExhaustedError is terminal: the fetcher gave up after its full retry
// budget. The orchestrator does not retry past it.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("download failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// ConversionError wraps any failure while materializing the archive into
// the relational store.
type ConversionError struct {
	Err error
}

func (e *ConversionError) Error() string { return "conversion failed: " + e.Err.Error() }

func (e *ConversionError) Unwrap() error { return e.Err }
