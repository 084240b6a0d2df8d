package sink

import (
	"errors"
	"fmt"
)

// ErrHandleExists is returned when a persistent sink is asked for a second live handle
var ErrHandleExists = errors.New("a sink handle has already been created")

// ErrAppendNotSupported is returned by CreateAppender: a sink never accepts local writes
var ErrAppendNotSupported = errors.New("appending to a sink is not supported")

// ErrSearchNotSupported is returned by excerpt search operations when the underlying
// journal offers none, and always in memory mode
var ErrSearchNotSupported = errors.New("excerpt search is not supported by this sink")

// ErrSinkClosed is returned when creating a handle on a closed sink
var ErrSinkClosed = errors.New("sink is closed")

// CorruptedStreamError is a fatal protocol violation by the source: the stream cannot be
// trusted and the handle must be closed. There is no automatic recovery.
type CorruptedStreamError struct {
	Reason string
}

func (e *CorruptedStreamError) Error() string {
	return "stream corrupted: " + e.Reason
}

func newCorruptSizeError(size int32) *CorruptedStreamError {
	return &CorruptedStreamError{Reason: fmt.Sprintf("excerpt size was %d", size)}
}

func newIndexMismatchError(expected int64, received int64) *CorruptedStreamError {
	return &CorruptedStreamError{Reason: fmt.Sprintf("expected index %d but got %d", expected, received)}
}
