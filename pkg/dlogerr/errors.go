// Package dlogerr defines the error taxonomy shared by the segment writer,
// log writer, and segment reader.
package dlogerr

import "errors"

// Sentinel errors. Wrap these with fmt.Errorf("...: %w", ErrX) or with
// *Error when a cause needs to travel with the code.
var (
	// ErrOverLimit is returned when a record or transmission unit exceeds
	// its configured size limit.
	ErrOverLimit = errors.New("dlog: record exceeds maximum size")

	// ErrEndOfStream is returned once a stream has been closed with a
	// terminal end-of-stream record.
	ErrEndOfStream = errors.New("dlog: end of stream")

	// ErrInvalidTxID is returned when a record's txid is negative or equal
	// to the reserved MAX_TXID outside the terminal-marker path.
	ErrInvalidTxID = errors.New("dlog: invalid transaction id")

	// ErrTransmit is returned when a transmission unit fails to be
	// acknowledged by the segment store, or when writes are attempted on
	// an already-errored writer.
	ErrTransmit = errors.New("dlog: transmit failed")

	// ErrFencing is returned when the segment store or coordinator signals
	// that a newer writer has taken ownership of the stream.
	ErrFencing = errors.New("dlog: fenced by another writer")

	// ErrFlushTimeout is returned when a flush does not complete within
	// its configured deadline.
	ErrFlushTimeout = errors.New("dlog: flush timed out")

	// ErrIdleReader is returned when a tailing reader exceeds the
	// configured error-idle threshold with no new records.
	ErrIdleReader = errors.New("dlog: reader idle for too long")

	// ErrLogRead is returned on integrity failures while decoding records:
	// negative lengths, truncated buffers.
	ErrLogRead = errors.New("dlog: log read exception")

	// ErrCancelled is returned to pending operations when a writer or
	// reader is closed or aborted while work is outstanding.
	ErrCancelled = errors.New("dlog: operation cancelled")

	// ErrStreamNotReady is returned to writes submitted while the log
	// writer is rolling and configured to fail fast instead of queueing.
	ErrStreamNotReady = errors.New("dlog: stream not ready, roll in progress")

	// ErrTruncated is returned when a read is requested below the
	// stream's truncation low-water-mark.
	ErrTruncated = errors.New("dlog: position has been truncated")

	// ErrInvalidStreamName is returned for reserved (leading-dot) or
	// malformed (containing '/') stream names.
	ErrInvalidStreamName = errors.New("dlog: invalid stream name")
)

// Error wraps a sentinel code with additional context and an optional
// cause, preserving errors.Is/As compatibility with the sentinel.
type Error struct {
	Code  error
	Cause error
}

// New builds an *Error with the given sentinel code and cause.
func New(code, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Code.Error()
	}
	return e.Code.Error() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Code
}

// Is allows errors.Is(err, dlogerr.ErrTransmit) to succeed against an
// *Error whose Code matches, without requiring callers to unwrap the cause.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Code, target)
}
