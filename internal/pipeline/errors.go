package pipeline

import (
	"errors"
	"fmt"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/processing/chain"
)

// ErrCancelled ends a stream early without it being a failure of the stream itself.
var ErrCancelled = errors.New("stream cancelled")

// UsageError is a malformed command line or settings file.
type UsageError struct {
	Msg string
	Err error
}

func (e *UsageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("usage: %s: %v", e.Msg, e.Err)
	}
	return "usage: " + e.Msg
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// NewUsageError formats a UsageError without a cause.
func NewUsageError(format string, args ...interface{}) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// SourceOpenError means the input could not be opened or decoded. No frame was processed.
type SourceOpenError struct {
	Path string
	Err  error
}

func (e *SourceOpenError) Error() string {
	return fmt.Sprintf("cannot open source %q: %v", e.Path, e.Err)
}

func (e *SourceOpenError) Unwrap() error {
	return e.Err
}

// StageConfigError is an invalid stage parameter or stage sequence.
type StageConfigError = chain.ConfigError

// StreamReadError is a failure while pulling a frame from an open source.
type StreamReadError struct {
	Path  string
	Index int
	Err   error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("reading frame %d from %q: %v", e.Index, e.Path, e.Err)
}

func (e *StreamReadError) Unwrap() error {
	return e.Err
}

// StreamWriteError is a failure while opening a sink or delivering a frame to it.
type StreamWriteError struct {
	Path  string
	Index int
	Err   error
}

func (e *StreamWriteError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("writing %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("writing frame %d to %q: %v", e.Index, e.Path, e.Err)
}

func (e *StreamWriteError) Unwrap() error {
	return e.Err
}

// IsUsage reports whether err should be answered with usage help rather than a failure.
func IsUsage(err error) bool {
	var u *UsageError
	return errors.As(err, &u)
}
