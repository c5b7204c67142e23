package pipeline

import (
	"context"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
)

// Source produces frames in stream order. Next returns io.EOF once the stream is exhausted.
// Frames returned by Next belong to the caller.
type Source interface {
	Open(ctx context.Context) error
	Properties() frame.Properties
	Next(ctx context.Context) (*frame.Frame, error)
	Close() error
	Path() string
}

// Sink consumes frames in arrival order. Write never takes ownership of the frame.
// Write may return ErrCancelled to end the stream early.
type Sink interface {
	// Accepts is the frame format the sink can encode or display.
	Accepts() frame.Format
	Open(ctx context.Context, props frame.Properties) error
	Write(ctx context.Context, f *frame.Frame) error
	Close() error
	Path() string
}

// State is the lifecycle position of a Runner.
type State int

const (
	StateIdle State = iota
	StateConfigured
	StateOpened
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateOpened:
		return "opened"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
