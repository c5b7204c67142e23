package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/debug/timing"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
)

// Stage transforms one frame into a new frame. Apply never closes its input.
type Stage interface {
	Name() string
	Validate() error
	// Input is the format the stage requires; zero fields are wildcards.
	Input() frame.Format
	// Output is the format produced for a given input format.
	Output(in frame.Format) frame.Format
	Apply(ctx context.Context, in *frame.Frame) (*frame.Frame, error)
}

// Closer is implemented by stages that retain frames between calls.
type Closer interface {
	Close()
}

// ConfigError reports an invalid stage parameter or an incompatible stage sequence.
type ConfigError struct {
	Stage  string
	Param  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "stage " + e.Stage
	if e.Param != "" {
		msg += " parameter " + e.Param
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

type ProcessingChain struct {
	stages []Stage
	timing *timing.Tracker
	logger logger.Logger
	closed bool
}

// NewProcessingChain builds a chain over stages. tracker may be nil.
func NewProcessingChain(stages []Stage, tracker *timing.Tracker, log logger.Logger) *ProcessingChain {
	if log == nil {
		log = logger.Nop()
	}
	return &ProcessingChain{
		stages: stages,
		timing: tracker,
		logger: log,
	}
}

// Validate checks every stage's parameters, then walks the format sequence starting at in
// and returns the format of the chain's output.
func (pc *ProcessingChain) Validate(in frame.Format) (frame.Format, error) {
	for _, stage := range pc.stages {
		if err := stage.Validate(); err != nil {
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				return frame.AnyFormat, err
			}
			return frame.AnyFormat, &ConfigError{Stage: stage.Name(), Reason: "invalid configuration", Err: err}
		}
	}

	current := in
	for i, stage := range pc.stages {
		if !stage.Input().Accepts(current) {
			return frame.AnyFormat, &ConfigError{
				Stage:  stage.Name(),
				Reason: fmt.Sprintf("position %d requires %s but receives %s", i, stage.Input(), current),
			}
		}
		current = stage.Output(stage.Input().Merge(current))
	}

	return current, nil
}

// Execute runs in through every stage. in stays owned by the caller; intermediates are
// closed as soon as the next stage has consumed them.
func (pc *ProcessingChain) Execute(ctx context.Context, in *frame.Frame) (*frame.Frame, error) {
	current := in

	release := func() {
		if current != in {
			current.Close()
		}
	}

	for _, stage := range pc.stages {
		select {
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		default:
		}

		if actual := current.Format(); !stage.Input().Accepts(actual) {
			release()
			return nil, &ConfigError{
				Stage:  stage.Name(),
				Reason: fmt.Sprintf("frame %d has format %s, stage requires %s", current.Index, actual, stage.Input()),
			}
		}

		var span timing.Span
		if pc.timing != nil {
			span = pc.timing.StartTiming(stage.Name())
		}

		result, err := stage.Apply(ctx, current)

		if pc.timing != nil {
			pc.timing.EndTiming(span)
		}

		if err != nil {
			release()
			return nil, fmt.Errorf("stage %s failed: %w", stage.Name(), err)
		}

		release()
		current = result
	}

	if current == in {
		clone, err := in.Mat.Clone("chain_passthrough")
		if err != nil {
			return nil, fmt.Errorf("passthrough copy failed: %w", err)
		}
		return in.Derive(clone), nil
	}

	return current, nil
}

// Close releases frames retained by stateful stages. Safe to call more than once.
func (pc *ProcessingChain) Close() {
	if pc.closed {
		return
	}
	pc.closed = true

	for _, stage := range pc.stages {
		if c, ok := stage.(Closer); ok {
			c.Close()
			pc.logger.Debug("ProcessingChain", "stage state released", map[string]interface{}{
				"stage": stage.Name(),
			})
		}
	}
}

func (pc *ProcessingChain) GetStageNames() []string {
	names := make([]string, len(pc.stages))
	for i, stage := range pc.stages {
		names[i] = stage.Name()
	}
	return names
}
