package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/debug/timing"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/processing/chain"
)

// Runner drives frames from a source through a chain into a sink, one frame at a time.
// A Runner executes once.
type Runner struct {
	source Source
	chain  *chain.ProcessingChain
	sink   Sink
	logger logger.Logger
	timing *timing.Tracker
	state  State
	now    func() time.Time
}

// NewRunner takes ownership of source, stages and sink; Run releases all three.
func NewRunner(source Source, stages *chain.ProcessingChain, sink Sink, tracker *timing.Tracker, log logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		source: source,
		chain:  stages,
		sink:   sink,
		logger: log,
		timing: tracker,
		state:  StateIdle,
		now:    time.Now,
	}
}

func (r *Runner) State() State {
	return r.state
}

// Configure validates stage parameters and the format sequence against the sink before
// anything is opened.
func (r *Runner) Configure() error {
	if r.state != StateIdle {
		return fmt.Errorf("runner cannot be configured in state %s", r.state)
	}

	out, err := r.chain.Validate(frame.AnyFormat)
	if err != nil {
		return err
	}
	if !r.sink.Accepts().Accepts(out) {
		return &StageConfigError{
			Stage:  "sink",
			Reason: fmt.Sprintf("%s accepts %s but the pipeline produces %s", r.sink.Path(), r.sink.Accepts(), out),
		}
	}

	r.state = StateConfigured
	r.logger.Debug("Runner", "pipeline configured", map[string]interface{}{
		"stages": r.chain.GetStageNames(),
		"output": out.String(),
	})
	return nil
}

// Run executes the pipeline to end of stream. A sink returning ErrCancelled ends the run
// successfully with Cancelled set; context cancellation ends it with ErrCancelled. Source,
// sink and stage state are released on every path.
func (r *Runner) Run(ctx context.Context) (stats RunStats, err error) {
	if r.state == StateIdle {
		if err := r.Configure(); err != nil {
			r.chain.Close()
			r.state = StateClosed
			return stats, err
		}
	}
	if r.state != StateConfigured {
		return stats, fmt.Errorf("runner cannot run in state %s", r.state)
	}

	start := r.now()
	defer func() {
		stats.Duration = r.now().Sub(start)
		if r.timing != nil {
			stats.Stages = r.timing.Summaries()
		}
	}()

	if err := r.source.Open(ctx); err != nil {
		r.release()
		var openErr *SourceOpenError
		if !errors.As(err, &openErr) {
			err = &SourceOpenError{Path: r.source.Path(), Err: err}
		}
		return stats, err
	}

	props := r.source.Properties()
	if err := r.sink.Open(ctx, props); err != nil {
		r.sink.Close()
		r.release()
		var writeErr *StreamWriteError
		if !errors.As(err, &writeErr) {
			err = &StreamWriteError{Path: r.sink.Path(), Index: -1, Err: err}
		}
		return stats, err
	}
	r.state = StateOpened

	defer func() {
		if closeErr := r.closeAll(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	r.state = StateStreaming
	r.logger.Info("Runner", "streaming started", map[string]interface{}{
		"source": r.source.Path(),
		"sink":   r.sink.Path(),
		"still":  props.Still,
	})

	for {
		if ctx.Err() != nil {
			stats.Cancelled = true
			return stats, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}

		in, err := r.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				stats.Cancelled = true
				return stats, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
			return stats, r.readError(err, stats.FramesRead)
		}
		stats.FramesRead++

		out, err := r.chain.Execute(ctx, in)
		in.Close()
		if err != nil {
			if ctx.Err() != nil {
				stats.Cancelled = true
				return stats, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
			return stats, err
		}

		err = r.deliver(ctx, out)
		out.Close()
		if errors.Is(err, ErrCancelled) {
			stats.FramesWritten++
			stats.Cancelled = true
			r.logger.Info("Runner", "stream cancelled from display", nil)
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				stats.Cancelled = true
				return stats, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
			return stats, err
		}
		stats.FramesWritten++
	}

	r.logger.Info("Runner", "streaming finished", stats.Fields())
	return stats, nil
}

func (r *Runner) deliver(ctx context.Context, out *frame.Frame) error {
	if !r.sink.Accepts().Accepts(out.Format()) {
		return &StreamWriteError{
			Path:  r.sink.Path(),
			Index: out.Index,
			Err:   fmt.Errorf("sink accepts %s, frame is %s", r.sink.Accepts(), out.Format()),
		}
	}

	err := r.sink.Write(ctx, out)
	if err == nil || errors.Is(err, ErrCancelled) {
		return err
	}

	var writeErr *StreamWriteError
	if !errors.As(err, &writeErr) {
		err = &StreamWriteError{Path: r.sink.Path(), Index: out.Index, Err: err}
	}
	return err
}

func (r *Runner) readError(err error, index int) error {
	var readErr *StreamReadError
	if errors.As(err, &readErr) {
		return err
	}
	return &StreamReadError{Path: r.source.Path(), Index: index, Err: err}
}

// closeAll releases the sink before the source so a video container is finalised even
// when the source fails to close.
func (r *Runner) closeAll() error {
	var errs []error
	if err := r.sink.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.source.Close(); err != nil {
		r.logger.Warning("Runner", "source close failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	r.chain.Close()
	r.state = StateClosed
	return errors.Join(errs...)
}

// release handles the paths where streaming never started.
func (r *Runner) release() {
	r.source.Close()
	r.chain.Close()
	r.state = StateClosed
}
