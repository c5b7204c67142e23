package pipeline

import (
	"context"
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
)

// stillPollDelay bounds each wait while a still image is on screen, in milliseconds.
const stillPollDelay = 100

// FrameDelay is how long a display waits for a key after showing a frame, in
// milliseconds. Zero means wait indefinitely.
func FrameDelay(props frame.Properties) int {
	if props.Still {
		return 0
	}
	if props.FPS <= 0 {
		return int(math.Round(1000 / fallbackFPS))
	}
	return max(1, int(math.Round(1000/props.FPS)))
}

// WindowSink shows frames in an OpenCV highgui window. Any key press cancels the stream.
type WindowSink struct {
	title  string
	logger logger.Logger
	window *gocv.Window
	delay  int
	shown  int
}

func NewWindowSink(title string, log logger.Logger) *WindowSink {
	if log == nil {
		log = logger.Nop()
	}
	return &WindowSink{title: title, logger: log}
}

func (w *WindowSink) Path() string {
	return "window:" + w.title
}

func (w *WindowSink) Accepts() frame.Format {
	return frame.Format{Depth: frame.DepthU8}
}

func (w *WindowSink) Open(ctx context.Context, props frame.Properties) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.delay = FrameDelay(props)
	w.window = gocv.NewWindow(w.title)
	if props.Width > 0 && props.Height > 0 {
		if err := w.window.ResizeWindow(props.Width, props.Height); err != nil {
			w.logger.Warning("WindowSink", "window resize failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	w.logger.Debug("WindowSink", "window opened", map[string]interface{}{
		"title":    w.title,
		"delay_ms": w.delay,
	})
	return nil
}

func (w *WindowSink) Write(ctx context.Context, f *frame.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.window == nil {
		return &StreamWriteError{Path: w.Path(), Index: f.Index, Err: fmt.Errorf("window not open")}
	}

	if err := w.window.IMShow(f.Mat.GetMat()); err != nil {
		return &StreamWriteError{Path: w.Path(), Index: f.Index, Err: err}
	}
	w.shown++

	key, err := w.waitKey(ctx)
	if err != nil {
		return err
	}
	if key >= 0 {
		w.logger.Debug("WindowSink", "key pressed", map[string]interface{}{
			"key":   key,
			"frame": f.Index,
		})
		return ErrCancelled
	}
	return nil
}

// waitKey waits the frame delay for a key press. A zero delay waits until a key arrives
// or ctx is cancelled.
func (w *WindowSink) waitKey(ctx context.Context) (int, error) {
	if w.delay > 0 {
		return w.window.WaitKey(w.delay), nil
	}
	for {
		if key := w.window.WaitKey(stillPollDelay); key >= 0 {
			return key, nil
		}
		if err := ctx.Err(); err != nil {
			return -1, err
		}
	}
}

func (w *WindowSink) Close() error {
	if w.window == nil {
		return nil
	}
	err := w.window.Close()
	w.window = nil
	return err
}
