package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/conversion"
)

const (
	DefaultFourCC = "DIVX"
	fallbackFPS   = 25.0
)

// VideoFileSink encodes one unit per frame with a fixed codec and frame rate. The writer
// is created from the first frame, whose channel count decides color vs gray output.
type VideoFileSink struct {
	path    string
	fourcc  string
	logger  logger.Logger
	writer  *gocv.VideoWriter
	fps     float64
	width   int
	height  int
	color   bool
	written int
}

func NewVideoFileSink(path, fourcc string, log logger.Logger) (*VideoFileSink, error) {
	if fourcc == "" {
		fourcc = DefaultFourCC
	}
	if len(fourcc) != 4 {
		return nil, NewUsageError("fourcc must be exactly four characters, got %q", fourcc)
	}
	if filepath.Ext(path) == "" {
		return nil, NewUsageError("video output %q needs a container extension", path)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &VideoFileSink{path: path, fourcc: fourcc, logger: log}, nil
}

func (v *VideoFileSink) Path() string {
	return v.path
}

func (v *VideoFileSink) Accepts() frame.Format {
	return frame.Format{Depth: frame.DepthU8}
}

func (v *VideoFileSink) Open(ctx context.Context, props frame.Properties) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.fps = props.FPS
	if v.fps <= 0 {
		v.fps = fallbackFPS
		v.logger.Warning("VideoFileSink", "source reports no frame rate, using fallback", map[string]interface{}{
			"fps": v.fps,
		})
	}
	v.width = props.Width
	v.height = props.Height
	return nil
}

func (v *VideoFileSink) openWriter(f *frame.Frame) error {
	if v.width <= 0 || v.height <= 0 {
		v.width, v.height = f.Width(), f.Height()
	}
	v.color = f.Mat.Channels() != 1

	writer, err := gocv.VideoWriterFile(v.path, v.fourcc, v.fps, v.width, v.height, v.color)
	if err != nil {
		return fmt.Errorf("failed to create video writer: %w", err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return fmt.Errorf("no encoder for codec %s in %s", v.fourcc, filepath.Ext(v.path))
	}

	v.writer = writer
	v.logger.Info("VideoFileSink", "video writer opened", map[string]interface{}{
		"path":   v.path,
		"fourcc": v.fourcc,
		"fps":    v.fps,
		"width":  v.width,
		"height": v.height,
		"color":  v.color,
	})
	return nil
}

func (v *VideoFileSink) Write(ctx context.Context, f *frame.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if v.writer == nil {
		if err := v.openWriter(f); err != nil {
			return &StreamWriteError{Path: v.path, Index: f.Index, Err: err}
		}
	}

	if f.Width() != v.width || f.Height() != v.height {
		return &StreamWriteError{Path: v.path, Index: f.Index, Err: fmt.Errorf(
			"frame is %dx%d, stream is %dx%d", f.Width(), f.Height(), v.width, v.height)}
	}

	out := f.Mat
	switch {
	case v.color && f.Mat.Channels() != 3:
		bgr, err := conversion.ToBGR(f.Mat)
		if err != nil {
			return &StreamWriteError{Path: v.path, Index: f.Index, Err: err}
		}
		defer bgr.Close()
		out = bgr
	case !v.color && f.Mat.Channels() != 1:
		return &StreamWriteError{Path: v.path, Index: f.Index, Err: fmt.Errorf("gray stream received a %d-channel frame", f.Mat.Channels())}
	}

	if err := v.writer.Write(out.GetMat()); err != nil {
		return &StreamWriteError{Path: v.path, Index: f.Index, Err: err}
	}
	v.written++
	return nil
}

func (v *VideoFileSink) Written() int {
	return v.written
}

// Close finalises the container. Closing a sink that never received a frame creates no file.
func (v *VideoFileSink) Close() error {
	if v.writer == nil {
		return nil
	}
	err := v.writer.Close()
	v.writer = nil

	v.logger.Debug("VideoFileSink", "video writer closed", map[string]interface{}{
		"path":           v.path,
		"frames_written": v.written,
	})
	if err != nil {
		return &StreamWriteError{Path: v.path, Index: -1, Err: err}
	}
	return nil
}
