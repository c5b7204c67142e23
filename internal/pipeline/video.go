package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
)

// VideoSource reads a video file frame by frame through OpenCV's videoio.
type VideoSource struct {
	path    string
	logger  logger.Logger
	capture *gocv.VideoCapture
	props   frame.Properties
	next    int
	done    bool
}

func NewVideoSource(path string, log logger.Logger) *VideoSource {
	if log == nil {
		log = logger.Nop()
	}
	return &VideoSource{path: path, logger: log}
}

func (v *VideoSource) Path() string {
	return v.path
}

func (v *VideoSource) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := os.Stat(v.path); err != nil {
		return &SourceOpenError{Path: v.path, Err: err}
	}

	capture, err := gocv.VideoCaptureFile(v.path)
	if err != nil {
		return &SourceOpenError{Path: v.path, Err: err}
	}
	if !capture.IsOpened() {
		capture.Close()
		return &SourceOpenError{Path: v.path, Err: fmt.Errorf("no video backend could open the file")}
	}

	v.capture = capture
	v.props = frame.Properties{
		Width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        capture.Get(gocv.VideoCaptureFPS),
		FrameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
	}

	v.logger.Info("VideoSource", "video opened", map[string]interface{}{
		"path":        v.path,
		"width":       v.props.Width,
		"height":      v.props.Height,
		"fps":         v.props.FPS,
		"frame_count": v.props.FrameCount,
	})

	return nil
}

func (v *VideoSource) Properties() frame.Properties {
	return v.props
}

// Next returns io.EOF once the capture stops delivering frames. A capture that stops short
// of its advertised frame count is logged, not reported as an error.
func (v *VideoSource) Next(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v.capture == nil {
		return nil, &StreamReadError{Path: v.path, Index: v.next, Err: fmt.Errorf("source not open")}
	}
	if v.done {
		return nil, io.EOF
	}

	mat := gocv.NewMat()
	if ok := v.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		v.done = true
		if v.props.FrameCount > 0 && v.next < v.props.FrameCount {
			v.logger.Warning("VideoSource", "stream ended before advertised frame count", map[string]interface{}{
				"frames_read": v.next,
				"advertised":  v.props.FrameCount,
			})
		}
		return nil, io.EOF
	}

	m, err := safe.Wrap(mat, "video_frame")
	if err != nil {
		return nil, &StreamReadError{Path: v.path, Index: v.next, Err: err}
	}

	f := frame.New(v.next, m)
	v.next++
	return f, nil
}

func (v *VideoSource) Close() error {
	if v.capture == nil {
		return nil
	}
	err := v.capture.Close()
	v.capture = nil
	return err
}
