package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/conversion"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
)

var stillExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".gif":  true,
	".webp": true,
}

// IsStillPath reports whether path names a still image rather than a video.
func IsStillPath(path string) bool {
	return stillExtensions[strings.ToLower(filepath.Ext(path))]
}

// OpenSource picks the source implementation from the file extension. Nothing is read
// until Open.
func OpenSource(path string, log logger.Logger) Source {
	if IsStillPath(path) {
		return NewStillSource(path, log)
	}
	return NewVideoSource(path, log)
}

// StillSource emits one decoded image as frame 0.
type StillSource struct {
	path    string
	logger  logger.Logger
	pending *frame.Frame
	props   frame.Properties
	format  string
	emitted bool
}

func NewStillSource(path string, log logger.Logger) *StillSource {
	if log == nil {
		log = logger.Nop()
	}
	return &StillSource{path: path, logger: log}
}

func (s *StillSource) Path() string {
	return s.path
}

func (s *StillSource) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return &SourceOpenError{Path: s.path, Err: err}
	}

	s.logger.Debug("StillSource", "image data read", map[string]interface{}{
		"path":       s.path,
		"size_bytes": len(data),
	})

	mat, format, err := s.decode(data)
	if err != nil {
		return &SourceOpenError{Path: s.path, Err: err}
	}

	s.format = format
	s.pending = frame.New(0, mat)
	s.props = frame.Properties{
		Width:      mat.Cols(),
		Height:     mat.Rows(),
		FrameCount: 1,
		Still:      true,
	}

	s.logger.Info("StillSource", "image loaded", map[string]interface{}{
		"width":    s.props.Width,
		"height":   s.props.Height,
		"channels": mat.Channels(),
		"format":   format,
	})

	return nil
}

// decode prefers the Go codecs and falls back to OpenCV for anything they reject.
func (s *StillSource) decode(data []byte) (*safe.Mat, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		mat, convErr := conversion.ToProcessing(img)
		if convErr != nil {
			return nil, "", fmt.Errorf("bridge conversion failed: %w", convErr)
		}
		return mat, format, nil
	}

	s.logger.Debug("StillSource", "Go decoders declined, trying OpenCV", map[string]interface{}{
		"reason": err.Error(),
	})

	cvMat, cvErr := gocv.IMDecode(data, gocv.IMReadAnyColor)
	if cvErr != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	mat, wrapErr := safe.Wrap(cvMat, "opencv_decoded")
	if wrapErr != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return mat, "opencv", nil
}

func (s *StillSource) Properties() frame.Properties {
	return s.props
}

// Format is the codec that decoded the image, available after Open.
func (s *StillSource) Format() string {
	return s.format
}

func (s *StillSource) Next(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.emitted || s.pending == nil {
		return nil, io.EOF
	}

	s.emitted = true
	f := s.pending
	s.pending = nil
	return f, nil
}

func (s *StillSource) Close() error {
	if s.pending != nil {
		s.pending.Close()
		s.pending = nil
	}
	return nil
}
