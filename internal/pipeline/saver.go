package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/conversion"
)

type encoder func(w io.Writer, img image.Image) error

var stillEncoders = map[string]encoder{
	"png": png.Encode,
	"jpeg": func(w io.Writer, img image.Image) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	},
	"gif": func(w io.Writer, img image.Image) error {
		return gif.Encode(w, img, nil)
	},
	"bmp": bmp.Encode,
	"tiff": func(w io.Writer, img image.Image) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	},
}

func encoderFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".gif":
		return "gif"
	case ".bmp":
		return "bmp"
	case ".tif", ".tiff":
		return "tiff"
	default:
		return ""
	}
}

// StillFileSink encodes exactly one frame. The output file is created on the first write,
// so a run that fails earlier never creates or truncates it.
type StillFileSink struct {
	path    string
	format  string
	logger  logger.Logger
	written int
}

// NewStillFileSink fails with a UsageError when the extension has no encoder.
func NewStillFileSink(path string, log logger.Logger) (*StillFileSink, error) {
	format := encoderFormat(path)
	if format == "" {
		return nil, NewUsageError("unsupported still output extension %q", filepath.Ext(path))
	}
	if log == nil {
		log = logger.Nop()
	}
	return &StillFileSink{path: path, format: format, logger: log}, nil
}

func (s *StillFileSink) Path() string {
	return s.path
}

func (s *StillFileSink) Accepts() frame.Format {
	return frame.Format{Depth: frame.DepthU8}
}

func (s *StillFileSink) Open(ctx context.Context, props frame.Properties) error {
	if !props.Still {
		return &StreamWriteError{Path: s.path, Index: -1, Err: fmt.Errorf("a %s file holds a single image, the source is a video", s.format)}
	}
	return ctx.Err()
}

func (s *StillFileSink) Write(ctx context.Context, f *frame.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.written > 0 {
		return &StreamWriteError{Path: s.path, Index: f.Index, Err: fmt.Errorf("still output already written")}
	}

	img, err := conversion.FromProcessing(f.Mat)
	if err != nil {
		return &StreamWriteError{Path: s.path, Index: f.Index, Err: err}
	}

	if err := s.encodeToFile(img); err != nil {
		return &StreamWriteError{Path: s.path, Index: f.Index, Err: err}
	}
	s.written++

	s.logger.Info("StillFileSink", "image saved", map[string]interface{}{
		"path":   s.path,
		"format": s.format,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	})
	return nil
}

func (s *StillFileSink) encodeToFile(img image.Image) error {
	file, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}

	if err := stillEncoders[s.format](file, img); err != nil {
		file.Close()
		os.Remove(s.path)
		return fmt.Errorf("%s encoding failed: %w", s.format, err)
	}

	if err := file.Close(); err != nil {
		os.Remove(s.path)
		return fmt.Errorf("failed to finish output: %w", err)
	}
	return nil
}

func (s *StillFileSink) Written() int {
	return s.written
}

func (s *StillFileSink) Close() error {
	return nil
}
