// Package frame holds the unit that flows through a pipeline: one still image or one video
// frame, together with the channel/sample-type signature stages check against.
package frame

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
)

type Depth int

const (
	DepthAny Depth = iota
	DepthU8
	DepthF32
)

func (d Depth) String() string {
	switch d {
	case DepthU8:
		return "u8"
	case DepthF32:
		return "f32"
	default:
		return "any"
	}
}

func ParseDepth(s string) (Depth, error) {
	switch s {
	case "u8", "uchar", "uint8":
		return DepthU8, nil
	case "f32", "float", "float32":
		return DepthF32, nil
	default:
		return DepthAny, fmt.Errorf("unknown sample depth %q", s)
	}
}

// Format is a frame signature. Zero fields act as wildcards.
type Format struct {
	Channels int
	Depth    Depth
}

var (
	AnyFormat = Format{}
	Gray8     = Format{Channels: 1, Depth: DepthU8}
	GrayF32   = Format{Channels: 1, Depth: DepthF32}
	BGR8      = Format{Channels: 3, Depth: DepthU8}
	BGRA8     = Format{Channels: 4, Depth: DepthU8}
)

func (f Format) String() string {
	ch := "any"
	if f.Channels > 0 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return ch + "/" + f.Depth.String()
}

// Accepts reports whether a frame of format actual satisfies the requirement f.
func (f Format) Accepts(actual Format) bool {
	if f.Channels != 0 && actual.Channels != 0 && f.Channels != actual.Channels {
		return false
	}
	if f.Depth != DepthAny && actual.Depth != DepthAny && f.Depth != actual.Depth {
		return false
	}
	return true
}

// Merge fills the wildcards of f from actual.
func (f Format) Merge(actual Format) Format {
	if f.Channels == 0 {
		f.Channels = actual.Channels
	}
	if f.Depth == DepthAny {
		f.Depth = actual.Depth
	}
	return f
}

// MatType maps a concrete format to the OpenCV type.
func (f Format) MatType() (gocv.MatType, error) {
	switch f {
	case Gray8:
		return gocv.MatTypeCV8UC1, nil
	case BGR8:
		return gocv.MatTypeCV8UC3, nil
	case BGRA8:
		return gocv.MatTypeCV8UC4, nil
	case GrayF32:
		return gocv.MatTypeCV32FC1, nil
	case Format{Channels: 3, Depth: DepthF32}:
		return gocv.MatTypeCV32FC3, nil
	case Format{Channels: 4, Depth: DepthF32}:
		return gocv.MatTypeCV32FC4, nil
	}
	return gocv.MatTypeCV8UC1, fmt.Errorf("format %s has no OpenCV type", f)
}

// FormatOf reads the signature of an OpenCV type.
func FormatOf(mt gocv.MatType) (Format, error) {
	switch mt {
	case gocv.MatTypeCV8UC1:
		return Gray8, nil
	case gocv.MatTypeCV8UC3:
		return BGR8, nil
	case gocv.MatTypeCV8UC4:
		return BGRA8, nil
	case gocv.MatTypeCV32FC1:
		return GrayF32, nil
	case gocv.MatTypeCV32FC3:
		return Format{Channels: 3, Depth: DepthF32}, nil
	case gocv.MatTypeCV32FC4:
		return Format{Channels: 4, Depth: DepthF32}, nil
	}
	return AnyFormat, fmt.Errorf("unsupported Mat type %d", int(mt))
}

// Frame is exclusively owned by whoever holds it; Close releases the pixels.
type Frame struct {
	Index int
	Mat   *safe.Mat
}

func New(index int, m *safe.Mat) *Frame {
	return &Frame{Index: index, Mat: m}
}

func (f *Frame) Width() int {
	return f.Mat.Cols()
}

func (f *Frame) Height() int {
	return f.Mat.Rows()
}

func (f *Frame) Format() Format {
	format, err := FormatOf(f.Mat.Type())
	if err != nil {
		return Format{Channels: f.Mat.Channels()}
	}
	return format
}

// Derive wraps the result of a transformation of f, keeping its stream position.
func (f *Frame) Derive(m *safe.Mat) *Frame {
	return &Frame{Index: f.Index, Mat: m}
}

func (f *Frame) Close() {
	if f != nil && f.Mat != nil {
		f.Mat.Close()
	}
}

// Properties describes a stream once its source is open.
type Properties struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
	Still      bool
}
