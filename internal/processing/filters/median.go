package filters

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/processing/chain"
)

// OpenCV only runs apertures above 5 on 8-bit data.
const maxFloatMedianRadius = 2

// MedianFilter replaces each pixel with the median of its (2r+1)x(2r+1) neighbourhood.
type MedianFilter struct {
	radius int
}

func NewMedianFilter(radius int) *MedianFilter {
	return &MedianFilter{radius: radius}
}

func newMedianFromParams(p Params) (chain.Stage, error) {
	radius, err := p.Int("median", "radius", 1)
	if err != nil {
		return nil, err
	}
	return NewMedianFilter(radius), nil
}

func (m *MedianFilter) Name() string {
	return "median"
}

func (m *MedianFilter) KernelSize() int {
	return 2*m.radius + 1
}

func (m *MedianFilter) Validate() error {
	if m.radius < 1 {
		return invalid(m.Name(), "radius", "must be at least 1")
	}
	return nil
}

func (m *MedianFilter) Input() frame.Format {
	if m.radius > maxFloatMedianRadius {
		return frame.Format{Depth: frame.DepthU8}
	}
	return frame.AnyFormat
}

func (m *MedianFilter) Output(in frame.Format) frame.Format {
	return in
}

func (m *MedianFilter) Apply(ctx context.Context, in *frame.Frame) (*frame.Frame, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := checkInput(in, m.Name()); err != nil {
		return nil, err
	}

	out, err := m.applyMedianFiltering(in.Mat)
	if err != nil {
		return nil, err
	}
	return in.Derive(out), nil
}

func (m *MedianFilter) applyMedianFiltering(src *safe.Mat) (*safe.Mat, error) {
	result, err := safe.NewMat(src.Rows(), src.Cols(), src.Type(), "median")
	if err != nil {
		return nil, fmt.Errorf("failed to create result Mat: %w", err)
	}

	srcMat := src.GetMat()
	resultMat := result.GetMat()
	if err := gocv.MedianBlur(srcMat, &resultMat, m.KernelSize()); err != nil {
		result.Close()
		return nil, fmt.Errorf("median blur failed: %w", err)
	}

	return result, nil
}
