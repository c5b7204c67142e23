package filters

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/processing/chain"
)

const (
	ThresholdFixed = "fixed"
	ThresholdOtsu  = "otsu"
)

// ThresholdFilter binarises a single-channel frame: samples above the threshold become max,
// the rest zero. With the otsu method the threshold is chosen per frame from its histogram.
type ThresholdFilter struct {
	method string
	value  float64
	max    float64
	last   float64
}

func NewThresholdFilter(method string, value, maxValue float64) *ThresholdFilter {
	return &ThresholdFilter{method: method, value: value, max: maxValue}
}

func newThresholdFromParams(p Params) (chain.Stage, error) {
	method, err := p.String("threshold", "method", ThresholdOtsu)
	if err != nil {
		return nil, err
	}
	value, err := p.Float("threshold", "value", 128)
	if err != nil {
		return nil, err
	}
	maxValue, err := p.Float("threshold", "max", 255)
	if err != nil {
		return nil, err
	}
	return NewThresholdFilter(method, value, maxValue), nil
}

func (t *ThresholdFilter) Name() string {
	return "threshold"
}

func (t *ThresholdFilter) Validate() error {
	switch t.method {
	case ThresholdFixed, ThresholdOtsu:
	default:
		return invalid(t.Name(), "method", fmt.Sprintf("must be %s or %s, got %q", ThresholdFixed, ThresholdOtsu, t.method))
	}
	if !finite(t.max) || t.max <= 0 {
		return invalid(t.Name(), "max", "must be a positive number")
	}
	if t.method == ThresholdFixed && (!finite(t.value) || t.value < 0) {
		return invalid(t.Name(), "value", "must be a non-negative number")
	}
	return nil
}

// Otsu's histogram is only defined for 8-bit samples.
func (t *ThresholdFilter) Input() frame.Format {
	if t.method == ThresholdOtsu {
		return frame.Gray8
	}
	return frame.Format{Channels: 1}
}

func (t *ThresholdFilter) Output(in frame.Format) frame.Format {
	return in
}

// Last is the threshold applied to the most recent frame.
func (t *ThresholdFilter) Last() float64 {
	return t.last
}

func (t *ThresholdFilter) Apply(ctx context.Context, in *frame.Frame) (*frame.Frame, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := checkInput(in, t.Name()); err != nil {
		return nil, err
	}

	result, err := safe.NewMat(in.Mat.Rows(), in.Mat.Cols(), in.Mat.Type(), "threshold")
	if err != nil {
		return nil, fmt.Errorf("failed to create result Mat: %w", err)
	}

	typ := gocv.ThresholdBinary
	if t.method == ThresholdOtsu {
		typ |= gocv.ThresholdOtsu
	}

	srcMat := in.Mat.GetMat()
	resultMat := result.GetMat()
	t.last = float64(gocv.Threshold(srcMat, &resultMat, float32(t.value), float32(t.max), typ))

	return in.Derive(result), nil
}
