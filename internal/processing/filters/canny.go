package filters

import (
	"context"
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/processing/chain"
)

// CannyFilter marks edges with 255 on a 0 background. A positive variance smooths the
// frame with a Gaussian of that variance first. Gradients use a 3x3 Sobel aperture.
type CannyFilter struct {
	lower    float64
	upper    float64
	variance float64
}

func NewCannyFilter(lower, upper, variance float64) *CannyFilter {
	return &CannyFilter{
		lower:    lower,
		upper:    upper,
		variance: variance,
	}
}

func newCannyFromParams(p Params) (chain.Stage, error) {
	lower, err := p.Float("canny", "lower", 128)
	if err != nil {
		return nil, err
	}
	upper, err := p.Float("canny", "upper", 255)
	if err != nil {
		return nil, err
	}
	variance, err := p.Float("canny", "variance", 0)
	if err != nil {
		return nil, err
	}
	return NewCannyFilter(lower, upper, variance), nil
}

func (c *CannyFilter) Name() string {
	return "canny"
}

func (c *CannyFilter) Validate() error {
	if !finite(c.lower) || c.lower < 0 {
		return invalid(c.Name(), "lower", "must be a non-negative number")
	}
	if !finite(c.upper) || c.upper < c.lower {
		return invalid(c.Name(), "upper", fmt.Sprintf("%v is below lower threshold %v", c.upper, c.lower))
	}
	if !finite(c.variance) || c.variance < 0 {
		return invalid(c.Name(), "variance", "must be a non-negative number")
	}
	return nil
}

func (c *CannyFilter) Input() frame.Format {
	return frame.Gray8
}

func (c *CannyFilter) Output(frame.Format) frame.Format {
	return frame.Gray8
}

func (c *CannyFilter) Apply(ctx context.Context, in *frame.Frame) (*frame.Frame, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := checkInput(in, c.Name()); err != nil {
		return nil, err
	}

	src := in.Mat
	if c.variance > 0 {
		smoothed, err := gaussianBlur(in.Mat, math.Sqrt(c.variance))
		if err != nil {
			return nil, fmt.Errorf("pre-smoothing failed: %w", err)
		}
		defer smoothed.Close()
		src = smoothed
	}

	edges, err := safe.NewMat(src.Rows(), src.Cols(), gocv.MatTypeCV8UC1, "canny")
	if err != nil {
		return nil, fmt.Errorf("failed to create edge Mat: %w", err)
	}

	srcMat := src.GetMat()
	edgesMat := edges.GetMat()
	if err := gocv.Canny(srcMat, &edgesMat, float32(c.lower), float32(c.upper)); err != nil {
		edges.Close()
		return nil, fmt.Errorf("edge detection failed: %w", err)
	}

	return in.Derive(edges), nil
}
