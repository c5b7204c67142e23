package filters

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/processing/chain"
)

type GaussianFilter struct {
	sigma float64
}

func NewGaussianFilter(sigma float64) *GaussianFilter {
	return &GaussianFilter{sigma: sigma}
}

func newGaussianFromParams(p Params) (chain.Stage, error) {
	sigma, err := p.Float("gaussian", "sigma", 1.0)
	if err != nil {
		return nil, err
	}
	return NewGaussianFilter(sigma), nil
}

func (g *GaussianFilter) Name() string {
	return "gaussian"
}

func (g *GaussianFilter) Validate() error {
	if !finite(g.sigma) || g.sigma <= 0 {
		return invalid(g.Name(), "sigma", "must be a positive number")
	}
	return nil
}

func (g *GaussianFilter) Input() frame.Format {
	return frame.AnyFormat
}

func (g *GaussianFilter) Output(in frame.Format) frame.Format {
	return in
}

func (g *GaussianFilter) Apply(ctx context.Context, in *frame.Frame) (*frame.Frame, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := checkInput(in, g.Name()); err != nil {
		return nil, err
	}

	out, err := gaussianBlur(in.Mat, g.sigma)
	if err != nil {
		return nil, err
	}
	return in.Derive(out), nil
}

func gaussianBlur(src *safe.Mat, sigma float64) (*safe.Mat, error) {
	dst, err := safe.NewMat(src.Rows(), src.Cols(), src.Type(), "gaussian")
	if err != nil {
		return nil, fmt.Errorf("failed to create destination Mat: %w", err)
	}

	kernelSize := gaussianKernelSize(sigma)

	srcMat := src.GetMat()
	dstMat := dst.GetMat()
	if err := gocv.GaussianBlur(srcMat, &dstMat, image.Point{X: kernelSize, Y: kernelSize}, sigma, sigma, gocv.BorderReplicate); err != nil {
		dst.Close()
		return nil, fmt.Errorf("gaussian blur failed: %w", err)
	}

	return dst, nil
}

// gaussianKernelSize covers +/-3 sigma with an odd width.
func gaussianKernelSize(sigma float64) int {
	kernelSize := int(sigma*6) + 1
	if kernelSize%2 == 0 {
		kernelSize++
	}
	return max(3, kernelSize)
}
