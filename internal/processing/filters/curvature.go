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

const curvatureEpsilon = 1e-6

// CurvatureFlowFilter evolves level sets of the image with speed proportional to their
// curvature: I += dt * (Ixx*Iy^2 - 2*Ix*Iy*Ixy + Iyy*Ix^2) / (Ix^2 + Iy^2).
// Output is always single-channel float.
type CurvatureFlowFilter struct {
	timeStep   float64
	iterations int
}

func NewCurvatureFlowFilter(timeStep float64, iterations int) *CurvatureFlowFilter {
	return &CurvatureFlowFilter{timeStep: timeStep, iterations: iterations}
}

func newCurvatureFlowFromParams(p Params) (chain.Stage, error) {
	timeStep, err := p.Float("curvatureflow", "time_step", 0.5)
	if err != nil {
		return nil, err
	}
	iterations, err := p.Int("curvatureflow", "iterations", 20)
	if err != nil {
		return nil, err
	}
	return NewCurvatureFlowFilter(timeStep, iterations), nil
}

func (c *CurvatureFlowFilter) Name() string {
	return "curvatureflow"
}

func (c *CurvatureFlowFilter) Validate() error {
	if !finite(c.timeStep) || c.timeStep <= 0 {
		return invalid(c.Name(), "time_step", "must be a positive number")
	}
	if c.iterations < 1 {
		return invalid(c.Name(), "iterations", "must be at least 1")
	}
	return nil
}

func (c *CurvatureFlowFilter) Input() frame.Format {
	return frame.Format{Channels: 1}
}

func (c *CurvatureFlowFilter) Output(frame.Format) frame.Format {
	return frame.GrayF32
}

func (c *CurvatureFlowFilter) Apply(ctx context.Context, in *frame.Frame) (*frame.Frame, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := checkInput(in, c.Name()); err != nil {
		return nil, err
	}

	kernels, err := newDerivativeKernels()
	if err != nil {
		return nil, err
	}
	defer kernels.Close()

	srcMat := in.Mat.GetMat()
	current := gocv.NewMat()
	if err := srcMat.ConvertTo(&current, gocv.MatTypeCV32FC1); err != nil {
		current.Close()
		return nil, fmt.Errorf("failed to convert to float: %w", err)
	}

	ws := newCurvatureWorkspace()
	defer ws.Close()

	for i := 0; i < c.iterations; i++ {
		if err := checkContext(ctx); err != nil {
			current.Close()
			return nil, err
		}
		if err := ws.step(&current, kernels, c.timeStep); err != nil {
			current.Close()
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
	}

	out, err := safe.Wrap(current, "curvatureflow")
	if err != nil {
		return nil, fmt.Errorf("curvature flow produced no output: %w", err)
	}
	return in.Derive(out), nil
}

// derivativeKernels are central-difference stencils for unit pixel spacing.
type derivativeKernels struct {
	dx, dy, dxx, dyy, dxy gocv.Mat
}

func newDerivativeKernels() (*derivativeKernels, error) {
	k := &derivativeKernels{
		dx:  kernelFrom(1, 3, []float32{-0.5, 0, 0.5}),
		dy:  kernelFrom(3, 1, []float32{-0.5, 0, 0.5}),
		dxx: kernelFrom(1, 3, []float32{1, -2, 1}),
		dyy: kernelFrom(3, 1, []float32{1, -2, 1}),
		dxy: kernelFrom(3, 3, []float32{
			0.25, 0, -0.25,
			0, 0, 0,
			-0.25, 0, 0.25,
		}),
	}
	for _, m := range []gocv.Mat{k.dx, k.dy, k.dxx, k.dyy, k.dxy} {
		if m.Empty() {
			k.Close()
			return nil, fmt.Errorf("failed to allocate derivative kernel")
		}
	}
	return k, nil
}

func kernelFrom(rows, cols int, values []float32) gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV32FC1)
	for i, v := range values {
		m.SetFloatAt(i/cols, i%cols, v)
	}
	return m
}

func (k *derivativeKernels) Close() {
	k.dx.Close()
	k.dy.Close()
	k.dxx.Close()
	k.dyy.Close()
	k.dxy.Close()
}

type curvatureWorkspace struct {
	ix, iy, ixx, iyy, ixy gocv.Mat
	ix2, iy2, ixiy        gocv.Mat
	a, b, num, den, delta gocv.Mat
}

func newCurvatureWorkspace() *curvatureWorkspace {
	return &curvatureWorkspace{
		ix: gocv.NewMat(), iy: gocv.NewMat(), ixx: gocv.NewMat(), iyy: gocv.NewMat(), ixy: gocv.NewMat(),
		ix2: gocv.NewMat(), iy2: gocv.NewMat(), ixiy: gocv.NewMat(),
		a: gocv.NewMat(), b: gocv.NewMat(), num: gocv.NewMat(), den: gocv.NewMat(), delta: gocv.NewMat(),
	}
}

// step advances current by one explicit Euler update of size dt.
func (w *curvatureWorkspace) step(current *gocv.Mat, k *derivativeKernels, dt float64) error {
	anchor := image.Pt(-1, -1)
	for _, d := range []struct {
		kernel gocv.Mat
		dst    *gocv.Mat
	}{
		{k.dx, &w.ix}, {k.dy, &w.iy},
		{k.dxx, &w.ixx}, {k.dyy, &w.iyy}, {k.dxy, &w.ixy},
	} {
		if err := gocv.Filter2D(*current, d.dst, gocv.MatTypeCV32F, d.kernel, anchor, 0, gocv.BorderReplicate); err != nil {
			return fmt.Errorf("derivative: %w", err)
		}
	}

	// Ixx*Iy^2 + Iyy*Ix^2 - 2*Ix*Iy*Ixy
	ops := []func() error{
		func() error { return gocv.Multiply(w.ix, w.ix, &w.ix2) },
		func() error { return gocv.Multiply(w.iy, w.iy, &w.iy2) },
		func() error { return gocv.Multiply(w.ix, w.iy, &w.ixiy) },
		func() error { return gocv.Multiply(w.ixx, w.iy2, &w.a) },
		func() error { return gocv.Multiply(w.iyy, w.ix2, &w.b) },
		func() error { return gocv.Add(w.a, w.b, &w.num) },
		func() error { return gocv.Multiply(w.ixiy, w.ixy, &w.a) },
		func() error { return gocv.AddWeighted(w.num, 1, w.a, -2, 0, &w.b) },
		func() error { return gocv.Add(w.ix2, w.iy2, &w.den) },
		func() error {
			w.den.AddFloat(curvatureEpsilon)
			return gocv.Divide(w.b, w.den, &w.delta)
		},
		func() error { return gocv.AddWeighted(*current, 1, w.delta, dt, 0, &w.num) },
		func() error { return w.num.CopyTo(current) },
	}
	for _, op := range ops {
		if err := op(); err != nil {
			return fmt.Errorf("curvature update: %w", err)
		}
	}
	return nil
}

func (w *curvatureWorkspace) Close() {
	for _, m := range []*gocv.Mat{
		&w.ix, &w.iy, &w.ixx, &w.iyy, &w.ixy,
		&w.ix2, &w.iy2, &w.ixiy,
		&w.a, &w.b, &w.num, &w.den, &w.delta,
	} {
		m.Close()
	}
}
