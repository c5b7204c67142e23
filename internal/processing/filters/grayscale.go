package filters

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/conversion"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/processing/chain"
)

// GrayscaleConverter collapses 8-bit color frames to one channel.
type GrayscaleConverter struct{}

func NewGrayscaleConverter() *GrayscaleConverter {
	return &GrayscaleConverter{}
}

func newGrayscaleFromParams(Params) (chain.Stage, error) {
	return NewGrayscaleConverter(), nil
}

func (g *GrayscaleConverter) Name() string {
	return "grayscale"
}

func (g *GrayscaleConverter) Validate() error {
	return nil
}

func (g *GrayscaleConverter) Input() frame.Format {
	return frame.Format{Depth: frame.DepthU8}
}

func (g *GrayscaleConverter) Output(frame.Format) frame.Format {
	return frame.Gray8
}

func (g *GrayscaleConverter) Apply(ctx context.Context, in *frame.Frame) (*frame.Frame, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := checkInput(in, g.Name()); err != nil {
		return nil, err
	}

	gray, err := conversion.ToGray(in.Mat)
	if err != nil {
		return nil, err
	}
	return in.Derive(gray), nil
}

// CastFilter changes the sample depth, saturating when narrowing.
type CastFilter struct {
	depth frame.Depth
}

func NewCastFilter(depth frame.Depth) *CastFilter {
	return &CastFilter{depth: depth}
}

func newCastFromParams(p Params) (chain.Stage, error) {
	raw, err := p.String("cast", "depth", "u8")
	if err != nil {
		return nil, err
	}
	depth, err := frame.ParseDepth(raw)
	if err != nil {
		return nil, &chain.ConfigError{Stage: "cast", Param: "depth", Reason: "unsupported", Err: err}
	}
	return NewCastFilter(depth), nil
}

func (c *CastFilter) Name() string {
	return "cast"
}

func (c *CastFilter) Validate() error {
	if c.depth != frame.DepthU8 && c.depth != frame.DepthF32 {
		return invalid(c.Name(), "depth", "must be u8 or f32")
	}
	return nil
}

func (c *CastFilter) Input() frame.Format {
	return frame.AnyFormat
}

func (c *CastFilter) Output(in frame.Format) frame.Format {
	return frame.Format{Channels: in.Channels, Depth: c.depth}
}

func (c *CastFilter) Apply(ctx context.Context, in *frame.Frame) (*frame.Frame, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := checkInput(in, c.Name()); err != nil {
		return nil, err
	}

	target := gocv.MatTypeCV8U
	if c.depth == frame.DepthF32 {
		target = gocv.MatTypeCV32F
	}

	out, err := conversion.ConvertDepth(in.Mat, target)
	if err != nil {
		return nil, err
	}
	return in.Derive(out), nil
}

// RescaleFilter stretches the value range of a single-channel frame onto [min, max].
type RescaleFilter struct {
	min float64
	max float64
}

func NewRescaleFilter(lo, hi float64) *RescaleFilter {
	return &RescaleFilter{min: lo, max: hi}
}

func newRescaleFromParams(p Params) (chain.Stage, error) {
	lo, err := p.Float("rescale", "min", 0)
	if err != nil {
		return nil, err
	}
	hi, err := p.Float("rescale", "max", 255)
	if err != nil {
		return nil, err
	}
	return NewRescaleFilter(lo, hi), nil
}

func (r *RescaleFilter) Name() string {
	return "rescale"
}

func (r *RescaleFilter) Validate() error {
	if !finite(r.min) || !finite(r.max) {
		return invalid(r.Name(), "min/max", "must be finite")
	}
	if r.min < 0 || r.max > 255 {
		return invalid(r.Name(), "min/max", "must lie within [0, 255]")
	}
	if r.min >= r.max {
		return invalid(r.Name(), "min/max", fmt.Sprintf("min %v must be below max %v", r.min, r.max))
	}
	return nil
}

func (r *RescaleFilter) Input() frame.Format {
	return frame.Format{Channels: 1}
}

func (r *RescaleFilter) Output(frame.Format) frame.Format {
	return frame.Gray8
}

func (r *RescaleFilter) Apply(ctx context.Context, in *frame.Frame) (*frame.Frame, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := checkInput(in, r.Name()); err != nil {
		return nil, err
	}

	out, err := conversion.Rescale(in.Mat, r.min, r.max)
	if err != nil {
		return nil, err
	}
	return in.Derive(out), nil
}
