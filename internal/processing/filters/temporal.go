package filters

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/conversion"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/processing/chain"
)

// history is a bounded FIFO of frames a stage owns.
type history struct {
	capacity int
	mats     []*safe.Mat
}

func (h *history) push(m *safe.Mat) {
	h.mats = append(h.mats, m)
	for len(h.mats) > h.capacity {
		h.mats[0].Close()
		h.mats = h.mats[1:]
	}
}

func (h *history) oldest() *safe.Mat {
	if len(h.mats) == 0 {
		return nil
	}
	return h.mats[0]
}

func (h *history) Len() int {
	return len(h.mats)
}

func (h *history) clear() {
	for _, m := range h.mats {
		m.Close()
	}
	h.mats = nil
}

// FrameDifferenceFilter outputs |frame(t) - frame(t-offset)|. Until offset frames have been
// seen the oldest retained frame is the reference, so the first frame maps to zeros.
type FrameDifferenceFilter struct {
	offset int
	past   history
}

func NewFrameDifferenceFilter(offset int) *FrameDifferenceFilter {
	return &FrameDifferenceFilter{offset: offset, past: history{capacity: offset}}
}

func newFrameDiffFromParams(p Params) (chain.Stage, error) {
	offset, err := p.Int("framediff", "offset", 1)
	if err != nil {
		return nil, err
	}
	return NewFrameDifferenceFilter(offset), nil
}

func (f *FrameDifferenceFilter) Name() string {
	return "framediff"
}

func (f *FrameDifferenceFilter) Validate() error {
	if f.offset < 1 {
		return invalid(f.Name(), "offset", "must be at least 1")
	}
	return nil
}

func (f *FrameDifferenceFilter) Input() frame.Format {
	return frame.AnyFormat
}

func (f *FrameDifferenceFilter) Output(in frame.Format) frame.Format {
	return in
}

func (f *FrameDifferenceFilter) Apply(ctx context.Context, in *frame.Frame) (*frame.Frame, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := checkInput(in, f.Name()); err != nil {
		return nil, err
	}

	reference := f.past.oldest()
	if reference == nil {
		reference = in.Mat
	}
	if err := safe.ValidateSameGeometry(in.Mat, reference, f.Name()); err != nil {
		return nil, err
	}
	if reference.Type() != in.Mat.Type() {
		return nil, fmt.Errorf("%s: frame %d changed type mid-stream", f.Name(), in.Index)
	}

	diff, err := safe.NewMat(in.Height(), in.Width(), in.Mat.Type(), "framediff")
	if err != nil {
		return nil, fmt.Errorf("failed to create difference Mat: %w", err)
	}

	currentMat := in.Mat.GetMat()
	referenceMat := reference.GetMat()
	diffMat := diff.GetMat()
	if err := gocv.AbsDiff(currentMat, referenceMat, &diffMat); err != nil {
		diff.Close()
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}

	retained, err := in.Mat.Clone("framediff_history")
	if err != nil {
		diff.Close()
		return nil, err
	}
	f.past.push(retained)

	return in.Derive(diff), nil
}

func (f *FrameDifferenceFilter) Retained() int {
	return f.past.Len()
}

func (f *FrameDifferenceFilter) Close() {
	f.past.clear()
}

// FrameAverageFilter outputs the float mean of the last window frames, the current one
// included. Fewer frames are averaged while the window fills.
type FrameAverageFilter struct {
	window int
	past   history
}

func NewFrameAverageFilter(window int) *FrameAverageFilter {
	return &FrameAverageFilter{window: window, past: history{capacity: window}}
}

func newFrameAverageFromParams(p Params) (chain.Stage, error) {
	window, err := p.Int("frameavg", "window", 3)
	if err != nil {
		return nil, err
	}
	return NewFrameAverageFilter(window), nil
}

func (f *FrameAverageFilter) Name() string {
	return "frameavg"
}

func (f *FrameAverageFilter) Validate() error {
	if f.window < 1 {
		return invalid(f.Name(), "window", "must be at least 1")
	}
	return nil
}

func (f *FrameAverageFilter) Input() frame.Format {
	return frame.AnyFormat
}

func (f *FrameAverageFilter) Output(in frame.Format) frame.Format {
	return frame.Format{Channels: in.Channels, Depth: frame.DepthF32}
}

func (f *FrameAverageFilter) Apply(ctx context.Context, in *frame.Frame) (*frame.Frame, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := checkInput(in, f.Name()); err != nil {
		return nil, err
	}

	asFloat, err := conversion.ConvertDepth(in.Mat, gocv.MatTypeCV32F)
	if err != nil {
		return nil, err
	}
	if prev := f.past.oldest(); prev != nil {
		if err := safe.ValidateSameGeometry(asFloat, prev, f.Name()); err != nil {
			asFloat.Close()
			return nil, err
		}
		if prev.Channels() != asFloat.Channels() {
			asFloat.Close()
			return nil, fmt.Errorf("%s: frame %d changed channel count mid-stream", f.Name(), in.Index)
		}
	}
	f.past.push(asFloat)

	sum := gocv.NewMat()
	defer sum.Close()
	first := f.past.mats[0].GetMat()
	if err := first.CopyTo(&sum); err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	for _, m := range f.past.mats[1:] {
		next := m.GetMat()
		if err := gocv.Add(sum, next, &sum); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name(), err)
		}
	}

	mean := gocv.NewMat()
	if err := sum.ConvertToWithParams(&mean, sum.Type(), float32(1.0/float64(f.past.Len())), 0); err != nil {
		mean.Close()
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}

	out, err := safe.Wrap(mean, "frameavg")
	if err != nil {
		return nil, err
	}
	return in.Derive(out), nil
}

func (f *FrameAverageFilter) Retained() int {
	return f.past.Len()
}

func (f *FrameAverageFilter) Close() {
	f.past.clear()
}
