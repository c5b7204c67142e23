package conversion

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
)

// ConvertDepth changes the sample depth and keeps the channel count. depth is a bare depth
// constant (gocv.MatTypeCV8U or gocv.MatTypeCV32F). Narrowing saturates and rounds.
func ConvertDepth(src *safe.Mat, depth gocv.MatType) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "depth conversion"); err != nil {
		return nil, err
	}

	targetType := withChannels(depth, src.Channels())
	if src.Type() == targetType {
		return src.Clone(src.Tag())
	}

	srcMat := src.GetMat()
	dstMat := gocv.NewMat()
	if err := srcMat.ConvertTo(&dstMat, targetType); err != nil {
		return nil, discard(dstMat, "depth conversion", err)
	}

	return safe.Wrap(dstMat, "converted_"+depthName(depth))
}

// Rescale maps the full value range of a single-channel Mat linearly onto [lo, hi] and
// stores the result as 8-bit. A constant image maps to lo.
func Rescale(src *safe.Mat, lo, hi float64) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "rescale"); err != nil {
		return nil, err
	}
	if src.Channels() != 1 {
		return nil, fmt.Errorf("rescale requires 1 channel, got %d", src.Channels())
	}

	srcMat := src.GetMat()
	floatMat := gocv.NewMat()
	defer floatMat.Close()
	if err := srcMat.ConvertTo(&floatMat, gocv.MatTypeCV32FC1); err != nil {
		return nil, fmt.Errorf("rescale: %w", err)
	}

	minVal, maxVal, _, _ := gocv.MinMaxLoc(floatMat)

	scale, offset := 0.0, lo
	if maxVal != minVal {
		scale = (hi - lo) / float64(maxVal-minVal)
		offset = lo - float64(minVal)*scale
	}

	dstMat := gocv.NewMat()
	if err := floatMat.ConvertToWithParams(&dstMat, gocv.MatTypeCV8UC1, float32(scale), float32(offset)); err != nil {
		return nil, discard(dstMat, "rescale", err)
	}

	return safe.Wrap(dstMat, "rescaled")
}

// ToGray collapses BGR/BGRA to one channel; single-channel input is cloned.
func ToGray(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "grayscale conversion"); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var code gocv.ColorConversionCode
	switch src.Channels() {
	case 1:
		return src.Clone("gray")
	case 3:
		code = gocv.ColorBGRToGray
	case 4:
		code = gocv.ColorBGRAToGray
	default:
		return nil, fmt.Errorf("unsupported channel count: %d", src.Channels())
	}

	if err := safe.ValidateColorConversion(src, code); err != nil {
		return nil, err
	}

	srcMat := src.GetMat()
	dstMat := gocv.NewMat()
	if err := gocv.CvtColor(srcMat, &dstMat, code); err != nil {
		return nil, discard(dstMat, "grayscale conversion", err)
	}

	return safe.Wrap(dstMat, "gray")
}

// ToBGR expands single-channel 8-bit input to three channels for encoders that need color.
func ToBGR(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "BGR expansion"); err != nil {
		return nil, err
	}

	var code gocv.ColorConversionCode
	switch src.Channels() {
	case 3:
		return src.Clone("bgr")
	case 1:
		code = gocv.ColorGrayToBGR
	case 4:
		code = gocv.ColorBGRAToBGR
	default:
		return nil, fmt.Errorf("unsupported channel count: %d", src.Channels())
	}

	srcMat := src.GetMat()
	dstMat := gocv.NewMat()
	if err := gocv.CvtColor(srcMat, &dstMat, code); err != nil {
		return nil, discard(dstMat, "BGR expansion", err)
	}
	return safe.Wrap(dstMat, "bgr")
}

// discard releases a destination Mat an OpenCV call failed to fill.
func discard(m gocv.Mat, op string, err error) error {
	m.Close()
	return fmt.Errorf("%s failed: %w", op, err)
}

func withChannels(depth gocv.MatType, channels int) gocv.MatType {
	switch depth {
	case gocv.MatTypeCV32F:
		switch channels {
		case 3:
			return gocv.MatTypeCV32FC3
		case 4:
			return gocv.MatTypeCV32FC4
		default:
			return gocv.MatTypeCV32FC1
		}
	default:
		switch channels {
		case 3:
			return gocv.MatTypeCV8UC3
		case 4:
			return gocv.MatTypeCV8UC4
		default:
			return gocv.MatTypeCV8UC1
		}
	}
}

func depthName(depth gocv.MatType) string {
	if depth == gocv.MatTypeCV32F {
		return "f32"
	}
	return "u8"
}
