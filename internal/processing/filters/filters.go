// Package filters holds the per-frame stages a pipeline is assembled from. Every stage
// allocates a fresh output Mat and leaves its input untouched.
package filters

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/processing/chain"
)

// Params are the raw parameters of one stage, as decoded from flags or YAML.
type Params map[string]interface{}

// Float reads key as a number, falling back to def when absent. NaN and infinities are
// rejected.
func (p Params) Float(stage, key string, def float64) (float64, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return def, nil
	}

	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, &chain.ConfigError{Stage: stage, Param: key, Reason: "not a number", Err: err}
		}
		f = parsed
	default:
		return 0, &chain.ConfigError{Stage: stage, Param: key, Reason: fmt.Sprintf("unsupported value type %T", raw)}
	}

	if !finite(f) {
		return 0, &chain.ConfigError{Stage: stage, Param: key, Reason: fmt.Sprintf("%v is not a finite number", f)}
	}
	return f, nil
}

// Int reads key as a whole number, falling back to def when absent.
func (p Params) Int(stage, key string, def int) (int, error) {
	f, err := p.Float(stage, key, float64(def))
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, &chain.ConfigError{Stage: stage, Param: key, Reason: fmt.Sprintf("%v is not a whole number", f)}
	}
	return int(f), nil
}

func (p Params) String(stage, key, def string) (string, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", &chain.ConfigError{Stage: stage, Param: key, Reason: fmt.Sprintf("expected a string, got %T", raw)}
	}
	return s, nil
}

type constructor func(Params) (chain.Stage, error)

var registry = map[string]constructor{
	"grayscale":     newGrayscaleFromParams,
	"cast":          newCastFromParams,
	"rescale":       newRescaleFromParams,
	"median":        newMedianFromParams,
	"gaussian":      newGaussianFromParams,
	"canny":         newCannyFromParams,
	"threshold":     newThresholdFromParams,
	"curvatureflow": newCurvatureFlowFromParams,
	"framediff":     newFrameDiffFromParams,
	"frameavg":      newFrameAverageFromParams,
}

// Build constructs the stage registered under kind. Range checks happen in Validate.
func Build(kind string, params Params) (chain.Stage, error) {
	ctor, ok := registry[kind]
	if !ok {
		return nil, &chain.ConfigError{Stage: kind, Reason: "unknown stage kind"}
	}
	if params == nil {
		params = Params{}
	}
	return ctor(params)
}

// Kinds lists the registered stage kinds in name order.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func checkInput(in *frame.Frame, stage string) error {
	if in == nil {
		return fmt.Errorf("%s: nil frame", stage)
	}
	return safe.ValidateMatForOperation(in.Mat, stage)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func invalid(stage, param, reason string) error {
	return &chain.ConfigError{Stage: stage, Param: param, Reason: reason}
}
