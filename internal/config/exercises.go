package config

// Stage lists for the tutorial exercises. Each returns a fresh spec so callers may edit it.

func Edges(lower, upper, variance float64) PipelineSpec {
	return PipelineSpec{
		Name: "edges",
		Stages: []StageSpec{
			{Kind: "grayscale"},
			{Kind: "canny", Params: map[string]interface{}{
				"lower":    lower,
				"upper":    upper,
				"variance": variance,
			}},
		},
	}
}

func Smooth(timeStep float64, iterations int) PipelineSpec {
	return PipelineSpec{
		Name:   "smooth",
		Stages: curvatureStages(timeStep, iterations),
	}
}

// Median denoises a still with a median of the given radius.
func Median(radius int) PipelineSpec {
	return PipelineSpec{
		Name: "median",
		Stages: []StageSpec{
			{Kind: "grayscale"},
			{Kind: "median", Params: map[string]interface{}{"radius": radius}},
		},
	}
}

// VideoMedian smooths each frame with a median of the given radius. Radius 0 shows the
// grayscale stream unfiltered.
func VideoMedian(radius int) PipelineSpec {
	stages := []StageSpec{{Kind: "grayscale"}}
	if radius != 0 {
		stages = append(stages, StageSpec{Kind: "median", Params: map[string]interface{}{"radius": radius}})
	}
	return PipelineSpec{Name: "video", Stages: stages}
}

func VideoSmooth(timeStep float64, iterations int) PipelineSpec {
	return PipelineSpec{
		Name:   "video-smooth",
		Stages: curvatureStages(timeStep, iterations),
	}
}

// VideoDiff smooths each frame and subtracts the frame offset positions earlier.
func VideoDiff(timeStep float64, iterations, offset int) PipelineSpec {
	stages := curvatureStages(timeStep, iterations)
	stages = append(stages, StageSpec{Kind: "framediff", Params: map[string]interface{}{"offset": offset}})
	return PipelineSpec{Name: "video-diff", Stages: stages}
}

func curvatureStages(timeStep float64, iterations int) []StageSpec {
	return []StageSpec{
		{Kind: "grayscale"},
		{Kind: "curvatureflow", Params: map[string]interface{}{
			"time_step":  timeStep,
			"iterations": iterations,
		}},
		{Kind: "cast", Params: map[string]interface{}{"depth": "u8"}},
	}
}
