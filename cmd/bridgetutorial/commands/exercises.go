package commands

import (
	"github.com/spf13/cobra"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/config"
)

func newEdgesCommand(c *cli) *cobra.Command {
	var lower, upper, variance float64

	cmd := &cobra.Command{
		Use:   "edges <input> [output]",
		Short: "Detect edges in a still image",
		Long: `Convert a still image to grayscale and run the Canny edge detector on it.

A non-zero --variance smooths the image with a Gaussian of that variance before
detection.`,
		Example: `  # Show the edges of an image
  bridgetutorial edges input.png

  # Write them to a file with custom thresholds
  bridgetutorial edges input.png edges.png --lower 50 --upper 150`,
		Args: inputOutputArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runExercise(cmd, config.Edges(lower, upper, variance), args)
		},
	}

	cmd.Flags().Float64Var(&lower, "lower", 128, "lower hysteresis threshold")
	cmd.Flags().Float64Var(&upper, "upper", 255, "upper hysteresis threshold")
	cmd.Flags().Float64Var(&variance, "variance", 0, "Gaussian pre-smoothing variance (0 disables)")
	return cmd
}

func newMedianCommand(c *cli) *cobra.Command {
	var radius int

	cmd := &cobra.Command{
		Use:   "median <input> [output]",
		Short: "Median filter a still image",
		Long: `Convert a still image to grayscale and replace every pixel with the median of its
(2r+1)x(2r+1) neighbourhood.`,
		Example: `  # Light denoising
  bridgetutorial median input.png denoised.png

  # Heavy smoothing
  bridgetutorial median input.png smoothed.png --radius 10`,
		Args: inputOutputArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runExercise(cmd, config.Median(radius), args)
		},
	}

	cmd.Flags().IntVar(&radius, "radius", 1, "median neighbourhood radius (kernel is 2r+1)")
	return cmd
}

func newSmoothCommand(c *cli) *cobra.Command {
	var timeStep float64
	var iterations int

	cmd := &cobra.Command{
		Use:   "smooth <input> [output]",
		Short: "Smooth a still image with curvature flow",
		Long: `Convert a still image to grayscale, smooth it with curvature flow in floating point
and cast the result back to 8-bit samples.`,
		Example: `  bridgetutorial smooth input.png smoothed.png --iterations 10`,
		Args:    inputOutputArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runExercise(cmd, config.Smooth(timeStep, iterations), args)
		},
	}

	addCurvatureFlags(cmd, &timeStep, &iterations)
	return cmd
}

func newVideoCommand(c *cli) *cobra.Command {
	var radius int

	cmd := &cobra.Command{
		Use:   "video <input> [output]",
		Short: "Median filter every frame of a video",
		Long: `Convert every frame of a video to grayscale and apply a median filter to it.

--radius 0 leaves the grayscale frames unfiltered. When displaying, frames are shown at
the source frame rate and any key press stops playback. A still image input is treated
as a one-frame video; the median command filters stills with a smaller default radius.`,
		Example: `  # Play a filtered video
  bridgetutorial video input.avi

  # Write it instead
  bridgetutorial video input.avi filtered.avi --radius 3`,
		Args: inputOutputArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runExercise(cmd, config.VideoMedian(radius), args)
		},
	}

	cmd.Flags().IntVar(&radius, "radius", 9, "median neighbourhood radius (kernel is 2r+1)")
	return cmd
}

func newVideoSmoothCommand(c *cli) *cobra.Command {
	var timeStep float64
	var iterations int

	cmd := &cobra.Command{
		Use:   "video-smooth <input> [output]",
		Short: "Smooth every frame of a video with curvature flow",
		Args:  inputOutputArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runExercise(cmd, config.VideoSmooth(timeStep, iterations), args)
		},
	}

	addCurvatureFlags(cmd, &timeStep, &iterations)
	return cmd
}

func newVideoDiffCommand(c *cli) *cobra.Command {
	var timeStep float64
	var iterations, offset int

	cmd := &cobra.Command{
		Use:   "video-diff <input> [output]",
		Short: "Show how each smoothed frame differs from an earlier one",
		Long: `Smooth every frame of a video with curvature flow, then output the absolute
difference between each frame and the frame --offset positions earlier. The first
frames, which have no predecessor that far back, are compared with the oldest frame
seen so far.`,
		Args: inputOutputArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runExercise(cmd, config.VideoDiff(timeStep, iterations, offset), args)
		},
	}

	addCurvatureFlags(cmd, &timeStep, &iterations)
	cmd.Flags().IntVar(&offset, "offset", 1, "distance in frames to the frame subtracted")
	return cmd
}

func addCurvatureFlags(cmd *cobra.Command, timeStep *float64, iterations *int) {
	cmd.Flags().Float64Var(timeStep, "time-step", 0.5, "curvature flow time step")
	cmd.Flags().IntVar(iterations, "iterations", 20, "curvature flow iterations")
}
