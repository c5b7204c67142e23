package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"fyne.io/fyne/v2"
	"github.com/spf13/cobra"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/config"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/debug/timing"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/display"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/pipeline"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/shutdown"
)

// inputOutputArgs accepts "<input> [output]".
func inputOutputArgs(cmd *cobra.Command, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return pipeline.NewUsageError("%s takes an input path and an optional output path, got %d arguments", cmd.Name(), len(args))
	}
	return nil
}

// runExercise streams args[0] through spec. Without args[1] the result is displayed.
func (c *cli) runExercise(cmd *cobra.Command, spec config.PipelineSpec, args []string) error {
	input := args[0]
	output := ""
	if len(args) > 1 {
		output = args[1]
	}

	if output != "" && samePath(input, output) {
		return pipeline.NewUsageError("output %q would overwrite the input", output)
	}

	if output == "" && c.settings.Display == config.DisplayFyne {
		return display.RunWithFyne(func(a fyne.App) error {
			return c.stream(cmd.Context(), spec, input, display.NewFyneSink(a, c.settings.WindowTitle, c.logger))
		})
	}

	sink, err := c.sinkFor(output)
	if err != nil {
		return err
	}
	return c.stream(cmd.Context(), spec, input, sink)
}

// sinkFor picks a file sink by the output's extension, or the highgui window when output
// is empty.
func (c *cli) sinkFor(output string) (pipeline.Sink, error) {
	switch {
	case output == "":
		return pipeline.NewWindowSink(c.settings.WindowTitle, c.logger), nil
	case pipeline.IsStillPath(output):
		return pipeline.NewStillFileSink(output, c.logger)
	default:
		return pipeline.NewVideoFileSink(output, c.settings.FourCC, c.logger)
	}
}

func (c *cli) stream(ctx context.Context, spec config.PipelineSpec, input string, sink pipeline.Sink) error {
	tracker := timing.NewTracker()
	stages, err := spec.Build(tracker, c.logger)
	if err != nil {
		return err
	}

	signals := shutdown.NewManager(ctx, c.logger)
	signals.Listen()
	defer signals.Stop()

	c.logger.Info("CLI", "pipeline starting", map[string]interface{}{
		"pipeline": spec.Name,
		"stages":   stages.GetStageNames(),
		"input":    input,
		"sink":     sink.Path(),
	})

	runner := pipeline.NewRunner(pipeline.OpenSource(input, c.logger), stages, sink, tracker, c.logger)
	stats, err := runner.Run(signals.Context())
	if err != nil {
		return err
	}

	for _, s := range stats.Stages {
		c.logger.Debug("CLI", "stage timing", map[string]interface{}{
			"stage":   s.Operation,
			"count":   s.Count,
			"average": s.Average.String(),
			"max":     s.Max.String(),
		})
	}
	fmt.Fprintf(c.stdout, "%s: %d frames read, %d written to %s\n", spec.Name, stats.FramesRead, stats.FramesWritten, sink.Path())
	return nil
}

// samePath reports whether a and b name the same file, existing or not.
func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}

	infoA, errA := os.Stat(a)
	infoB, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(infoA, infoB)
}
