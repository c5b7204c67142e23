package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/config"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/pipeline"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/processing/filters"
)

func newRunCommand(c *cli) *cobra.Command {
	var pipelineFile string

	cmd := &cobra.Command{
		Use:   "run <input> [output]",
		Short: "Run a pipeline described in a YAML file",
		Long: `Run the stages listed in a pipeline file. Stage kinds: ` + strings.Join(filters.Kinds(), ", ") + `.

Example pipeline file:

  name: blurred-edges
  stages:
    - kind: grayscale
    - kind: gaussian
      params: {sigma: 2}
    - kind: canny
      params: {lower: 40, upper: 120}`,
		Example: `  bridgetutorial run input.avi output.avi --pipeline stages.yaml`,
		Args:    inputOutputArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pipelineFile == "" {
				return pipeline.NewUsageError("--pipeline is required")
			}
			spec, err := config.LoadPipeline(pipelineFile)
			if err != nil {
				return &pipeline.UsageError{Msg: "invalid pipeline file", Err: err}
			}
			if spec.Name == "" {
				spec.Name = "run"
			}
			return c.runExercise(cmd, spec, args)
		},
	}

	cmd.Flags().StringVarP(&pipelineFile, "pipeline", "p", "", "YAML file listing the stages")
	return cmd
}
