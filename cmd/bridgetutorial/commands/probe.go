package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/probe"
)

func newProbeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Report geometry and frame count of an input",
		Long: `Open a still image or video the way a run would and read it to the end.
For MP4 files the container's own sample count is reported as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := probe.File(cmd.Context(), args[0], c.logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.stdout, report.Describe())
			return nil
		},
	}
}
