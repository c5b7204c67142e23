package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/config"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/memory"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/pipeline"
)

const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// cli carries per-invocation state so commands can be built and executed repeatedly in tests.
type cli struct {
	v        *viper.Viper
	cfgFile  string
	settings config.Settings
	logger   logger.Logger
	memory   *memory.Tracker
	runID    string
	started  bool

	stdout  io.Writer
	logFile *os.File
}

func newCLI(stdout io.Writer, logFile *os.File) *cli {
	return &cli{
		v:       viper.New(),
		logger:  logger.Nop(),
		stdout:  stdout,
		logFile: logFile,
	}
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "bridgetutorial",
		Short: "OpenCV bridge tutorial exercises",
		Long: `bridgetutorial runs the bridge tutorial exercises: a source (still image or video)
is converted into the processing representation, passed through a chain of filter
stages, and either shown on screen or written to a file.

Omit the output argument to display the result; give it to persist the result.
A key press in the display window ends a run early.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "settings file (YAML)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (auto, console, json)")
	flags.String("fourcc", "", "codec used when writing video")
	flags.String("display", "", "display backend (highgui, fyne)")
	flags.String("window-title", "", "title of the display window")

	c.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	c.v.BindPFlag(config.KeyLogFormat, flags.Lookup("log-format"))
	c.v.BindPFlag(config.KeyFourCC, flags.Lookup("fourcc"))
	c.v.BindPFlag(config.KeyDisplay, flags.Lookup("display"))
	c.v.BindPFlag(config.KeyWindowTitle, flags.Lookup("window-title"))

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &pipeline.UsageError{Msg: "invalid flags", Err: err}
	})

	root.AddCommand(
		newEdgesCommand(c),
		newMedianCommand(c),
		newSmoothCommand(c),
		newVideoCommand(c),
		newVideoSmoothCommand(c),
		newVideoDiffCommand(c),
		newRunCommand(c),
		newProbeCommand(c),
	)
	return root
}

// setup loads settings and builds the logger before any subcommand runs.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	c.started = true

	settings, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return &pipeline.UsageError{Msg: "invalid settings", Err: err}
	}
	c.settings = settings
	c.settings.Display = strings.ToLower(settings.Display)

	level, _ := logger.ParseLevel(settings.LogLevel)
	format, _ := logger.ParseFormat(settings.LogFormat)

	c.runID = uuid.NewString()
	c.logger = logger.NewForFile(c.logFile, level, format).With("run_id", c.runID)

	c.memory = memory.NewTracker(c.logger)
	safe.SetTracker(c.memory)

	c.logger.Debug("CLI", "settings loaded", map[string]interface{}{
		"command":   cmd.Name(),
		"config":    c.cfgFile,
		"fourcc":    settings.FourCC,
		"display":   settings.Display,
		"log_level": settings.LogLevel,
	})
	return nil
}

// finish reports Mats left open by the run and detaches the tracker.
func (c *cli) finish() {
	if c.memory == nil {
		return
	}
	c.memory.Report()
	safe.SetTracker(nil)
}

// Execute runs the command line in args and returns the process exit status.
func Execute(args []string) int {
	return execute(args, os.Stdout, os.Stderr)
}

func execute(args []string, stdout io.Writer, stderr *os.File) int {
	c := newCLI(stdout, stderr)
	root := newRootCommand(c)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	c.finish()
	if err == nil {
		return ExitOK
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitCode(err, c.started)
}

// exitCode maps an error to a status. Errors raised by cobra before any command ran
// (unknown command, wrong argument count) are usage errors.
func exitCode(err error, started bool) int {
	if pipeline.IsUsage(err) || !started {
		return ExitUsage
	}
	return ExitError
}
