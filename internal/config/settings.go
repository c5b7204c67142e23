// Package config holds run settings (flags and an optional settings file) and the stage
// lists pipelines are built from.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
)

// Settings keys, shared by flags, viper and settings files.
const (
	KeyLogLevel    = "log_level"
	KeyLogFormat   = "log_format"
	KeyFourCC      = "fourcc"
	KeyDisplay     = "display"
	KeyWindowTitle = "window_title"
)

const (
	DisplayHighGUI = "highgui"
	DisplayFyne    = "fyne"
)

// Settings apply to every exercise.
type Settings struct {
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat   string `mapstructure:"log_format" yaml:"log_format"`
	FourCC      string `mapstructure:"fourcc" yaml:"fourcc"`
	Display     string `mapstructure:"display" yaml:"display"`
	WindowTitle string `mapstructure:"window_title" yaml:"window_title"`
}

// Defaults returns the settings used when neither flags nor a settings file say otherwise.
func Defaults() Settings {
	return Settings{
		LogLevel:    "info",
		LogFormat:   string(logger.FormatAuto),
		FourCC:      "DIVX",
		Display:     DisplayHighGUI,
		WindowTitle: "Bridge Tutorial",
	}
}

// SetDefaults registers Defaults with v.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)
	v.SetDefault(KeyFourCC, d.FourCC)
	v.SetDefault(KeyDisplay, d.Display)
	v.SetDefault(KeyWindowTitle, d.WindowTitle)
}

// Load reads the optional settings file and returns validated settings. Only a file named
// explicitly is read; the environment is never consulted.
func Load(v *viper.Viper, settingsFile string) (Settings, error) {
	SetDefaults(v)

	if settingsFile != "" {
		v.SetConfigFile(settingsFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("failed to read settings file %s: %w", settingsFile, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	var errs []error

	if _, err := logger.ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := logger.ParseFormat(s.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if len(s.FourCC) != 4 {
		errs = append(errs, fmt.Errorf("fourcc must be four characters, got %q", s.FourCC))
	}
	switch strings.ToLower(s.Display) {
	case DisplayHighGUI, DisplayFyne:
	default:
		errs = append(errs, fmt.Errorf("display must be %s or %s, got %q", DisplayHighGUI, DisplayFyne, s.Display))
	}
	if strings.TrimSpace(s.WindowTitle) == "" {
		errs = append(errs, errors.New("window title must not be empty"))
	}

	return errors.Join(errs...)
}
