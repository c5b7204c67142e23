package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

type Format string

const (
	FormatAuto    Format = "auto"
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

type ZerologAdapter struct {
	logger zerolog.Logger
}

func NewZerolog(writer io.Writer, level LogLevel) *ZerologAdapter {
	logger := zerolog.New(writer).
		Level(level.zerolog()).
		With().
		Timestamp().
		Logger()

	return &ZerologAdapter{logger: logger}
}

func NewConsoleLogger(writer io.Writer, level LogLevel) *ZerologAdapter {
	consoleWriter := zerolog.ConsoleWriter{Out: writer, TimeFormat: time.Kitchen}
	return NewZerolog(consoleWriter, level)
}

// NewForFile picks a console writer for terminals and JSON lines otherwise.
func NewForFile(f *os.File, level LogLevel, format Format) *ZerologAdapter {
	switch format {
	case FormatConsole:
		return NewConsoleLogger(f, level)
	case FormatJSON:
		return NewZerolog(f, level)
	}

	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return NewConsoleLogger(f, level)
	}
	return NewZerolog(f, level)
}

// With returns a copy that stamps every event with key=value.
func (z *ZerologAdapter) With(key string, value interface{}) *ZerologAdapter {
	return &ZerologAdapter{logger: z.logger.With().Interface(key, value).Logger()}
}

func (z *ZerologAdapter) Info(component, message string, fields map[string]interface{}) {
	event := z.logger.Info().Str("component", component)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}

func (z *ZerologAdapter) Error(component string, err error, fields map[string]interface{}) {
	event := z.logger.Error().Str("component", component).Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg("operation failed")
}

func (z *ZerologAdapter) Warning(component, message string, fields map[string]interface{}) {
	event := z.logger.Warn().Str("component", component)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}

func (z *ZerologAdapter) Debug(component, message string, fields map[string]interface{}) {
	event := z.logger.Debug().Str("component", component)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatConsole:
		return FormatConsole, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return FormatAuto, fmt.Errorf("unknown log format %q", s)
	}
}
