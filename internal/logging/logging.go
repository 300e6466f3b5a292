// Package logging wraps zerolog with the level taxonomy and console/json
// output switch used throughout this codebase, grounded on
// cuemby-warren's pkg/log package.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init replaces it; callers that run
// before Init (tests, early CLI parsing) get a sane info/console default.
var Logger zerolog.Logger = newDefault()

// Level is one of the four levels this CLI exposes on SISIFO_LOG_LEVEL.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures Init.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

func newDefault() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// Init configures the global Logger from cfg. Diagnostic output goes to
// stderr by default so stdout stays clean for command results (spec.md §6.1
// CLI grammar implies scriptable stdout).
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	case InfoLevel, "":
		level = zerolog.InfoLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
}

// LevelFromEnv reads SISIFO_LOG_LEVEL, defaulting to InfoLevel.
func LevelFromEnv() Level {
	switch os.Getenv("SISIFO_LOG_LEVEL") {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// WithTaskID returns a child logger tagging every line with task_id, mirroring
// the per-entity child-logger helpers this stack uses elsewhere.
func WithTaskID(taskID string) zerolog.Logger {
	return Logger.With().Str("task_id", taskID).Logger()
}

// WithComponent returns a child logger tagging every line with component.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(msg string, err error) {
	Logger.Error().Err(err).Msg(msg)
}

// Infof and Warnf log a printf-formatted message at their level. Call sites
// that already hold a structured field (task id, component) should prefer
// WithTaskID/WithComponent chained onto Logger directly instead.
func Infof(format string, args ...any) { Logger.Info().Msgf(format, args...) }
func Warnf(format string, args ...any) { Logger.Warn().Msgf(format, args...) }
