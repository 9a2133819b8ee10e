// Package logger provides a standardized logging interface for the application
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents log levels
type LogLevel string

// Log levels
const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// Config holds logger configuration
type Config struct {
	// Level is the log level: debug, info, warn, error
	Level LogLevel
	// Format can be "json" or "console"
	Format string
	// ConsoleTimeFormat is the time format for console output
	ConsoleTimeFormat string
	// CallerInfo determines whether to include caller information
	CallerInfo bool
	// File, when set, also writes JSON lines to a rotated log file
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:             LogInfo,
		Format:            "console",
		ConsoleTimeFormat: time.RFC3339,
		MaxSizeMB:         10,
		MaxBackups:        3,
		MaxAgeDays:        28,
	}
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(l LogLevel) zerolog.Level {
	switch l {
	case LogDebug:
		return zerolog.DebugLevel
	case LogInfo:
		return zerolog.InfoLevel
	case LogWarn:
		return zerolog.WarnLevel
	case LogError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New builds a logger writing to stderr and, optionally, a rotated file.
func New(config Config) zerolog.Logger {
	return newWithConsole(config, os.Stderr)
}

func newWithConsole(config Config, console io.Writer) zerolog.Logger {
	var out io.Writer = console
	if config.Format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: config.ConsoleTimeFormat,
		}
	}

	if config.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   config.Compress,
		}
		out = zerolog.MultiLevelWriter(out, rotated)
	}

	ctx := zerolog.New(out).Level(ParseLevel(config.Level)).With().Timestamp()
	if config.CallerInfo {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// Setup configures the global logger
func Setup(config Config) zerolog.Logger {
	l := New(config)
	zerolog.SetGlobalLevel(ParseLevel(config.Level))
	log.Logger = l
	return l
}

// Component returns a child logger tagged with the component name.
func Component(parent zerolog.Logger, name string) zerolog.Logger {
	return parent.With().Str("component", name).Logger()
}

// Nop returns a disabled logger, used by tests and library callers that
// do not care about output.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
