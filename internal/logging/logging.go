// Package logging builds the zerolog loggers used across the scanner.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Output     io.Writer
}

// DefaultLogConfig returns console-only logging at info level.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		FilePath:   filepath.Join(home, ".config", "pivotscan", "logs", "pivotscan.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
	}
}

var levelLabels = map[string]*color.Color{
	"debug": color.New(color.FgCyan),
	"info":  color.New(color.FgGreen),
	"warn":  color.New(color.FgYellow),
	"error": color.New(color.FgRed),
}

// NewLoggerWithConfig creates a logger writing to the console, the rotating
// log file, or both. Console output goes to stderr unless Output is set so
// stdout stays clean for JSON and YAML results. The file receives JSON lines.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, consoleWriter(cfg.Output))
	}
	if w, ok := fileWriter(cfg); ok {
		writers = append(writers, w)
	}

	var writer io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(writer).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	if out == nil {
		out = os.Stderr
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    color.NoColor,
		TimeFormat: time.Kitchen,
		FormatLevel: func(i interface{}) string {
			level, _ := i.(string)
			label := strings.ToUpper(level)
			if len(label) > 3 {
				label = label[:3]
			}
			if c, ok := levelLabels[level]; ok {
				return c.Sprint(label)
			}
			return label
		},
	}
}

func fileWriter(cfg LogConfig) (io.Writer, bool) {
	if !cfg.File || cfg.FilePath == "" {
		return nil, false
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, false
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}, true
}

// ParseLevel maps debug, info, warn or error to a zerolog level. Anything
// else is info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

type loggerKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger carried by ctx, or a no-op logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogSignal records a scan signal.
func LogSignal(logger zerolog.Logger, symbol string, score int, kinds []string, volumeRatio float64) {
	logger.Info().
		Str("event", "signal").
		Str("symbol", symbol).
		Int("score", score).
		Strs("patterns", kinds).
		Float64("volume_ratio", volumeRatio).
		Msg("Signal scored")
}

// LogPositionTransition records a position entering status at price.
func LogPositionTransition(logger zerolog.Logger, id, symbol, status string, price float64) {
	logger.Info().
		Str("event", "position").
		Str("position_id", id).
		Str("symbol", symbol).
		Str("status", status).
		Float64("price", price).
		Msg("Position update")
}
