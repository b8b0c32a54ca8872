// Package logger provides the process-wide structured logger: zerolog
// events, rotating file output, optional console echo. The package stays
// silent (no-op logger) until Init is called, so library consumers that
// never configure logging are not surprised by output or crashes.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// timeLayout keeps millisecond precision in the emitted timestamps so the
// plain formatter does not have to invent it.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Config holds the logger configuration.
type Config struct {
	Level      string `json:"Level"`
	FilePath   string `json:"FilePath"`
	MaxSizeMB  int    `json:"MaxSizeMB"`
	MaxBackups int    `json:"MaxBackups"`
	MaxAgeDays int    `json:"MaxAgeDays"`
	Compress   bool   `json:"Compress"`
	Console    bool   `json:"Console"`
	Plain      bool   `json:"Plain"`
}

// DefaultConfig returns sensible defaults: info level, no file until a path
// is configured, rotation at 10MB keeping 5 compressed backups for 30 days.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
	}
}

var (
	globalLogger = zerolog.Nop()
	prevFile     io.Closer // closed when Init is called again (hot reload)
)

// Init configures the global logger. Calling it again replaces the previous
// configuration and closes the previous file writer.
func Init(cfg Config) error {
	if err := SetLevel(cfg.Level); err != nil {
		return err
	}
	zerolog.TimeFieldFormat = timeLayout

	if prevFile != nil {
		prevFile.Close()
		prevFile = nil
	}

	var writers []io.Writer

	if cfg.FilePath != "" {
		if dir := filepath.Dir(cfg.FilePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
		rotated := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		prevFile = rotated
		if cfg.Plain {
			writers = append(writers, plainWriter{w: rotated})
		} else {
			writers = append(writers, rotated)
		}
	}

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	var out io.Writer
	if len(writers) == 1 {
		out = writers[0]
	} else {
		out = zerolog.MultiLevelWriter(writers...)
	}

	globalLogger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

// SetLevel adjusts the global level without touching the writers. Used by
// config hot reload.
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Logger returns the global logger instance.
func Logger() *zerolog.Logger {
	return &globalLogger
}

// Debug logs a debug message.
func Debug() *zerolog.Event {
	return globalLogger.Debug()
}

// Info logs an info message.
func Info() *zerolog.Event {
	return globalLogger.Info()
}

// Warn logs a warning message.
func Warn() *zerolog.Event {
	return globalLogger.Warn()
}

// Error logs an error message.
func Error() *zerolog.Event {
	return globalLogger.Error()
}

// WithComponent returns a logger tagged with a component field.
func WithComponent(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}
