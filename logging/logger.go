// Praefectus - Worker Pool Supervision for Long-Running Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/praefectus

// Package logging provides centralized zerolog-based logging for Praefectus.
//
// Every process in the supervision hierarchy (supervisor, server, worker
// children) initializes this package first thing, from the same
// configuration snapshot, so log records from all three levels land in the
// same destinations with the same format.
//
//   - Zero-allocation structured logging
//   - Output to a rotating log file, or else to stderr or stdout
//   - Level names matching the log_level option (trace..fatal)
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Int("worker_id", id).Msg("worker started")
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: trace, debug, info, warn, error, fatal.
	// Default: debug
	Level string

	// Path is the log file path. Empty means no file output.
	Path string

	// RotateAge is how many rotated files to keep. 0 disables rotation.
	RotateAge int

	// RotateSize is the file size in bytes that triggers rotation.
	RotateSize int64

	// Stdout sends log output to standard output when Path is empty and
	// Stderr is false.
	Stdout bool

	// Stderr sends log output to standard error when Path is empty. With
	// Path empty and both flags false, output still goes to standard error.
	Stderr bool

	// Console switches to human-readable console output instead of JSON.
	Console bool
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "debug",
		Path:       "",
		RotateAge:  5,
		RotateSize: 1048576,
		Stdout:     false,
		Stderr:     true,
	}
}

var (
	// log is the global logger instance.
	log zerolog.Logger

	// mu protects concurrent initialization.
	mu sync.RWMutex

	// rotating is the currently open rotating file writer, if any.
	rotating *RotatingWriter
)

//nolint:gochecknoinits // init ensures logging works before explicit Init() call
func init() {
	initLogger(DefaultConfig())
}

// Init initializes the global logger with the given configuration.
// It is safe to call multiple times; subsequent calls reconfigure the
// logger. Reload does not call it: a new log_level is applied with SetLevel.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	return initLogger(cfg)
}

// initLogger configures the global logger (must be called with mu held).
func initLogger(cfg Config) error {
	if cfg.Level == "" {
		cfg.Level = "debug"
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	// Destination: the log file when one is configured, otherwise the
	// console stream(s) the flags allow. Stderr wins over stdout so the
	// default configuration does not print every record twice.
	var writers []io.Writer
	switch {
	case cfg.Path != "":
		if rotating == nil || rotating.Path() != cfg.Path {
			w, err := NewRotatingWriter(cfg.Path, cfg.RotateSize, cfg.RotateAge)
			if err != nil {
				return err
			}
			if rotating != nil {
				rotating.Close() //nolint:errcheck
			}
			rotating = w
		}
		writers = append(writers, rotating)
	case cfg.Stderr:
		writers = append(writers, os.Stderr)
	case cfg.Stdout:
		writers = append(writers, os.Stdout)
	default:
		writers = append(writers, os.Stderr)
	}

	var output io.Writer = zerolog.MultiLevelWriter(writers...)
	if cfg.Console {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
			NoColor:    true,
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()
	return nil
}

// SetLevel changes the global level in place. Used on reload, where
// log_level is the only dynamically reloadable logger option.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

// ParseLevel converts a string level to zerolog.Level.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.DebugLevel
	}
}

// Logger returns the global logger instance.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// SetLogger replaces the global logger instance.
// This is useful for testing or specialized configurations.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// Trace starts a trace-level log event.
func Trace() *zerolog.Event { l := Logger(); return l.Trace() }

// Debug starts a debug-level log event.
func Debug() *zerolog.Event { l := Logger(); return l.Debug() }

// Info starts an info-level log event.
func Info() *zerolog.Event { l := Logger(); return l.Info() }

// Warn starts a warn-level log event.
func Warn() *zerolog.Event { l := Logger(); return l.Warn() }

// Error starts an error-level log event.
func Error() *zerolog.Event { l := Logger(); return l.Error() }

// Fatal starts a fatal-level log event. The event's Msg exits the process.
func Fatal() *zerolog.Event { l := Logger(); return l.Fatal() }
