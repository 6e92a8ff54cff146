// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package logging provides structured logging for the lite client. It wraps
// log/slog with field helpers and a configurable handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tychonet/lite-client/errors"
)

// Logger wraps slog.Logger with additional functionality.
type Logger struct {
	*slog.Logger
	config *Config
}

// Config represents logging configuration.
type Config struct {
	Level  slog.Level `json:"level" yaml:"-"`
	Format string     `json:"format" yaml:"format"` // "json" or "text"
	Output string     `json:"output" yaml:"output"` // "stdout", "stderr", or file path
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value interface{}
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var output io.Writer
	switch config.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
	}

	opts := &slog.HandlerOptions{Level: config.Level}
	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler), config: config}, nil
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  slog.LevelInfo,
		Format: "text",
		Output: "stdout",
	}
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields ...Field) *Logger {
	if len(fields) == 0 {
		return l
	}
	args := make([]any, len(fields)*2)
	for i, field := range fields {
		args[i*2] = field.Key
		args[i*2+1] = field.Value
	}
	return &Logger{Logger: l.Logger.With(args...), config: l.config}
}

// WithComponent returns a logger with component information.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields(Field{Key: "component", Value: component})
}

// WithError returns a logger with error information. Structured error codes
// are added as their own field when present.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	fields := []Field{{Key: "error", Value: err.Error()}}
	if ce, ok := errors.As(err); ok {
		fields = append(fields, Field{Key: "error_code", Value: string(ce.Code)})
	}
	return l.WithFields(fields...)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...Field) {
	l.Logger.Debug(msg, fieldArgs(fields)...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...Field) {
	l.Logger.Info(msg, fieldArgs(fields)...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...Field) {
	l.Logger.Warn(msg, fieldArgs(fields)...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...Field) {
	l.Logger.Error(msg, fieldArgs(fields)...)
}

func fieldArgs(fields []Field) []any {
	args := make([]any, len(fields)*2)
	for i, field := range fields {
		args[i*2] = field.Key
		args[i*2+1] = field.Value
	}
	return args
}

// ParseLevel parses a log level string.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

var defaultLogger *Logger

// Default returns the package-level logger, creating a text logger on first
// use.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger, _ = NewLogger(DefaultConfig())
	}
	return defaultLogger
}

// SetDefault replaces the package-level logger.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
