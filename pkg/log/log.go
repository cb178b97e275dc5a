// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

package log

import (
	"os"

	"github.com/luxfi/node/utils/logging"
	"go.uber.org/zap"
)

// Logger is the logging interface used across the reporting engine.
// Fatal logs the message and terminates the process.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Fatal(msg string, fields ...zap.Field)
	Sync() error
}

// exit is swapped out in tests.
var exit = os.Exit

// vlLogger wraps luxfi/node's Logger
type vlLogger struct {
	log logging.Logger
}

// New creates a new logger at info level.
func New() Logger {
	return NewWithLevel("info")
}

// NewWithLevel creates a new logger with a specific level.
func NewWithLevel(level string) Logger {
	lvl := logging.Info
	switch level {
	case "debug":
		lvl = logging.Debug
	case "info":
		lvl = logging.Info
	case "warn":
		lvl = logging.Warn
	case "error":
		lvl = logging.Error
	case "fatal":
		lvl = logging.Fatal
	}

	config := logging.Config{
		DisplayLevel:            lvl,
		LogLevel:                lvl,
		DisableWriterDisplaying: false,
	}

	factory := logging.NewFactory(config)
	log, err := factory.Make("reporting")
	if err != nil {
		return &noOpLogger{}
	}

	return &vlLogger{log: log}
}

// NewNamed creates a new logger with a name.
func NewNamed(name string) Logger {
	config := logging.Config{
		DisplayLevel: logging.Info,
		LogLevel:     logging.Info,
	}

	factory := logging.NewFactory(config)
	log, err := factory.Make(name)
	if err != nil {
		return &noOpLogger{}
	}

	return &vlLogger{log: log}
}

// NoOp returns a no-op logger
func NoOp() Logger {
	return &noOpLogger{}
}

// NoLog is a no-op logger instance
var NoLog = NoOp()

func (l *vlLogger) Debug(msg string, fields ...zap.Field) {
	l.log.Debug(msg, fields...)
}

func (l *vlLogger) Info(msg string, fields ...zap.Field) {
	l.log.Info(msg, fields...)
}

func (l *vlLogger) Warn(msg string, fields ...zap.Field) {
	l.log.Warn(msg, fields...)
}

func (l *vlLogger) Error(msg string, fields ...zap.Field) {
	l.log.Error(msg, fields...)
}

func (l *vlLogger) Fatal(msg string, fields ...zap.Field) {
	l.log.Fatal(msg, fields...)
	l.log.Stop()
	exit(1)
}

// Sync flushes any buffered log entries
func (l *vlLogger) Sync() error {
	l.log.Stop()
	return nil
}

// noOpLogger discards every message. Fatal still terminates: silence must
// not soften Fatal into a continuable error.
type noOpLogger struct{}

func (n *noOpLogger) Debug(msg string, fields ...zap.Field) {}
func (n *noOpLogger) Info(msg string, fields ...zap.Field)  {}
func (n *noOpLogger) Warn(msg string, fields ...zap.Field)  {}
func (n *noOpLogger) Error(msg string, fields ...zap.Field) {}
func (n *noOpLogger) Fatal(msg string, fields ...zap.Field) { exit(1) }
func (n *noOpLogger) Sync() error                           { return nil }

// Field constructors re-exported so callers don't import zap directly.

func String(key, val string) zap.Field {
	return zap.String(key, val)
}

func Int(key string, val int) zap.Field {
	return zap.Int(key, val)
}

func Err(err error) zap.Field {
	return zap.Error(err)
}
