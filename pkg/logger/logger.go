package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/zfogg/feedline/pkg/config"
)

var logger *log.Logger

// Init initializes the logger. Output goes to a size-rotated log file so
// it never interleaves with an interactive terminal view.
func Init(verbose bool) {
	logLevel := log.InfoLevel
	if lvl, err := log.ParseLevel(config.GetString("log.level")); err == nil {
		logLevel = lvl
	}
	if verbose {
		logLevel = log.DebugLevel
	}

	var w io.Writer = os.Stderr
	if logFile := config.GetString("log.file"); logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0700); err == nil {
			w = &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    config.GetInt("log.max_size_mb"),
				MaxBackups: config.GetInt("log.max_backups"),
			}
		}
	}

	SetOutput(w, logLevel)
}

// SetOutput replaces the logger with one writing to w at level.
func SetOutput(w io.Writer, level log.Level) {
	logger = log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
	})
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	if logger != nil {
		logger.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	if logger != nil {
		logger.Error(msg, args...)
	}
}

// Fatal logs a fatal message and exits
func Fatal(msg string, args ...interface{}) {
	if logger != nil {
		logger.Fatal(msg, args...)
	} else {
		os.Exit(1)
	}
}

// With returns a child logger whose lines carry prefix
func With(prefix string) *log.Logger {
	if logger == nil {
		return log.NewWithOptions(io.Discard, log.Options{Prefix: prefix})
	}
	return logger.WithPrefix(prefix)
}

// GetLogger returns the logger instance
func GetLogger() *log.Logger {
	return logger
}
