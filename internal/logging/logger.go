package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	// LogLevelQuiet suppresses all output except critical errors
	LogLevelQuiet LogLevel = "quiet"
	// LogLevelNormal shows standard operational messages
	LogLevelNormal LogLevel = "normal"
	// LogLevelVerbose shows detailed operational information
	LogLevelVerbose LogLevel = "verbose"
	// LogLevelDebug shows all debug information
	LogLevelDebug LogLevel = "debug"
)

// Logger provides structured logging for both pipelines
type Logger struct {
	logger *logrus.Logger
	level  LogLevel
}

// Config holds logger configuration
type Config struct {
	Level   LogLevel
	Output  io.Writer
	Format  string // "text" or "json"
	LogFile string
}

// NewLogger creates a new logger with the specified configuration
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	if config.Output != nil {
		logger.SetOutput(config.Output)
	} else {
		logger.SetOutput(os.Stdout)
	}

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			DisableColors:   false,
		})
	}

	switch config.Level {
	case LogLevelQuiet:
		logger.SetLevel(logrus.ErrorLevel)
	case LogLevelNormal:
		logger.SetLevel(logrus.InfoLevel)
	case LogLevelVerbose:
		logger.SetLevel(logrus.DebugLevel)
	case LogLevelDebug:
		logger.SetLevel(logrus.TraceLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFile, err)
		}
		if config.Output == nil {
			logger.SetOutput(io.MultiWriter(os.Stdout, file))
		} else {
			logger.SetOutput(io.MultiWriter(config.Output, file))
		}
	}

	return &Logger{
		logger: logger,
		level:  config.Level,
	}, nil
}

// NewDefaultLogger creates a logger with default configuration
func NewDefaultLogger() *Logger {
	logger, _ := NewLogger(Config{
		Level:  LogLevelNormal,
		Output: os.Stdout,
		Format: "text",
	})
	return logger
}

// WithFields returns a logger entry with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.logger.WithFields(fields)
}

// WithField returns a logger entry with a single additional field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

// Pipeline operation logging methods

// LogServiceLifecycle logs ephemeral service state transitions
func (l *Logger) LogServiceLifecycle(container, state string, err error) {
	fields := logrus.Fields{
		"operation": "service_lifecycle",
		"container": container,
		"state":     state,
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Service lifecycle step failed")
	} else {
		l.logger.WithFields(fields).Info("Service lifecycle transition")
	}
}

// LogClientInvocation logs one SQL client or dump process invocation
func (l *Logger) LogClientInvocation(tool, database string, exitCode int, duration time.Duration, stderrExcerpt string) {
	fields := logrus.Fields{
		"operation": "client_invocation",
		"tool":      tool,
		"database":  database,
		"exit_code": exitCode,
		"duration":  duration.String(),
	}

	if exitCode != 0 {
		if stderrExcerpt != "" {
			fields["stderr"] = stderrExcerpt
		}
		l.logger.WithFields(fields).Error("Client invocation failed")
	} else {
		l.logger.WithFields(fields).Debug("Client invocation completed")
	}
}

// LogStageOutcome logs the result of one stage in either pipeline
func (l *Logger) LogStageOutcome(pipeline, database, stage, outcome string, sizeBytes int64, duration time.Duration) {
	fields := logrus.Fields{
		"operation": pipeline + "_stage",
		"database":  database,
		"stage":     stage,
		"outcome":   outcome,
		"bytes":     sizeBytes,
		"duration":  duration.String(),
	}

	switch outcome {
	case "failed":
		l.logger.WithFields(fields).Error("Stage failed")
	case "succeeded":
		l.logger.WithFields(fields).Info("Stage completed")
	default:
		l.logger.WithFields(fields).Info("Stage skipped")
	}
}

// LogTeardown logs best-effort cleanup steps; teardown is never escalated
func (l *Logger) LogTeardown(step string, err error) {
	fields := logrus.Fields{
		"operation": "teardown",
		"step":      step,
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Warn("Teardown step failed, continuing")
	} else {
		l.logger.WithFields(fields).Debug("Teardown step completed")
	}
}

// Standard logging methods

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.logger.Info(msg)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.logger.Debug(msg)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.logger.Warn(msg)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.logger.Error(msg)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

// GetLevel returns the configured log level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}
