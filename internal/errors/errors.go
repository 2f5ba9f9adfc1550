package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ErrorTypeBootstrap represents ephemeral service bootstrap errors
	ErrorTypeBootstrap ErrorType = "bootstrap"
	// ErrorTypeDiscovery represents database discovery errors
	ErrorTypeDiscovery ErrorType = "discovery"
	// ErrorTypeExport represents export pipeline errors
	ErrorTypeExport ErrorType = "export"
	// ErrorTypeImport represents import pipeline errors
	ErrorTypeImport ErrorType = "import"
	// ErrorTypeConnection represents database connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeSQL represents SQL execution errors
	ErrorTypeSQL ErrorType = "sql"
	// ErrorTypeStorage represents artifact storage errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypePermission represents permission/access errors
	ErrorTypePermission ErrorType = "permission"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInterruption represents user interruption
	ErrorTypeInterruption ErrorType = "interruption"
	// ErrorTypeUnknown represents unknown errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// Severity classifies how an error propagates through a run.
type Severity string

const (
	// SeverityFatal aborts the entire run immediately with a non-zero exit
	SeverityFatal Severity = "fatal"
	// SeverityRecoverable is recorded in the ledger/summary; the run continues
	SeverityRecoverable Severity = "recoverable"
	// SeverityDegraded is logged and never propagated as an error
	SeverityDegraded Severity = "degraded"
)

// AppError represents an application-specific error with context
type AppError struct {
	Type     ErrorType
	Severity Severity
	Message  string
	Cause    error
	Context  map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewFatal creates an error that aborts the whole run
func NewFatal(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:     errorType,
		Severity: SeverityFatal,
		Message:  message,
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// NewRecoverable creates an error that is captured into the run's ledger
func NewRecoverable(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:     errorType,
		Severity: SeverityRecoverable,
		Message:  message,
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// IsFatal reports whether err should abort the run
func IsFatal(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Severity == SeverityFatal
	}
	return false
}

// GetErrorType returns the error type of an error
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// ErrorClassifier maps driver, network, context, and filesystem errors onto
// the run taxonomy
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// ClassifyError analyzes an error and returns an AppError with appropriate
// classification
func (ec *ErrorClassifier) ClassifyError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if mysqlErr := ec.classifyMySQLError(err); mysqlErr != nil {
		return mysqlErr
	}
	if netErr := ec.classifyNetworkError(err); netErr != nil {
		return netErr
	}
	if ctxErr := ec.classifyContextError(err); ctxErr != nil {
		return ctxErr
	}
	if fsErr := ec.classifyFileSystemError(err); fsErr != nil {
		return fsErr
	}

	return NewRecoverable(ErrorTypeUnknown, "An unexpected error occurred", err)
}

// classifyMySQLError classifies MySQL-specific errors
func (ec *ErrorClassifier) classifyMySQLError(err error) *AppError {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1045: // Access denied
			return NewFatal(ErrorTypePermission,
				"Database access denied - check username and password", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 1049: // Unknown database
			return NewRecoverable(ErrorTypeValidation,
				"Database does not exist", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 1064: // SQL syntax error
			return NewRecoverable(ErrorTypeSQL,
				"SQL syntax error", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 2003: // Can't connect to MySQL server
			return NewRecoverable(ErrorTypeConnection,
				"Cannot connect to MySQL server - server may be down or unreachable", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 2006: // MySQL server has gone away
			return NewRecoverable(ErrorTypeConnection,
				"MySQL server connection lost", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		default:
			return NewRecoverable(ErrorTypeSQL,
				fmt.Sprintf("MySQL error: %s", mysqlErr.Message), err).
				WithContext("mysql_error_code", mysqlErr.Number)
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return NewRecoverable(ErrorTypeValidation, "No rows found", err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return NewRecoverable(ErrorTypeConnection, "Database connection is closed", err)
	}

	return nil
}

// classifyNetworkError classifies network-related errors
func (ec *ErrorClassifier) classifyNetworkError(err error) *AppError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewRecoverable(ErrorTypeTimeout, "Network operation timed out", err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial":
			return NewRecoverable(ErrorTypeConnection,
				"Failed to establish network connection", err)
		case "read", "write":
			return NewRecoverable(ErrorTypeConnection, "Network I/O error", err)
		}
	}

	return nil
}

// classifyContextError classifies context-related errors
func (ec *ErrorClassifier) classifyContextError(err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewRecoverable(ErrorTypeTimeout, "Operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewFatal(ErrorTypeInterruption, "Operation was canceled", err)
	}

	return nil
}

// classifyFileSystemError classifies file system errors
func (ec *ErrorClassifier) classifyFileSystemError(err error) *AppError {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		switch pathErr.Err {
		case syscall.ENOENT:
			return NewFatal(ErrorTypeValidation,
				fmt.Sprintf("File or directory not found: %s", pathErr.Path), err)
		case syscall.EACCES:
			return NewFatal(ErrorTypePermission,
				fmt.Sprintf("Permission denied: %s", pathErr.Path), err)
		case syscall.ENOSPC:
			return NewFatal(ErrorTypeValidation, "No space left on device", err)
		}
	}

	return nil
}

// ProbeConfig holds configuration for fixed-interval readiness probes
type ProbeConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultProbeConfig returns the readiness budget used during bootstrap:
// 30 attempts at a 2 second cadence, roughly one minute.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		MaxAttempts: 30,
		Interval:    2 * time.Second,
	}
}

// Probe repeatedly invokes operation at a fixed interval until it succeeds,
// the attempt budget is exhausted, or the context is canceled. Unlike a
// backoff retry, the cadence never changes; the budget is the only bound.
func Probe(ctx context.Context, config ProbeConfig, operation func() error) error {
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return NewFatal(ErrorTypeInterruption, "Probe canceled", ctx.Err())
		default:
		}

		if lastErr = operation(); lastErr == nil {
			return nil
		}

		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return NewFatal(ErrorTypeInterruption, "Probe canceled during wait", ctx.Err())
		case <-time.After(config.Interval):
		}
	}

	return NewFatal(ErrorTypeTimeout,
		fmt.Sprintf("Probe did not succeed within %d attempts", config.MaxAttempts), lastErr).
		WithContext("attempts", config.MaxAttempts)
}

// WrapError wraps an existing error with additional context, preserving its
// classification when it already carries one
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Type:     appErr.Type,
			Severity: appErr.Severity,
			Message:  message,
			Cause:    err,
			Context:  make(map[string]interface{}),
		}
	}

	classified := NewErrorClassifier().ClassifyError(err)
	classified.Message = message
	return classified
}
