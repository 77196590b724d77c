package output

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxLogSizeMB is the rotation threshold used when none is configured
	DefaultMaxLogSizeMB = 10
	// DefaultMaxLogFiles is the number of rotated files kept when none is configured
	DefaultMaxLogFiles = 5
)

// ErrorLogger handles file-based error logging with rotation
type ErrorLogger struct {
	logPath  string
	mu       sync.Mutex
	maxSize  int64 // in bytes
	maxFiles int
}

// NewErrorLogger creates a new ErrorLogger.
// Non-positive limits fall back to the defaults.
func NewErrorLogger(logPath string, maxSizeMB, maxFiles int) *ErrorLogger {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxLogSizeMB
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxLogFiles
	}
	return &ErrorLogger{
		logPath:  logPath,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxFiles: maxFiles,
	}
}

// LogError writes an error to the error log file with timestamp, type, message, and stack trace
func (e *ErrorLogger) LogError(errorType, errorMessage string, originalErr error) error {
	return e.LogErrorWithNonce(errorType, errorMessage, originalErr, "")
}

// LogErrorWithNonce is LogError plus the client nonce of the outbound message involved, if any
func (e *ErrorLogger) LogErrorWithNonce(errorType, errorMessage string, originalErr error, nonce string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Check if rotation is needed
	if err := e.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate log: %w", err)
	}

	// Open log file in append mode, create if doesn't exist
	f, err := os.OpenFile(e.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open error log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var entry strings.Builder
	fmt.Fprintf(&entry, "[%s] ERROR: %s\n", time.Now().Format("2006-01-02 15:04:05"), errorMessage)
	fmt.Fprintf(&entry, "Type: %s\n", errorType)
	if nonce != "" {
		fmt.Fprintf(&entry, "Client Nonce: %s\n", nonce)
	}
	if originalErr != nil {
		fmt.Fprintf(&entry, "Details: %s\n", originalErr.Error())
	}
	entry.WriteString("Stack Trace:\n")
	entry.WriteString(e.getStackTrace())
	entry.WriteString("\n")

	if _, err := f.WriteString(entry.String()); err != nil {
		return fmt.Errorf("failed to write to error log: %w", err)
	}

	return nil
}

// rotateIfNeeded checks if the log file exceeds the size limit and rotates if necessary
func (e *ErrorLogger) rotateIfNeeded() error {
	// Check if log file exists and get its size
	info, err := os.Stat(e.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist yet, no rotation needed
			return nil
		}
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	// Check if rotation is needed
	if info.Size() < e.maxSize {
		return nil
	}

	// Perform rotation
	return e.rotate()
}

// rotate performs the actual log rotation
func (e *ErrorLogger) rotate() error {
	// Delete the oldest rotated file if it exists
	oldestLog := fmt.Sprintf("%s.%d", e.logPath, e.maxFiles)
	if _, err := os.Stat(oldestLog); err == nil {
		if err := os.Remove(oldestLog); err != nil {
			return fmt.Errorf("failed to remove oldest log: %w", err)
		}
	}

	// Shift existing rotated logs up by one
	for i := e.maxFiles - 1; i >= 1; i-- {
		oldName := fmt.Sprintf("%s.%d", e.logPath, i)
		newName := fmt.Sprintf("%s.%d", e.logPath, i+1)

		if _, err := os.Stat(oldName); err == nil {
			if err := os.Rename(oldName, newName); err != nil {
				return fmt.Errorf("failed to rotate log %s to %s: %w", oldName, newName, err)
			}
		}
	}

	// Current log becomes .1
	rotatedName := fmt.Sprintf("%s.1", e.logPath)
	if err := os.Rename(e.logPath, rotatedName); err != nil {
		return fmt.Errorf("failed to rotate current log: %w", err)
	}

	return nil
}

// getStackTrace captures the current stack trace
func (e *ErrorLogger) getStackTrace() string {
	const maxStackDepth = 32
	stackBuf := make([]uintptr, maxStackDepth)
	length := runtime.Callers(4, stackBuf) // skip Callers, getStackTrace, LogErrorWithNonce, LogError
	stack := stackBuf[:length]

	var trace strings.Builder
	frames := runtime.CallersFrames(stack)
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&trace, "  at %s (%s:%d)\n", frame.Function, filepath.Base(frame.File), frame.Line)
		if !more {
			break
		}
	}

	return trace.String()
}

// EnsureLogDirectory creates the log directory if it doesn't exist
func EnsureLogDirectory(logPath string) error {
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}
