package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Logger defines the interface for terminal output shared by every engine
type Logger interface {
	Info(format string, args ...interface{})
	Success(format string, args ...interface{})
	Warning(format string, args ...interface{})
	Error(format string, args ...interface{})
	ChannelMessage(channel, user, message string)
}

// ColorLogger implements Logger with colored terminal output
type ColorLogger struct {
	mu           sync.Mutex
	out          io.Writer
	infoColor    *color.Color
	successColor *color.Color
	warningColor *color.Color
	errorColor   *color.Color
	channelColor *color.Color
	nickColor    *color.Color
}

// NewColorLogger creates a new ColorLogger writing to stdout
func NewColorLogger() *ColorLogger {
	return NewColorLoggerTo(os.Stdout)
}

// NewColorLoggerTo creates a ColorLogger writing to w
func NewColorLoggerTo(w io.Writer) *ColorLogger {
	return &ColorLogger{
		out:          w,
		infoColor:    color.New(color.FgCyan),
		successColor: color.New(color.FgGreen, color.Bold),
		warningColor: color.New(color.FgYellow, color.Bold),
		errorColor:   color.New(color.FgRed, color.Bold),
		channelColor: color.New(color.FgBlue, color.Bold),
		nickColor:    color.New(color.FgGreen),
	}
}

func (l *ColorLogger) line(c *color.Color, level, format string, args []interface{}) {
	timestamp := time.Now().Format("15:04:05")
	message := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = c.Fprintf(l.out, "[%s] %s: %s\n", timestamp, level, message)
}

// Info prints an informational message in cyan
func (l *ColorLogger) Info(format string, args ...interface{}) {
	l.line(l.infoColor, "INFO", format, args)
}

// Success prints a success message in bold green
func (l *ColorLogger) Success(format string, args ...interface{}) {
	l.line(l.successColor, "SUCCESS", format, args)
}

// Warning prints a warning message in bold yellow
func (l *ColorLogger) Warning(format string, args ...interface{}) {
	l.line(l.warningColor, "WARNING", format, args)
}

// Error prints an error message in bold red
func (l *ColorLogger) Error(format string, args ...interface{}) {
	l.line(l.errorColor, "ERROR", format, args)
}

// ChannelMessage prints a chat line with color-coded formatting
// Format: [HH:MM:SS] #channel <user> message
func (l *ColorLogger) ChannelMessage(channel, user, message string) {
	timestamp := time.Now().Format("15:04:05")

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintf(l.out, "[%s] ", timestamp)
	_, _ = l.channelColor.Fprintf(l.out, "#%s ", channel)
	_, _ = l.nickColor.Fprintf(l.out, "<%s> ", user)
	_, _ = fmt.Fprintf(l.out, "%s\n", message)
}

// NopLogger discards everything. Used by tests and by callers that do not want output.
type NopLogger struct{}

func (NopLogger) Info(string, ...interface{})           {}
func (NopLogger) Success(string, ...interface{})        {}
func (NopLogger) Warning(string, ...interface{})        {}
func (NopLogger) Error(string, ...interface{})          {}
func (NopLogger) ChannelMessage(string, string, string) {}
