package output

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestColorLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewColorLoggerTo(&buf)

	l.Info("joining %s", "general")
	l.Warning("queue at %d", 9000)
	l.Error("boom")

	out := buf.String()
	for _, want := range []string{"INFO: joining general", "WARNING: queue at 9000", "ERROR: boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestErrorLogger_LogErrorWithNonce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.log")
	l := NewErrorLogger(path, 1, 2)

	if err := l.LogErrorWithNonce("transport", "send failed", errors.New("broken pipe"), "abc-123"); err != nil {
		t.Fatalf("LogErrorWithNonce() error = %v", err)
	}
	if err := l.LogError("config", "bad value", nil); err != nil {
		t.Fatalf("LogError() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	content := string(data)

	tests := []struct {
		name string
		want string
	}{
		{"message", "ERROR: send failed"},
		{"type", "Type: transport"},
		{"nonce", "Client Nonce: abc-123"},
		{"details", "Details: broken pipe"},
		{"second entry", "ERROR: bad value"},
		{"stack", "Stack Trace:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(content, tt.want) {
				t.Errorf("log missing %q", tt.want)
			}
		})
	}
	if strings.Count(content, "Client Nonce:") != 1 {
		t.Error("only the first entry should carry a nonce")
	}
}

func TestErrorLogger_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.log")
	l := NewErrorLogger(path, 1, 2)

	big := bytes.Repeat([]byte("x"), 1024*1024)
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, big, 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if err := l.LogError("test", "after fill", nil); err != nil {
			t.Fatalf("LogError() error = %v", err)
		}
	}

	for _, name := range []string{path, path + ".1", path + ".2"} {
		if _, err := os.Stat(name); err != nil {
			t.Errorf("expected %s to exist: %v", filepath.Base(name), err)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("only maxFiles rotated logs should be kept")
	}

	info, _ := os.Stat(path)
	if info.Size() >= int64(len(big)) {
		t.Errorf("current log size = %d, want a fresh file", info.Size())
	}
}

func TestNewOutput_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs", "error.log")

	o, err := NewOutput(NopLogger{}, path, 0, 0)
	if err != nil {
		t.Fatalf("NewOutput() error = %v", err)
	}
	o.LogErrorToFile("test", "written", errors.New("cause"))

	if _, err := os.Stat(path); err != nil {
		t.Errorf("error log not written: %v", err)
	}
	if o.ErrorLogger.maxFiles != DefaultMaxLogFiles {
		t.Errorf("maxFiles = %d, want default %d", o.ErrorLogger.maxFiles, DefaultMaxLogFiles)
	}
}
