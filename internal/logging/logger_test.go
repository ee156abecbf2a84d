package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Errorf("expected debug to be filtered out, got %q", out)
	}
	if strings.Contains(out, "info message") {
		t.Errorf("expected info to be filtered out, got %q", out)
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("expected warn message in output, got %q", out)
	}
	if !strings.Contains(out, "error message") {
		t.Errorf("expected error message in output, got %q", out)
	}
}

func TestFormatArgsKeyValue(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	l.Info("mode change", "from", "UsbExposed", "to", "AppMounted")

	out := buf.String()
	if !strings.Contains(out, "from=UsbExposed") || !strings.Contains(out, "to=AppMounted") {
		t.Errorf("expected key=value pairs in output, got %q", out)
	}
}

func TestPrintfDelegatesToInfof(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	l.Printf("device %s ready", "sdcard0")

	out := buf.String()
	if !strings.Contains(out, "[INFO]") || !strings.Contains(out, "device sdcard0 ready") {
		t.Errorf("expected Printf to log at info level, got %q", out)
	}
}

func TestWithComponentTagsLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	tagged := l.WithComponent("arbiter")

	tagged.Errorf("transition to %s failed", "UsbExposed")

	out := buf.String()
	if !strings.Contains(out, "arbiter: transition to UsbExposed failed") {
		t.Errorf("expected component-tagged message, got %q", out)
	}
}

func TestDefaultLoggerIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Error("expected Default() to return the same logger instance")
	}
}

func TestSetDefault(t *testing.T) {
	var buf bytes.Buffer
	custom := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	SetDefault(custom)
	defer SetDefault(NewLogger(nil))

	Info("routed through custom logger")
	if !strings.Contains(buf.String(), "routed through custom logger") {
		t.Errorf("expected global Info to use the custom default logger, got %q", buf.String())
	}
}
