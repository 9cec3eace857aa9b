package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// =============================================================================
// Logger Tests
// =============================================================================

func resetLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	once = sync.Once{}
	loggerInstance = nil

	var buf bytes.Buffer
	GetLogger().SetOutput(&buf)
	return &buf
}

// TestGetLogger verifies singleton pattern - same instance returned
func TestGetLogger(t *testing.T) {
	if GetLogger() != GetLogger() {
		t.Error("GetLogger() should return same singleton instance")
	}
}

// TestLoggerDefaultVerboseMode verifies verbose is false by default
func TestLoggerDefaultVerboseMode(t *testing.T) {
	_ = resetLogger(t)

	if GetLogger().IsVerbose() {
		t.Error("Logger should have verbose=false by default")
	}
}

// TestSetVerboseMode verifies SetVerboseMode changes verbose state
func TestSetVerboseMode(t *testing.T) {
	_ = resetLogger(t)

	SetVerboseMode(true)
	if !GetLogger().IsVerbose() {
		t.Error("SetVerboseMode(true) should enable verbose mode")
	}

	SetVerboseMode(false)
	if GetLogger().IsVerbose() {
		t.Error("SetVerboseMode(false) should disable verbose mode")
	}
}

// TestDebugOnlyShownWhenVerbose verifies Debug output only when verbose=true
func TestDebugOnlyShownWhenVerbose(t *testing.T) {
	buf := resetLogger(t)

	Debugf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Errorf("Debug output should be suppressed, got: %s", buf.String())
	}

	SetVerboseMode(true)
	defer SetVerboseMode(false)
	Debugf("shown %d", 2)
	if !strings.Contains(buf.String(), "[DEBUG] shown 2") {
		t.Errorf("expected debug line, got: %s", buf.String())
	}
}

// TestLevelsAlwaysShown verifies Info, Warn and Error ignore verbose mode
func TestLevelsAlwaysShown(t *testing.T) {
	buf := resetLogger(t)

	Infof("info %s", "msg")
	Warnf("warn")
	Errorf("error %v", 42)

	out := buf.String()
	for _, want := range []string{"[INFO] info msg", "[WARN] warn", "[ERROR] error 42"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q, got: %s", want, out)
		}
	}
}

// TestFormatMessageWithoutArgs keeps literal percent signs
func TestFormatMessageWithoutArgs(t *testing.T) {
	msg := "100%"
	format := formatMessage // indirect call: vet's printf check rejects non-constant formats
	if got := format(msg); got != msg {
		t.Errorf("formatMessage() = %q, want %q", got, msg)
	}
}

// TestRedirectToFile verifies output lands in the file and restore switches back
func TestRedirectToFile(t *testing.T) {
	buf := resetLogger(t)
	path := filepath.Join(t.TempDir(), "taskdesk.log")

	restore, err := GetLogger().RedirectToFile(path)
	if err != nil {
		t.Fatalf("RedirectToFile() error = %v", err)
	}
	Infof("while redirected")
	restore()
	Infof("after restore")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "while redirected") {
		t.Errorf("log file should contain redirected line, got: %s", data)
	}
	if strings.Contains(string(data), "after restore") {
		t.Error("log file should not receive lines after restore")
	}
	if !strings.Contains(buf.String(), "after restore") {
		t.Errorf("previous writer should be restored, got: %s", buf.String())
	}
}

// TestRedirectToFileFailureDiscards verifies a bad path silences output instead of writing to stderr
func TestRedirectToFileFailureDiscards(t *testing.T) {
	buf := resetLogger(t)
	path := filepath.Join(t.TempDir(), "missing", "dir", "taskdesk.log")

	restore, err := GetLogger().RedirectToFile(path)
	if err == nil {
		t.Fatal("RedirectToFile() should fail for a missing directory")
	}
	Infof("dropped")
	restore()

	if strings.Contains(buf.String(), "dropped") {
		t.Error("output should be discarded while redirect failed")
	}
}
