// Package testutil provides shared test utilities for CLI testing across packages.
// This enables co-located CLI tests while maintaining consistent test infrastructure.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskdesk/backend"
	"taskdesk/cmd/taskdesk/cmd"
	"taskdesk/internal/cache"
	"taskdesk/internal/config"
	"taskdesk/internal/credentials"
	"taskdesk/internal/testutil/fakeapi"
)

const (
	// TestToken is the bearer token the fake API accepts
	TestToken = "test-token"

	// TestUsername is the keyring account used by the test config
	TestUsername = "tester"
)

// CLITest provides a test helper for running CLI commands in isolation.
type CLITest struct {
	t          *testing.T
	cfg        *cmd.Config
	tmpDir     string
	configPath string
	cachePath  string

	// API is the fake tasks API the CLI talks to
	API *fakeapi.Server
	// Keyring holds the stored tokens
	Keyring *credentials.MockKeyring
}

// NewCLITest creates a new CLI test helper that is logged in to a fresh fake API.
func NewCLITest(t *testing.T) *CLITest {
	t.Helper()

	c := NewCLITestLoggedOut(t)
	if err := c.Keyring.Set(credentials.Service, TestUsername, TestToken); err != nil {
		t.Fatalf("failed to store test token: %v", err)
	}
	return c
}

// NewCLITestLoggedOut creates a new CLI test helper with no stored token.
func NewCLITestLoggedOut(t *testing.T) *CLITest {
	t.Helper()

	// Keep the developer's environment out of the test
	t.Setenv(credentials.EnvToken, "")
	t.Setenv(config.EnvBaseURL, "")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	cachePath := filepath.Join(tmpDir, "cache", "tasks.db")
	api := fakeapi.New(t, TestToken)

	c := &CLITest{
		t:          t,
		tmpDir:     tmpDir,
		configPath: configPath,
		cachePath:  cachePath,
		API:        api,
		Keyring:    credentials.NewMockKeyring(),
	}
	c.SetFullConfig(c.DefaultConfig())

	c.cfg = &cmd.Config{
		NoPrompt:   true,
		ConfigPath: configPath,
		CachePath:  cachePath,
		Keyring:    c.Keyring,
		Stdin:      strings.NewReader(""),
	}
	return c
}

// DefaultConfig returns the config file written by the constructors
func (c *CLITest) DefaultConfig() string {
	return "# test config\n" +
		"api:\n" +
		"  base_url: " + c.API.URL() + "\n" +
		"  timeout: 5s\n" +
		"  username: " + TestUsername + "\n" +
		"ui:\n" +
		"  debounce_ms: 20\n" +
		"cache:\n" +
		"  watch: false\n"
}

// Config returns the test configuration.
func (c *CLITest) Config() *cmd.Config {
	return c.cfg
}

// TmpDir returns the temporary directory for the test.
func (c *CLITest) TmpDir() string {
	return c.tmpDir
}

// CachePath returns the path to the snapshot database.
func (c *CLITest) CachePath() string {
	return c.cachePath
}

// ConfigPath returns the path to the config file.
func (c *CLITest) ConfigPath() string {
	return c.configPath
}

// SetConfigValue appends a top-level key-value pair to the test config file.
func (c *CLITest) SetConfigValue(key, value string) {
	c.t.Helper()

	data, err := os.ReadFile(c.configPath)
	if err != nil {
		c.t.Fatalf("failed to read config file: %v", err)
	}

	newConfig := string(data) + key + ": " + value + "\n"
	if err := os.WriteFile(c.configPath, []byte(newConfig), 0644); err != nil {
		c.t.Fatalf("failed to write config file: %v", err)
	}
}

// SetFullConfig replaces the entire config file with the given YAML content.
func (c *CLITest) SetFullConfig(yamlContent string) {
	c.t.Helper()

	if err := os.WriteFile(c.configPath, []byte(yamlContent), 0644); err != nil {
		c.t.Fatalf("failed to write config file: %v", err)
	}
}

// SetStdin sets the input read by prompts.
func (c *CLITest) SetStdin(input string) {
	c.cfg.Stdin = strings.NewReader(input)
}

// SetPrompting turns interactive prompts on or off.
func (c *CLITest) SetPrompting(on bool) {
	c.cfg.NoPrompt = !on
}

// SetClock fixes the time seen by the CLI.
func (c *CLITest) SetClock(now time.Time) {
	c.cfg.Now = func() time.Time { return now }
}

// WriteSnapshot stores tasks in the snapshot database as if an earlier command had fetched them.
func (c *CLITest) WriteSnapshot(tasks []backend.Task, selectedID int) {
	c.t.Helper()

	snap, err := cache.Open(c.cachePath)
	if err != nil {
		c.t.Fatalf("failed to open snapshot: %v", err)
	}
	defer func() { _ = snap.Close() }()
	if err := snap.Save(context.Background(), tasks, selectedID); err != nil {
		c.t.Fatalf("failed to write snapshot: %v", err)
	}
}

// ReadSnapshot returns the tasks in the snapshot database.
func (c *CLITest) ReadSnapshot() []backend.Task {
	c.t.Helper()

	snap, err := cache.Open(c.cachePath)
	if err != nil {
		c.t.Fatalf("failed to open snapshot: %v", err)
	}
	defer func() { _ = snap.Close() }()
	tasks, _, _, err := snap.Load(context.Background())
	if err != nil {
		c.t.Fatalf("failed to read snapshot: %v", err)
	}
	return tasks
}

// Execute runs a CLI command with the given arguments and returns stdout, stderr, and exit code.
func (c *CLITest) Execute(args ...string) (stdout, stderr string, exitCode int) {
	c.t.Helper()

	var stdoutBuf, stderrBuf bytes.Buffer
	exitCode = cmd.Execute(args, &stdoutBuf, &stderrBuf, c.cfg)
	return stdoutBuf.String(), stderrBuf.String(), exitCode
}

// MustExecute runs a CLI command and fails the test if exit code is non-zero.
func (c *CLITest) MustExecute(args ...string) string {
	c.t.Helper()

	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode != 0 {
		c.t.Fatalf("expected exit code 0, got %d: stdout=%s stderr=%s", exitCode, stdout, stderr)
	}
	return stdout
}

// ExecuteAndFail runs a CLI command and fails the test if exit code is zero.
func (c *CLITest) ExecuteAndFail(args ...string) (stdout, stderr string) {
	c.t.Helper()

	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode == 0 {
		c.t.Fatalf("expected non-zero exit code, got 0: stdout=%s", stdout)
	}
	return stdout, stderr
}

// AssertContains fails the test if output doesn't contain expected string.
func AssertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, output)
	}
}

// AssertNotContains fails the test if output contains unexpected string.
func AssertNotContains(t *testing.T, output, unexpected string) {
	t.Helper()
	if strings.Contains(output, unexpected) {
		t.Errorf("expected output NOT to contain %q, got:\n%s", unexpected, output)
	}
}

// AssertExitCode fails the test if exit code doesn't match expected.
func AssertExitCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("expected exit code %d, got %d", want, got)
	}
}

// AssertResultCode verifies that the output ends with the expected result code.
func AssertResultCode(t *testing.T, output, expectedCode string) {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 {
		t.Errorf("expected result code %q but output is empty", expectedCode)
		return
	}
	lastLine := strings.TrimSpace(lines[len(lines)-1])
	if lastLine != expectedCode {
		t.Errorf("expected result code %q, got %q\nFull output:\n%s", expectedCode, lastLine, output)
	}
}

// Result code constants for convenience.
const (
	ResultActionCompleted = cmd.ResultActionCompleted
	ResultInfoOnly        = cmd.ResultInfoOnly
	ResultError           = cmd.ResultError
)
