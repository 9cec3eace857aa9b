package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// CLIHandler handles the login, logout and whoami commands
type CLIHandler struct {
	manager *Manager
	stdin   io.Reader
	stdout  io.Writer
}

// NewCLIHandler creates a new CLI handler for credential commands
func NewCLIHandler(manager *Manager, stdin io.Reader, stdout io.Writer) *CLIHandler {
	return &CLIHandler{
		manager: manager,
		stdin:   stdin,
		stdout:  stdout,
	}
}

// Login stores token for username, prompting for it when token is empty.
// Expired JWTs are rejected.
func (h *CLIHandler) Login(ctx context.Context, username, token string) error {
	if token == "" {
		var err error
		token, err = PromptToken(h.stdin, h.stdout, username)
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
	}

	if exp := TokenExpiry(token); exp != nil && !h.manager.now().Before(*exp) {
		return fmt.Errorf("token expired at %s", exp.Local().Format(time.RFC1123))
	}

	if err := h.manager.Set(ctx, username, token); err != nil {
		if errors.Is(err, ErrKeyringNotAvailable) {
			return keyringNotAvailableError()
		}
		return fmt.Errorf("failed to store token: %w", err)
	}

	_, _ = fmt.Fprintf(h.stdout, "Token for %s stored in system keyring\n", username)
	return nil
}

// keyringNotAvailableError explains the environment variable fallback
func keyringNotAvailableError() error {
	return fmt.Errorf(`system keyring not available

Alternative: set the token in the environment instead:
  export %s="your-api-token"

Run 'taskdesk whoami' to verify the token is detected`, EnvToken)
}

// Logout removes the stored token
func (h *CLIHandler) Logout(ctx context.Context, username string) error {
	if err := h.manager.Delete(ctx, username); err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	_, _ = fmt.Fprintf(h.stdout, "Token for %s removed from system keyring\n", username)
	return nil
}

// WhoAmI reports where the token comes from and when it expires
func (h *CLIHandler) WhoAmI(ctx context.Context, username string, jsonOutput bool) error {
	info, err := h.manager.Get(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	if jsonOutput {
		data, err := info.JSON()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(h.stdout, string(data))
		return nil
	}

	if !info.Found {
		_, _ = fmt.Fprintf(h.stdout, "Not logged in as %s\n", username)
		_, _ = fmt.Fprintf(h.stdout, "Searched:\n")
		_, _ = fmt.Fprintf(h.stdout, "  - System keyring: Not found\n")
		_, _ = fmt.Fprintf(h.stdout, "  - %s: Not set\n", EnvToken)
		return nil
	}

	_, _ = fmt.Fprintf(h.stdout, "Username: %s\n", info.Username)
	_, _ = fmt.Fprintf(h.stdout, "Source: %s\n", info.Source)
	_, _ = fmt.Fprintf(h.stdout, "Token: ******** (hidden)\n")
	switch {
	case info.ExpiresAt == nil:
		_, _ = fmt.Fprintf(h.stdout, "Expires: never\n")
	case info.Expired(h.manager.now()):
		_, _ = fmt.Fprintf(h.stdout, "Expires: %s (expired)\n", info.ExpiresAt.Local().Format(time.RFC1123))
	default:
		_, _ = fmt.Fprintf(h.stdout, "Expires: %s\n", info.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}
