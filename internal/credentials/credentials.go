// Package credentials stores the tasks API token in the OS keyring, with a
// fallback to the TASKDESK_API_TOKEN environment variable.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/term"

	"taskdesk/internal/utils"
)

// Service is the keyring service name tokens are stored under
const Service = "taskdesk"

// EnvToken is checked when the keyring holds no token
const EnvToken = "TASKDESK_API_TOKEN"

// Source indicates where a token was retrieved from
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// TokenInfo describes the token found for an account
type TokenInfo struct {
	Source   Source
	Username string
	Token    string
	Found    bool
	// ExpiresAt is set when the token is a JWT carrying an exp claim
	ExpiresAt *time.Time
}

// Expired reports whether the token carries an expiry that has passed
func (t *TokenInfo) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// JSON serializes the token info (the token itself is never included)
func (t *TokenInfo) JSON() ([]byte, error) {
	output := struct {
		Username  string     `json:"username"`
		Source    string     `json:"source"`
		Found     bool       `json:"found"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}{
		Username:  t.Username,
		Source:    string(t.Source),
		Found:     t.Found,
		ExpiresAt: t.ExpiresAt,
	}
	return json.Marshal(output)
}

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, secret string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Manager handles token operations
type Manager struct {
	keyring Keyring
	now     func() time.Time
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// WithClock overrides the clock used for expiry checks
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new credential manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Set stores token for username in the keyring
func (m *Manager) Set(ctx context.Context, username, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}
	return m.keyring.Set(Service, username, token)
}

// Get retrieves the token from the keyring, then the environment
func (m *Manager) Get(ctx context.Context, username string) (*TokenInfo, error) {
	token, err := m.keyring.Get(Service, username)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrKeyringNotAvailable) {
		return nil, err
	}
	if err == nil && token != "" {
		return m.info(SourceKeyring, username, token), nil
	}

	if env := strings.TrimSpace(os.Getenv(EnvToken)); env != "" {
		return m.info(SourceEnvironment, username, env), nil
	}

	return &TokenInfo{Source: SourceNone, Username: username}, nil
}

func (m *Manager) info(source Source, username, token string) *TokenInfo {
	return &TokenInfo{
		Source:    source,
		Username:  username,
		Token:     token,
		Found:     true,
		ExpiresAt: TokenExpiry(token),
	}
}

// Delete removes the stored token. Deleting a missing token is not an error.
func (m *Manager) Delete(ctx context.Context, username string) error {
	err := m.keyring.Delete(Service, username)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Authenticated reports whether a usable, unexpired token exists
func (m *Manager) Authenticated(ctx context.Context, username string) bool {
	info, err := m.Get(ctx, username)
	if err != nil || !info.Found {
		return false
	}
	return !info.Expired(m.now())
}

// TokenExpiry returns the exp claim of a JWT. The signature is not verified;
// the server does that. Opaque tokens and tokens without exp yield nil.
func TokenExpiry(token string) *time.Time {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}

// PromptToken asks for a token. Input is hidden when reader is a terminal.
func PromptToken(reader io.Reader, writer io.Writer, username string) (string, error) {
	_, _ = fmt.Fprintf(writer, "Enter API token for %s: ", username)

	if f, ok := reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(writer)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}

	return utils.ReadLineWithReader("", reader, writer)
}
