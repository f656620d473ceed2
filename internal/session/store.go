package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Critical cookies that must be present and fresh for a stored session
// to be worth loading into a browser context.
const (
	cookieRefresh       = "wbx-refresh"
	cookieValidationKey = "wbx-validation-key"
)

const (
	// Cookies expiring within this margin are treated as already expired.
	expirySafetyMargin = time.Hour
	// Refresh tokens issued more than this long ago are considered stale
	// even if the cookie itself has not expired.
	maxTokenAge = 90 * 24 * time.Hour
)

// Cookie is one browser cookie record. Expires is a unix epoch;
// zero or negative means a session cookie without expiry.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// State is a serialized browser session: the cookie jar plus whatever
// origin-scoped storage the browser reported. Origins is kept opaque so
// a round trip through the store never loses fields.
type State struct {
	Cookies []Cookie        `json:"cookies"`
	Origins json.RawMessage `json:"origins,omitempty"`
}

// Store persists browser session state to a single JSON file.
type Store struct {
	path string
	now  func() time.Time
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Load returns the stored session only if the file exists, parses and
// passes validation. Every failure path means "no usable session" and
// returns (nil, false); it never returns an error because the caller's
// recovery is the same in all cases: a fresh interactive login.
func (s *Store) Load() (*State, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("state file not found", "path", s.path)
		} else {
			slog.Warn("error reading state file", "path", s.path, "err", err)
		}
		return nil, false
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Warn("error parsing state file", "path", s.path, "err", err)
		return nil, false
	}

	if err := s.validate(&state); err != nil {
		slog.Warn("state file exists but is invalid or expired", "err", err)
		return nil, false
	}

	slog.Info("state loaded and validated", "path", s.path)
	return &state, true
}

// Save writes the full session state, creating parent directories as
// needed. Unlike Load, failures are returned: silently losing a save
// forces an unnecessary re-authentication after the next restart.
func (s *Store) Save(state *State) error {
	if state == nil {
		return fmt.Errorf("nil session state")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	slog.Info("session state saved", "path", s.path, "cookies", len(state.Cookies))
	return nil
}

func (s *Store) validate(state *State) error {
	if len(state.Cookies) == 0 {
		return fmt.Errorf("state has no cookies")
	}

	found := map[string]Cookie{}
	for _, c := range state.Cookies {
		if c.Name == cookieRefresh || c.Name == cookieValidationKey {
			found[c.Name] = c
		}
	}

	now := s.now()
	for _, name := range []string{cookieRefresh, cookieValidationKey} {
		c, ok := found[name]
		if !ok {
			return fmt.Errorf("missing critical cookie: %s", name)
		}
		if c.Expires > 0 {
			expires := time.Unix(int64(c.Expires), 0)
			if now.After(expires.Add(-expirySafetyMargin)) {
				return fmt.Errorf("cookie %s is expired or expires within %s", name, expirySafetyMargin)
			}
		}
	}

	if err := s.validateRefreshToken(found[cookieRefresh].Value); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}

	return nil
}

// validateRefreshToken decodes the JWT payload without verifying the
// signature (we do not hold the portal's key) and checks that the token
// is structurally sound and not older than maxTokenAge. The server may
// still reject it for other reasons.
func (s *Store) validateRefreshToken(token string) error {
	if token == "" {
		return fmt.Errorf("empty token")
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("malformed JWT: %w", err)
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return fmt.Errorf("bad iat claim: %w", err)
	}
	if iat != nil {
		age := s.now().Sub(iat.Time)
		if age > maxTokenAge {
			return fmt.Errorf("token issued %.1f days ago, max age is %.0f days",
				age.Hours()/24, maxTokenAge.Hours()/24)
		}
	}

	return nil
}
