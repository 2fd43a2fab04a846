// Package session holds the signed-in identity, persists it between runs and
// drops it when the backend rejects the token.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmerrifield20/takedown/pkg/client"
	"go.uber.org/zap"
)

// ExpiredNotice is the one-shot message left behind by a forced logout.
const ExpiredNotice = "Your session has expired. Please log in again."

// Session is the cached identity plus its bearer token. A nil *Session is
// the anonymous viewer; all methods are safe to call on nil.
type Session struct {
	User  client.User `json:"user"`
	Token string      `json:"token"`
}

// Username returns the signed-in username, or "" when anonymous.
func (s *Session) Username() string {
	if s == nil {
		return ""
	}
	return s.User.Username
}

// IsModerator reports whether the session may edit reports. Every role
// moderates; admin is a superset.
func (s *Session) IsModerator() bool {
	return s != nil && (s.User.Role == client.RoleUser || s.User.Role == client.RoleAdmin)
}

// IsAdmin reports whether the session has the admin role.
func (s *Session) IsAdmin() bool {
	return s != nil && s.User.Role == client.RoleAdmin
}

// Authenticator is the subset of the API client the store drives.
type Authenticator interface {
	Login(ctx context.Context, creds client.Credentials) (*client.AuthResult, error)
	Register(ctx context.Context, reg client.Registration) (*client.User, error)
	Logout(ctx context.Context) error
	SetToken(token string)
}

// Store owns the single current session.
type Store struct {
	api    Authenticator
	path   string
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	current   *Session
	restored  bool
	authError string
}

// NewStore creates a Store persisting to path. An empty path keeps the
// session in memory only.
func NewStore(api Authenticator, path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{api: api, path: path, logger: logger, now: time.Now}
}

// Restore loads the persisted session. A token whose expiry claim is
// missing, unreadable or in the past is discarded together with the file,
// and the store is left anonymous.
func (s *Store) Restore() (*Session, error) {
	defer func() {
		s.mu.Lock()
		s.restored = true
		s.mu.Unlock()
	}()

	if s.path == "" {
		return s.Current(), nil
	}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		s.logger.Warn("discarding unreadable session file", zap.String("path", s.path), zap.Error(err))
		return nil, s.clear()
	}
	if err := s.checkExpiry(sess.Token); err != nil {
		s.logger.Info("discarding stored session", zap.String("user", sess.User.Username), zap.Error(err))
		return nil, s.clear()
	}

	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()
	s.api.SetToken(sess.Token)
	return &sess, nil
}

// checkExpiry decodes the token without verifying its signature; only the
// backend can do that. The exp claim must be present and in the future.
func (s *Store) checkExpiry(token string) error {
	if token == "" {
		return errors.New("no token")
	}
	tok, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return errors.New("token has no expiry")
	}
	if !exp.After(s.now()) {
		return fmt.Errorf("token expired at %s", exp.Format(time.RFC3339))
	}
	return nil
}

// Restored reports whether Restore has finished.
func (s *Store) Restored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restored
}

// Current returns the signed-in session, or nil.
func (s *Store) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Username returns the current username, or "" when anonymous. With
// IsModerator and IsAdmin it makes the Store a viewer that follows logins
// and forced logouts.
func (s *Store) Username() string { return s.Current().Username() }

// IsModerator reports whether the current session may edit reports.
func (s *Store) IsModerator() bool { return s.Current().IsModerator() }

// IsAdmin reports whether the current session is an admin.
func (s *Store) IsAdmin() bool { return s.Current().IsAdmin() }

// Login authenticates, persists the session and attaches the token to the
// API client. Rejections wrap client.ErrAuthFailed with the backend's
// message.
func (s *Store) Login(ctx context.Context, creds client.Credentials) (*Session, error) {
	res, err := s.api.Login(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	sess := &Session{User: res.User, Token: res.Token}
	if sess.User.Username == "" {
		sess.User.Username = creds.Username
	}

	s.mu.Lock()
	s.current = sess
	s.authError = ""
	s.mu.Unlock()
	s.api.SetToken(sess.Token)

	if err := s.persist(sess); err != nil {
		return sess, err
	}
	s.logger.Info("logged in", zap.String("user", sess.User.Username), zap.String("role", string(sess.User.Role)))
	return sess, nil
}

// Register creates an unapproved account. It does not sign in.
func (s *Store) Register(ctx context.Context, reg client.Registration) (*client.User, error) {
	u, err := s.api.Register(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return u, nil
}

// Logout clears the local identity and token. Unless silent, the backend is
// told first; a token it already considers expired is not an error.
func (s *Store) Logout(ctx context.Context, silent bool) error {
	var backendErr error
	if !silent && s.Current() != nil {
		if err := s.api.Logout(ctx); err != nil && !errors.Is(err, client.ErrSessionExpired) {
			backendErr = fmt.Errorf("logout: %w", err)
		}
	}

	s.mu.Lock()
	s.current = nil
	if !silent {
		// A user-initiated logout is not an expiry worth announcing.
		s.authError = ""
	}
	s.mu.Unlock()
	s.api.SetToken("")

	if err := s.clear(); err != nil {
		return errors.Join(backendErr, err)
	}
	return backendErr
}

// ForceLogout is the API client's session-expired hook: it drops the
// session silently and leaves a notice for TakeAuthError.
func (s *Store) ForceLogout(cause error) {
	s.mu.Lock()
	had := s.current != nil
	s.current = nil
	if had {
		s.authError = ExpiredNotice
	}
	s.mu.Unlock()
	if !had {
		return
	}

	s.logger.Warn("session rejected by backend, logging out", zap.Error(cause))
	s.api.SetToken("")
	if err := s.clear(); err != nil {
		s.logger.Warn("remove session file", zap.Error(err))
	}
}

// TakeAuthError returns the pending forced-logout notice and clears it, so
// each notice is shown once.
func (s *Store) TakeAuthError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.authError
	s.authError = ""
	return msg
}

func (s *Store) persist(sess *Session) error {
	if s.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (s *Store) clear() error {
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
