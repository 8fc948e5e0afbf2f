// Package session persists the logged-in operator: the bearer token lives
// in the OS keyring, the role and display name in the client state file.
package session

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"

	"github.com/guidedesk/guidedesk/internal/kv"
)

// Persisted keys.
const (
	KeyAuthToken = "authToken"
	KeyUserRole  = "userRole"
	KeyUserName  = "userName"
)

// EnvToken overrides the stored token, for headless deployments.
const EnvToken = "GUIDEDESK_TOKEN"

const keyringService = "guidedesk"

// RoleAdmin is the only role allowed to run syncs.
const RoleAdmin = "admin"

// Session is the authenticated operator.
type Session struct {
	Token string
	Role  string
	Name  string
}

// LoggedIn reports whether a token is present.
func (s Session) LoggedIn() bool {
	return strings.TrimSpace(s.Token) != ""
}

// IsAdmin reports whether the session belongs to an administrator.
func (s Session) IsAdmin() bool {
	return s.LoggedIn() && strings.EqualFold(strings.TrimSpace(s.Role), RoleAdmin)
}

// Store loads and saves the session.
type Store struct {
	state   kv.Store
	service string
	log     *zap.SugaredLogger
}

// New returns a Store backed by state and the OS keyring.
func New(state kv.Store, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{state: state, service: keyringService, log: log}
}

// Load returns the stored session. A missing session is not an error.
func (s *Store) Load() (Session, error) {
	if s == nil {
		return Session{}, fmt.Errorf("session store is nil")
	}
	token, err := s.Token()
	if err != nil {
		return Session{}, err
	}
	role, _, err := s.state.Get(KeyUserRole)
	if err != nil {
		return Session{}, fmt.Errorf("read role: %w", err)
	}
	name, _, err := s.state.Get(KeyUserName)
	if err != nil {
		return Session{}, fmt.Errorf("read user name: %w", err)
	}
	return Session{Token: token, Role: role, Name: name}, nil
}

// Token returns the bearer token, preferring the environment, then the
// keyring, then the state file fallback.
func (s *Store) Token() (string, error) {
	if env := strings.TrimSpace(os.Getenv(EnvToken)); env != "" {
		return env, nil
	}
	token, err := keyring.Get(s.service, KeyAuthToken)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		s.log.Debugf("keyring unavailable, using state file: %v", err)
	}
	token, _, err = s.state.Get(KeyAuthToken)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return token, nil
}

// Save persists sess. When the keyring cannot be used the token falls back
// to the state file.
func (s *Store) Save(sess Session) error {
	if s == nil {
		return fmt.Errorf("session store is nil")
	}
	if !sess.LoggedIn() {
		return fmt.Errorf("session has no token")
	}
	if err := keyring.Set(s.service, KeyAuthToken, sess.Token); err != nil {
		s.log.Warnf("keyring unavailable, storing token in state file: %v", err)
		if err := s.state.Set(KeyAuthToken, sess.Token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	} else if err := s.state.Delete(KeyAuthToken); err != nil {
		return fmt.Errorf("clear fallback token: %w", err)
	}
	if err := s.state.Set(KeyUserRole, sess.Role); err != nil {
		return fmt.Errorf("store role: %w", err)
	}
	if err := s.state.Set(KeyUserName, sess.Name); err != nil {
		return fmt.Errorf("store user name: %w", err)
	}
	return nil
}

// Clear forgets the session.
func (s *Store) Clear() error {
	if s == nil {
		return fmt.Errorf("session store is nil")
	}
	if err := keyring.Delete(s.service, KeyAuthToken); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		s.log.Debugf("keyring delete failed: %v", err)
	}
	if err := s.state.Delete(KeyAuthToken, KeyUserRole, KeyUserName); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
