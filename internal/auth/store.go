package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"storefront-dashboard/internal/service"
)

// ErrNoCredential means no token is stored in either scope; the user must log in.
var ErrNoCredential = errors.New("no stored credential")

// Scope tells where a token lives.
type Scope string

const (
	ScopeNone       Scope = ""
	ScopePersistent Scope = "persistent" // token file, survives restarts
	ScopeSession    Scope = "session"    // process memory or environment
)

// Store keeps the bearer token in one of two scopes. Reads prefer the persistent one.
type Store struct {
	path   string
	envKey string
	logger *zap.Logger

	mu      sync.RWMutex
	session string
}

func NewStore(cfg service.AuthConfig, logger *zap.Logger) *Store {
	return &Store{
		path:   cfg.TokenFile,
		envKey: cfg.TokenEnv,
		logger: logger.With(zap.String("component", "auth")),
	}
}

// Token returns the stored token or ErrNoCredential.
func (s *Store) Token() (string, error) {
	token, _, err := s.lookup()
	return token, err
}

// Scope reports which scope currently provides the token.
func (s *Store) Scope() Scope {
	_, scope, _ := s.lookup()
	return scope
}

func (s *Store) lookup() (string, Scope, error) {
	if s.path != "" {
		data, err := os.ReadFile(s.path)
		switch {
		case err == nil:
			if token := strings.TrimSpace(string(data)); token != "" {
				return token, ScopePersistent, nil
			}
		case !errors.Is(err, os.ErrNotExist):
			s.logger.Warn("Failed to read token file", zap.String("path", s.path), zap.Error(err))
		}
	}

	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()
	if session != "" {
		return session, ScopeSession, nil
	}

	if s.envKey != "" {
		if token := strings.TrimSpace(os.Getenv(s.envKey)); token != "" {
			return token, ScopeSession, nil
		}
	}
	return "", ScopeNone, ErrNoCredential
}

// Save stores token. remember selects the persistent scope; otherwise the token only
// lives for this process. Saving into one scope clears the other.
func (s *Store) Save(token string, remember bool) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("refusing to store an empty token")
	}

	if !remember {
		if err := s.removeFile(); err != nil {
			return err
		}
		s.mu.Lock()
		s.session = token
		s.mu.Unlock()
		return nil
	}

	if s.path == "" {
		return fmt.Errorf("no token file configured")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace token file: %w", err)
	}

	s.mu.Lock()
	s.session = ""
	s.mu.Unlock()
	s.logger.Info("Token saved", zap.String("scope", string(ScopePersistent)))
	return nil
}

// Clear removes the token from both scopes.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.session = ""
	s.mu.Unlock()

	if s.envKey != "" {
		if err := os.Unsetenv(s.envKey); err != nil {
			return fmt.Errorf("unset %s: %w", s.envKey, err)
		}
	}
	return s.removeFile()
}

func (s *Store) removeFile() error {
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
