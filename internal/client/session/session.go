// Package session persists the authenticated session across restarts.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Session is the authenticated identity of this client process. At
// most one session is active per process.
type Session struct {
	UserTag  string `json:"user_tag"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Store reads and writes the single session file.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath is the session file location under the user config dir.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	appDir := filepath.Join(configDir, "cipherchat")
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(appDir, "session.json"), nil
}

// Load rehydrates the stored session. A missing file means logged out.
// A corrupt file is discarded and also treated as logged out.
func (s *Store) Load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil || sess.UserTag == "" || sess.Token == "" {
		_ = os.Remove(s.path)
		return nil, nil
	}

	return &sess, nil
}

// Save writes the session with owner-only permissions (it carries the
// bearer token).
func (s *Store) Save(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

// Clear removes the stored session on logout.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
