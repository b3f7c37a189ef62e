// File: site/users.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Credential cache backed by a YAML users file.

package site

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
	"pkt.systems/pslog"
)

// ErrUserExists is returned by Register for a taken name.
var ErrUserExists = errors.New("site: user exists")

// ErrInvalidCredentials is returned for an empty name or password.
var ErrInvalidCredentials = errors.New("site: invalid credentials")

// usersFile is the on-disk layout:
//
//	users:
//	  alice: secret
type usersFile struct {
	Users map[string]string `yaml:"users"`
}

// LoadUsers reads a users file. A missing file yields an empty set.
func LoadUsers(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("site: read users: %w", err)
	}
	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("site: parse users %s: %w", path, err)
	}
	if f.Users == nil {
		f.Users = map[string]string{}
	}
	return f.Users, nil
}

// SaveUsers writes users to path through a temporary file and a rename.
func SaveUsers(path string, users map[string]string) error {
	data, err := yaml.Marshal(usersFile{Users: users})
	if err != nil {
		return fmt.Errorf("site: encode users: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".users-*")
	if err != nil {
		return fmt.Errorf("site: save users: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("site: save users: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("site: save users: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("site: save users: %w", err)
	}
	return nil
}

// UserStore is the in-memory credential map shared by all workers.
type UserStore struct {
	path   string
	logger pslog.Logger

	mu    sync.RWMutex
	users map[string]string
}

// NewUserStore loads path, which may be empty for a memory-only store.
func NewUserStore(path string, logger pslog.Logger) (*UserStore, error) {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	s := &UserStore{path: path, logger: logger.With("sys", "site.users"), users: map[string]string{}}
	if path == "" {
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file, empty for a memory-only store.
func (s *UserStore) Path() string { return s.path }

// Len returns the number of known users.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Check reports whether name exists with password.
func (s *UserStore) Check(name, password string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pw, ok := s.users[name]
	return ok && pw == password
}

// Register adds a new user and persists the set when the store is file
// backed. The user stays registered in memory if persisting fails.
func (s *UserStore) Register(name, password string) error {
	if name == "" || password == "" {
		return ErrInvalidCredentials
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[name]; ok {
		return ErrUserExists
	}
	s.users[name] = password
	if s.path == "" {
		return nil
	}
	return SaveUsers(s.path, s.users)
}

// Reload replaces the cache with the file contents. On error the cache is
// left unchanged.
func (s *UserStore) Reload() error {
	if s.path == "" {
		return nil
	}
	users, err := LoadUsers(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
	s.logger.Info("site.users.loaded", "path", s.path, "users", len(users))
	return nil
}
