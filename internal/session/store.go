package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const stateFileName = "session.json"

// State is what a client persists between runs: the session snapshot and its tokens
type State struct {
	Session      Session   `json:"session"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SavedAt      time.Time `json:"saved_at"`
}

// FileStore keeps the client's State in a JSON file readable only by the owner
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, stateFileName)
}

// Load returns nil, nil when no one is logged in
func (s *FileStore) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (*State, error) {
	b, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &st, nil
}

// Save replaces the stored state
func (s *FileStore) Save(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(st)
}

func (s *FileStore) save(st State) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	st.SavedAt = time.Now()
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(s.path(), b, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// SaveSession stores a new session snapshot, keeping the current tokens
func (s *FileStore) SaveSession(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("no stored session to update")
	}
	st.Session = sess
	return s.save(*st)
}

// SaveTokens swaps the stored tokens after a refresh
func (s *FileStore) SaveTokens(accessToken, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("no stored session to update")
	}
	st.AccessToken = accessToken
	st.RefreshToken = refreshToken
	return s.save(*st)
}

// Delete forgets the session. Deleting a missing session is not an error.
func (s *FileStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
