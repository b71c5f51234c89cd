// Package session keeps the participant a device is signed in as.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Session binds a device to one participant. The access code is the one the
// device already proved and is needed to authorize the participant's writes.
type Session struct {
	ParticipantID string `json:"participant_id"`
	AccessCode    string `json:"access_code,omitempty"`
}

// Store holds at most one Session. Save overwrites, Clear removes.
type Store interface {
	Save(s Session) error
	Load() (Session, bool, error)
	Clear() error
}

// MemoryStore keeps the session for the lifetime of the process.
type MemoryStore struct {
	mu      sync.Mutex
	session *Session
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save replaces the stored session.
func (m *MemoryStore) Save(s Session) error {
	if strings.TrimSpace(s.ParticipantID) == "" {
		return errors.New("participant id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &s
	return nil
}

// Load returns the stored session; ok is false when signed out.
func (m *MemoryStore) Load() (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false, nil
	}
	return *m.session, true, nil
}

// Clear signs the device out.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// FileStore persists the session as a small JSON file, so it survives restarts
// of the client on the same device.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore stores the session at path. Nothing is read or written until
// the first call.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: filepath.Clean(path)}
}

// Save writes the participant id and access code to the file with 0600
// permissions, replacing it atomically.
func (f *FileStore) Save(s Session) error {
	if strings.TrimSpace(s.ParticipantID) == "" {
		return errors.New("participant id is required")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}

// Load reads the session back. A missing file, or one without a participant
// id, means signed out.
func (f *FileStore) Load() (Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	if s.ParticipantID == "" {
		return Session{}, false, nil
	}
	return s, true, nil
}

// Clear removes the file. Clearing twice is not an error.
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
