package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T, store Store) {
	t.Helper()

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("Expected empty store, got ok=%v err=%v", ok, err)
	}

	if err := store.Save(Session{ParticipantID: "p1", AccessCode: "482913"}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if err := store.Save(Session{ParticipantID: "p2", AccessCode: "111222"}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	s, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("Expected a session, got ok=%v err=%v", ok, err)
	}
	if s.ParticipantID != "p2" || s.AccessCode != "111222" {
		t.Errorf("Expected latest save to win, got %+v", s)
	}

	if err := store.Save(Session{}); err == nil {
		t.Error("Expected error saving an empty participant id")
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	if _, ok, _ := store.Load(); ok {
		t.Error("Expected no session after clear")
	}
	if err := store.Clear(); err != nil {
		t.Errorf("Expected clearing twice to succeed, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	testStore(t, NewFileStore(filepath.Join(t.TempDir(), "session", "bukber.json")))
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bukber.json")
	if err := NewFileStore(path).Save(Session{ParticipantID: "p1"}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	s, ok, err := NewFileStore(path).Load()
	if err != nil || !ok {
		t.Fatalf("Expected session after reopen, got ok=%v err=%v", ok, err)
	}
	if s.ParticipantID != "p1" {
		t.Errorf("Expected p1, got %s", s.ParticipantID)
	}
}

func TestFileStoreKeepsAccessCodePrivate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bukber.json")
	if err := NewFileStore(path).Save(Session{ParticipantID: "p1", AccessCode: "482913"}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat session file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("Expected mode 0600, got %o", perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read session file: %v", err)
	}
	var stored map[string]string
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("Failed to decode session file: %v", err)
	}
	if stored["participant_id"] != "p1" || stored["access_code"] != "482913" {
		t.Errorf("Expected participant_id and access_code in file, got %v", stored)
	}
}
