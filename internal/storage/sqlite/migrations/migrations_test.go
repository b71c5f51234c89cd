package migrations

import (
	"io/fs"
	"sort"
	"testing"
)

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(FS, ".")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	if len(files) != 2 {
		t.Fatalf("Expected 2 migrations, got %d", len(files))
	}
	if files[0] != "001_participants.sql" {
		t.Errorf("Expected first migration 001_participants.sql, got %s", files[0])
	}
}
