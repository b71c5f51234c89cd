package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestLoadSchemaStepsOrdersByNumber(t *testing.T) {
	files := fstest.MapFS{
		"010_later.sql": {Data: []byte("CREATE TABLE b (x INTEGER);")},
		"2_first.sql":   {Data: []byte("CREATE TABLE a (x INTEGER);")},
		"README.md":     {Data: []byte("ignored")},
	}
	steps, err := loadSchemaSteps(files)
	if err != nil {
		t.Fatalf("load steps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("Expected 2 steps, got %d", len(steps))
	}
	if steps[0].version != 2 || steps[1].version != 10 {
		t.Errorf("Expected versions 2 then 10, got %d then %d", steps[0].version, steps[1].version)
	}
}

func TestLoadSchemaStepsRejectsBadNames(t *testing.T) {
	tests := map[string]fstest.MapFS{
		"no number": {"participants.sql": {Data: []byte("SELECT 1;")}},
		"zero":      {"000_init.sql": {Data: []byte("SELECT 1;")}},
		"duplicate": {
			"001_a.sql": {Data: []byte("SELECT 1;")},
			"01_b.sql":  {Data: []byte("SELECT 1;")},
		},
	}
	for name, files := range tests {
		if _, err := loadSchemaSteps(files); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func TestMigrateAppliesOnlyNewSteps(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "schema.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer sqlDB.Close()

	files := fstest.MapFS{
		"001_notes.sql": {Data: []byte("CREATE TABLE notes (body TEXT);")},
	}
	if err := migrate(ctx, sqlDB, files); err != nil {
		t.Fatalf("first migrate: %v", err)
	}

	// a rerun would fail on CREATE TABLE if step 1 were applied again
	files["002_tags.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE tags (name TEXT);")}
	if err := migrate(ctx, sqlDB, files); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	version, err := schemaVersion(ctx, sqlDB)
	if err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != 2 {
		t.Errorf("Expected schema version 2, got %d", version)
	}
}

func TestMigrateFailedStepKeepsVersion(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "schema.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer sqlDB.Close()

	files := fstest.MapFS{
		"001_notes.sql":  {Data: []byte("CREATE TABLE notes (body TEXT);")},
		"002_broken.sql": {Data: []byte("CREATE TABLE;")},
	}
	if err := migrate(ctx, sqlDB, files); err == nil {
		t.Fatal("Expected error from broken step, got nil")
	}

	version, err := schemaVersion(ctx, sqlDB)
	if err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected schema version 1, got %d", version)
	}
}
