package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// schemaStep is one numbered migration file, e.g. 002_event_config.sql
type schemaStep struct {
	version int
	name    string
	sql     string
}

// migrate brings the schema up to the newest step in files. The applied
// version lives in SQLite's user_version header field, bumped in the same
// transaction as the step.
func migrate(ctx context.Context, sqlDB *sql.DB, files fs.FS) error {
	steps, err := loadSchemaSteps(files)
	if err != nil {
		return err
	}

	current, err := schemaVersion(ctx, sqlDB)
	if err != nil {
		return err
	}

	for _, step := range steps {
		if step.version <= current {
			continue
		}
		tx, err := sqlDB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", step.name, err)
		}
		if _, err := tx.ExecContext(ctx, step.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", step.name, err)
		}
		// PRAGMA does not accept bound parameters
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", step.version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", step.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", step.name, err)
		}
		current = step.version
	}
	return nil
}

func schemaVersion(ctx context.Context, sqlDB *sql.DB) (int, error) {
	var version int
	if err := sqlDB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// loadSchemaSteps reads every NNN_name.sql file, ordered by its number
func loadSchemaSteps(files fs.FS) ([]schemaStep, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list schema files: %w", err)
	}

	steps := make([]schemaStep, 0, len(names))
	seen := make(map[int]string, len(names))
	for _, name := range names {
		prefix, _, ok := strings.Cut(name, "_")
		version, err := strconv.Atoi(prefix)
		if !ok || err != nil || version < 1 {
			return nil, fmt.Errorf("schema file %s: name must start with a positive number", name)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("schema files %s and %s share version %d", other, name, version)
		}
		seen[version] = name

		content, err := fs.ReadFile(files, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		steps = append(steps, schemaStep{version: version, name: name, sql: string(content)})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}
