package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/davidahmann/continuum/internal/decision"
)

func TestMigrateSQLiteIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", "file:migrate_idempotent?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := Migrate(ctx, db, DBSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := Migrate(ctx, db, DBSQLite); err != nil {
		t.Fatalf("migrate second: %v", err)
	}

	var name string
	if err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='decisions'`).Scan(&name); err != nil {
		t.Fatalf("expected decisions table: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	files, err := listMigrationFiles("migrations/sqlite")
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if count != len(files) {
		t.Fatalf("expected %d migrations applied, got %d", len(files), count)
	}
}

func TestMigrateRejectsUnknownDriverAndNilDB(t *testing.T) {
	db, err := sql.Open("sqlite", "file:migrate_unknown?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := Migrate(context.Background(), db, DBDriver("nope")); !errors.Is(err, decision.ErrStorage) {
		t.Fatalf("expected storage error for unsupported driver, got %v", err)
	}
	if err := Migrate(context.Background(), nil, DBSQLite); !errors.Is(err, decision.ErrStorage) {
		t.Fatalf("expected storage error for nil db, got %v", err)
	}
}

func TestEveryDialectShipsScripts(t *testing.T) {
	for driver, d := range dialects {
		files, err := listMigrationFiles(d.dir)
		if err != nil || len(files) == 0 {
			t.Fatalf("%s: list migrations: %v (%d files)", driver, err, len(files))
		}
		if !strings.Contains(d.createSQL, d.table) || !strings.Contains(d.recordSQL, d.table) {
			t.Fatalf("%s: statements do not target %s", driver, d.table)
		}
	}
}
