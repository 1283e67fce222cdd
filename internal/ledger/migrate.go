package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/davidahmann/continuum/internal/decision"
)

//go:embed migrations/*/*.sql
var schemaFS embed.FS

// DBDriver selects the SQL dialect of a relational decision store.
type DBDriver string

const (
	DBSQLite   DBDriver = "sqlite"
	DBPostgres DBDriver = "postgres"
)

// dialect holds what differs between the relational backends when recording
// schema versions.
type dialect struct {
	dir       string
	table     string
	createSQL string
	recordSQL string
	stamp     func(time.Time) any
}

var dialects = map[DBDriver]dialect{
	DBSQLite: {
		dir:   "migrations/sqlite",
		table: "schema_migrations",
		createSQL: `CREATE TABLE IF NOT EXISTS schema_migrations (
  version TEXT PRIMARY KEY,
  applied_at TEXT NOT NULL
)`,
		recordSQL: `INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?) ON CONFLICT(version) DO NOTHING`,
		stamp:     func(t time.Time) any { return t.Format(time.RFC3339) },
	},
	DBPostgres: {
		dir:   "migrations/postgres",
		table: "continuum_schema_migrations",
		createSQL: `CREATE TABLE IF NOT EXISTS continuum_schema_migrations (
  version TEXT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL
)`,
		recordSQL: `INSERT INTO continuum_schema_migrations(version, applied_at) VALUES($1, $2) ON CONFLICT(version) DO NOTHING`,
		stamp:     func(t time.Time) any { return t },
	},
}

// Migrate brings the decision schema of db up to date. Each embedded script
// runs in the same transaction that records its version, so a script is
// applied at most once and a failed one leaves no trace.
func Migrate(ctx context.Context, db *sql.DB, driver DBDriver) error {
	if db == nil {
		return decision.StorageError("migrate", errors.New("no database handle"))
	}
	d, ok := dialects[driver]
	if !ok {
		return decision.StorageError("migrate", fmt.Errorf("no schema for driver %q", driver))
	}
	if _, err := db.ExecContext(ctx, d.createSQL); err != nil {
		return decision.StorageError("create "+d.table, err)
	}

	scripts, err := listMigrationFiles(d.dir)
	if err != nil {
		return decision.StorageError("read schema scripts", err)
	}
	appliedAt := d.stamp(time.Now().UTC())
	for _, script := range scripts {
		if err := applyScript(ctx, db, d, script, appliedAt); err != nil {
			return err
		}
	}
	return nil
}

func applyScript(ctx context.Context, db *sql.DB, d dialect, script string, appliedAt any) error {
	version := strings.TrimSuffix(path.Base(script), ".sql")
	body, err := schemaFS.ReadFile(script)
	if err != nil {
		return decision.StorageError("read "+version, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return decision.StorageError("begin "+version, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, d.recordSQL, version, appliedAt)
	if err != nil {
		return decision.StorageError("record "+version, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return decision.StorageError("record "+version, err)
	} else if n == 0 {
		// Already at or past this version.
		return nil
	}

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return decision.StorageError("schema "+version, err)
	}
	return decision.StorageError("commit "+version, tx.Commit())
}

// listMigrationFiles returns the .sql scripts under dir in version order.
func listMigrationFiles(dir string) ([]string, error) {
	var scripts []string
	err := fs.WalkDir(schemaFS, dir, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != dir && e.IsDir() {
			return fs.SkipDir
		}
		if !e.IsDir() && path.Ext(p) == ".sql" {
			scripts = append(scripts, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(scripts)
	return scripts, nil
}
