// Package sqlstore persists decisions in SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"github.com/davidahmann/continuum/internal/decision"
	"github.com/davidahmann/continuum/internal/ledger"
	"github.com/davidahmann/continuum/pkg/types"
)

const upsertDecision = `INSERT INTO decisions(id, status, scope, binding_key, value_hash, created_at, updated_at, body_json)
VALUES(?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  status = excluded.status,
  scope = excluded.scope,
  binding_key = excluded.binding_key,
  value_hash = excluded.value_hash,
  updated_at = excluded.updated_at,
  body_json = excluded.body_json`

type Store struct {
	db *sql.DB
}

// OpenSQLite opens dsn and applies the embedded migrations. Writers share a
// single connection so transactions serialize inside the process.
func OpenSQLite(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ledger.Migrate(ctx, db, ledger.DBSQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return decision.StorageError("begin", err)
	}
	wrapped := &Tx{ctx: ctx, tx: tx}
	if err := fn(wrapped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return decision.StorageError("commit", tx.Commit())
}

func (s *Store) PutDecision(ctx context.Context, d types.Decision) error {
	return s.WithTx(ctx, func(tx ledger.Tx) error { return tx.PutDecision(d) })
}

func (s *Store) GetDecision(ctx context.Context, id string) (types.Decision, error) {
	return getDecision(s.db.QueryRowContext(ctx, `SELECT body_json FROM decisions WHERE id = ?`, id), id)
}

func (s *Store) ListDecisions(ctx context.Context) ([]types.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body_json FROM decisions ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, decision.StorageError("list", err)
	}
	return scanDecisions(rows)
}

type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *Tx) GetDecision(id string) (types.Decision, error) {
	return getDecision(t.tx.QueryRowContext(t.ctx, `SELECT body_json FROM decisions WHERE id = ?`, id), id)
}

func (t *Tx) PutDecision(d types.Decision) error {
	body, err := ledger.EncodeDecision(d)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx, upsertDecision,
		d.ID, string(d.Status), d.Enforcement.Scope, d.Enforcement.BindingKey, d.Enforcement.ValueHash,
		d.CreatedAt, d.UpdatedAt, string(body),
	)
	return decision.StorageError("put", err)
}

func (t *Tx) DeleteDecision(id string) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM decisions WHERE id = ?`, id)
	return decision.StorageError("delete", err)
}

func (t *Tx) ListActive(scope, bindingKey, excludeID string) ([]types.Decision, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT body_json FROM decisions
WHERE status = 'active' AND scope = ? AND binding_key = ? AND id <> ?
ORDER BY created_at ASC, id ASC`, scope, bindingKey, excludeID)
	if err != nil {
		return nil, decision.StorageError("list active", err)
	}
	return scanDecisions(rows)
}

func getDecision(row *sql.Row, id string) (types.Decision, error) {
	var body string
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Decision{}, decision.NotFound(id)
		}
		return types.Decision{}, decision.StorageError("get", err)
	}
	return ledger.DecodeDecision([]byte(body))
}

func scanDecisions(rows *sql.Rows) ([]types.Decision, error) {
	defer rows.Close()
	out := []types.Decision{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, decision.StorageError("scan", err)
		}
		d, err := ledger.DecodeDecision([]byte(body))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, decision.StorageError("rows", rows.Err())
}
