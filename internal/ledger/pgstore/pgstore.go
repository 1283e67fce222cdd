// Package pgstore persists decisions in Postgres.
package pgstore

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	"github.com/davidahmann/continuum/internal/decision"
	"github.com/davidahmann/continuum/internal/ledger"
	"github.com/davidahmann/continuum/pkg/types"
)

const upsertDecision = `INSERT INTO continuum_decisions(id, status, scope, binding_key, value_hash, created_at, updated_at, body_json)
VALUES($1,$2,$3,$4,$5,$6,$7,$8::jsonb)
ON CONFLICT(id) DO UPDATE SET
  status = EXCLUDED.status,
  scope = EXCLUDED.scope,
  binding_key = EXCLUDED.binding_key,
  value_hash = EXCLUDED.value_hash,
  updated_at = EXCLUDED.updated_at,
  body_json = EXCLUDED.body_json`

// Requires PostgreSQL 11+ for hashtextextended.
const advisoryLock = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

type Store struct {
	db *sql.DB
}

// OpenPostgres connects to dsn and applies the embedded migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ledger.Migrate(ctx, db, ledger.DBPostgres); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

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
	return getDecision(s.db.QueryRowContext(ctx, `SELECT body_json::text FROM continuum_decisions WHERE id = $1`, id), id)
}

func (s *Store) ListDecisions(ctx context.Context) ([]types.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body_json::text FROM continuum_decisions ORDER BY created_at ASC, id ASC`)
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
	return getDecision(t.tx.QueryRowContext(t.ctx, `SELECT body_json::text FROM continuum_decisions WHERE id = $1 FOR UPDATE`, id), id)
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
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM continuum_decisions WHERE id = $1`, id)
	return decision.StorageError("delete", err)
}

// ListActive takes a transaction-scoped advisory lock on the binding, so
// activations from other processes serialize even when no active row exists
// yet, then locks the current actives until the transaction ends.
func (t *Tx) ListActive(scope, bindingKey, excludeID string) ([]types.Decision, error) {
	if _, err := t.tx.ExecContext(t.ctx, advisoryLock, ledger.BindingLockKey(scope, bindingKey)); err != nil {
		return nil, decision.StorageError("lock binding", err)
	}
	rows, err := t.tx.QueryContext(t.ctx, `SELECT body_json::text FROM continuum_decisions
WHERE status = 'active' AND scope = $1 AND binding_key = $2 AND id <> $3
ORDER BY created_at ASC, id ASC
FOR UPDATE`, scope, bindingKey, excludeID)
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
