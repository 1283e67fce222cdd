// Package ledger defines the durable decision store and its in-memory form.
package ledger

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/davidahmann/continuum/internal/crypto"
	"github.com/davidahmann/continuum/pkg/types"
)

// Store persists decision records keyed by id.
type Store interface {
	// WithTx runs fn as one atomic unit of work; a non-nil error rolls it back.
	WithTx(ctx context.Context, fn func(Tx) error) error

	PutDecision(ctx context.Context, d types.Decision) error
	// GetDecision returns decision.ErrDecisionNotFound for unknown ids.
	GetDecision(ctx context.Context, id string) (types.Decision, error)
	// ListDecisions returns every decision ordered by (created_at, id).
	ListDecisions(ctx context.Context) ([]types.Decision, error)
}

// Tx is the view of a Store inside WithTx.
type Tx interface {
	GetDecision(id string) (types.Decision, error)
	PutDecision(d types.Decision) error
	DeleteDecision(id string) error
	// ListActive returns active decisions bound to exactly (scope, bindingKey),
	// excluding excludeID. Relational stores lock the returned rows.
	ListActive(scope, bindingKey, excludeID string) ([]types.Decision, error)
}

// SortDecisions orders decisions by (created_at, id).
func SortDecisions(ds []types.Decision) {
	slices.SortFunc(ds, func(a, b types.Decision) int {
		if c := strings.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// IsActiveBinding reports whether d is an active decision for (scope, bindingKey)
// other than excludeID.
func IsActiveBinding(d types.Decision, scope, bindingKey, excludeID string) bool {
	return d.Status == types.StatusActive &&
		d.ID != excludeID &&
		d.Enforcement.Scope == scope &&
		d.Enforcement.BindingKey == bindingKey
}

// BindingLockKey names the lock guarding (scope, bindingKey). The scope is
// length-prefixed so distinct pairs never share an encoding.
func BindingLockKey(scope, bindingKey string) string {
	enc := strconv.Itoa(len(scope)) + ":" + scope + bindingKey
	return "continuum:binding:" + crypto.DigestHex([]byte(enc))
}
