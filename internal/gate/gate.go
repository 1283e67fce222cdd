// Package gate enforces at most one active decision per (scope, binding_key).
//
// Every activation runs through Gate.Activate, which holds the binding lock
// across load, compare and write so concurrent activations of the same
// binding serialize.
package gate

import (
	"context"

	"github.com/davidahmann/continuum/internal/decision"
	"github.com/davidahmann/continuum/internal/ledger"
	"github.com/davidahmann/continuum/pkg/types"
)

// Outcome reports what an activation did.
type Outcome struct {
	Decision   types.Decision
	Idempotent bool
	// Superseded lists the ids of previously active decisions retired by this activation.
	Superseded []string
}

type Gate struct {
	locker Locker
}

// New returns a Gate; a nil locker uses an in-process KeyedMutex.
func New(locker Locker) *Gate {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &Gate{locker: locker}
}

// Activate moves the draft id to active. If an active decision with the same
// value hash already holds the binding, the draft is discarded and that
// decision is returned. Otherwise every other active for the binding is
// superseded first.
func (g *Gate) Activate(ctx context.Context, store ledger.Store, id, now string) (Outcome, error) {
	draft, err := store.GetDecision(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	scope, bindingKey := bindingOf(draft)

	unlock, err := g.locker.Lock(ctx, LockKey(scope, bindingKey))
	if err != nil {
		return Outcome{}, decision.StorageError("lock binding", err)
	}
	defer unlock()

	var out Outcome
	err = store.WithTx(ctx, func(tx ledger.Tx) error {
		incoming, err := tx.GetDecision(id)
		if err != nil {
			return err
		}
		if !decision.CanTransition(incoming.Status, types.StatusActive) {
			_, err := decision.Transition(incoming, types.StatusActive, now)
			return err
		}

		existing, err := tx.ListActive(scope, bindingKey, id)
		if err != nil {
			return err
		}

		for _, ex := range existing {
			if ex.Enforcement.ValueHash != "" && ex.Enforcement.ValueHash == incoming.Enforcement.ValueHash {
				if err := tx.DeleteDecision(id); err != nil {
					return err
				}
				out = Outcome{Decision: ex, Idempotent: true}
				return nil
			}
		}

		for _, ex := range existing {
			retired, err := decision.Transition(ex, types.StatusSuperseded, now)
			if err != nil {
				return err
			}
			if err := tx.PutDecision(retired); err != nil {
				return err
			}
			out.Superseded = append(out.Superseded, ex.ID)
		}

		activated, err := decision.Transition(incoming, types.StatusActive, now)
		if err != nil {
			return err
		}
		if err := tx.PutDecision(activated); err != nil {
			return err
		}
		out.Decision = activated
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func bindingOf(d types.Decision) (scope, bindingKey string) {
	bindingKey = d.Enforcement.BindingKey
	if bindingKey == "" {
		bindingKey = decision.BindingKey(d.Enforcement.Key, d.Title)
	}
	return d.Enforcement.Scope, bindingKey
}
