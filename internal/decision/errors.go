package decision

import (
	"errors"
	"fmt"
)

// ErrContinuum is the base kind every decision error wraps.
var ErrContinuum = errors.New("continuum")

var (
	ErrDecisionNotFound  = fmt.Errorf("%w: decision not found", ErrContinuum)
	ErrInvalidTransition = fmt.Errorf("%w: invalid transition", ErrContinuum)
	ErrValidation        = fmt.Errorf("%w: validation failed", ErrContinuum)
	ErrStorage           = fmt.Errorf("%w: storage", ErrContinuum)
)

// NotFound wraps ErrDecisionNotFound with the offending id.
func NotFound(id string) error {
	return fmt.Errorf("%w: %q", ErrDecisionNotFound, id)
}

// StorageError wraps a collaborator error as ErrStorage; nil stays nil and
// errors that already carry a decision kind pass through unchanged.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrContinuum) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
