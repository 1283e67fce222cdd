package service

import (
	"errors"

	"github.com/davidahmann/continuum/internal/decision"
)

// isKnownKind reports caller-facing errors that need no error log.
func isKnownKind(err error) bool {
	return errors.Is(err, decision.ErrDecisionNotFound) ||
		errors.Is(err, decision.ErrInvalidTransition) ||
		errors.Is(err, decision.ErrValidation)
}
