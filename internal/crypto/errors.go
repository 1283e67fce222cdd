package crypto

import "errors"

var (
	ErrKeyCollision     = errors.New("normalized map key collision")
	ErrInvalidDigestLen = errors.New("invalid digest length")
)
