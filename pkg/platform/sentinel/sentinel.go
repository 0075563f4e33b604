// Package sentinel holds dependency-level errors. Stores and adapters return
// these (optionally wrapped) so services translate them into domain errors
// exactly once.
package sentinel

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
)
