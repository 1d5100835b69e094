package core

import "errors"

var (
	ErrNotFound = errors.New("not_found")
	// ErrCodeConsumed indica que el authorization code ya fue canjeado
	// (is_valid pasó a false) o nunca existió.
	ErrCodeConsumed = errors.New("authorization_code_consumed")
	ErrConflict     = errors.New("conflict")
)
