package access

import (
	"errors"
)

// Errors returned by Engine and Ledger. Every error wraps exactly one of
// these sentinels.
var (
	// ErrInvalidRequest is returned for missing, empty, or wrongly typed fields.
	ErrInvalidRequest = errors.New("access: invalid request")

	// ErrNotFound is returned when no credential has the given serial.
	ErrNotFound = errors.New("access: credential not found")

	// ErrForbidden is returned when the credential is not entitled to the key.
	ErrForbidden = errors.New("access: not entitled to this key")

	// ErrConflict is returned when the key is already issued to the credential.
	ErrConflict = errors.New("access: key already issued")

	// ErrInvalidState is returned when returning a key the credential does not hold.
	ErrInvalidState = errors.New("access: key not held by this credential")

	// ErrStorage is returned when the directory fails to read or persist.
	ErrStorage = errors.New("access: storage error")
)

// Code is the machine-readable outcome category of an access operation.
type Code string

// Outcome codes.
const (
	CodeOK             Code = "ok"
	CodeInvalidRequest Code = "invalid_request"
	CodeNotFound       Code = "not_found"
	CodeForbidden      Code = "forbidden"
	CodeConflict       Code = "conflict"
	CodeInvalidState   Code = "invalid_state"
	CodeStorage        Code = "storage_error"
)

// CodeOf maps err onto its outcome code. Errors that wrap none of the
// package sentinels are treated as storage failures.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	default:
		return CodeStorage
	}
}
