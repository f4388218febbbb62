package invite

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("invite not found")
	ErrExpired          = errors.New("invite expired")
	ErrExhausted        = errors.New("invite use limit reached")
	ErrRevoked          = errors.New("invite revoked")
	ErrGuestsNotAllowed = errors.New("invite does not allow guests")
	ErrStorage          = errors.New("invite state not persisted")

	// ErrNoLongerValid matches every redemption failure that is shown to the
	// user as "invitation no longer valid": expired, exhausted, revoked and
	// unknown codes. The concrete kind stays reachable through errors.Is.
	ErrNoLongerValid = errors.New("invitation is no longer valid")
)

// ValidationError reports a caller-recoverable input problem (malformed email,
// malformed code, out-of-range setting). It unwraps to ErrInvalidInput.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// redeemError pairs a concrete redemption failure with ErrNoLongerValid.
type redeemError struct {
	kind error
}

func (e redeemError) Error() string { return e.kind.Error() }

func (e redeemError) Is(target error) bool {
	return target == ErrNoLongerValid || target == e.kind
}

func (e redeemError) Unwrap() error { return e.kind }

func noLongerValid(kind error) error { return redeemError{kind: kind} }

// IsNoLongerValid reports whether err should be surfaced as an invalid invitation.
func IsNoLongerValid(err error) bool { return errors.Is(err, ErrNoLongerValid) }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// ErrorKind returns the stable label of a redemption failure for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrExhausted):
		return "exhausted"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrGuestsNotAllowed):
		return "guests_not_allowed"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "error"
	}
}
