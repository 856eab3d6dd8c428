package attendance

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input rejected before touching a session.
	ErrValidation = errors.New("validation failed")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDenied matches every *DenialError.
	ErrDenied = errors.New("attempt denied")

	errConflict = errors.New("attendance already recorded")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// DenialError is a policy denial. It has already been written to the ledger.
type DenialError struct {
	Action Action
	Reason Reason
}

func (e *DenialError) Error() string { return fmt.Sprintf("%s denied: %s", e.Action, e.Reason) }

func (e *DenialError) Is(target error) bool { return target == ErrDenied }

// ReasonOf extracts the denial reason from err.
func ReasonOf(err error) (Reason, bool) {
	var d *DenialError
	if errors.As(err, &d) {
		return d.Reason, true
	}
	return "", false
}
