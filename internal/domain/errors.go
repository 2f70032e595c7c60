package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a malformed or incomplete event, rejected before admission.
	ErrValidation = errors.New("validation failed")
	// ErrGateway marks a failed or timed out language model call.
	ErrGateway = errors.New("language model gateway failed")
	// ErrStore marks a persistence failure.
	ErrStore = errors.New("store operation failed")
	// ErrParse marks a malformed or absent JSON reply from the gateway.
	ErrParse = errors.New("failed to parse gateway reply")
)

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
