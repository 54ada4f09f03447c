package relay

import (
	"errors"
	"fmt"
)

// ErrMalformedPayload is matched by every decode failure.
var ErrMalformedPayload = errors.New("malformed payload")

// ErrInvalidRule is returned by AlarmRule.Validate.
var ErrInvalidRule = errors.New("invalid rule")

// MalformedError describes which entity field could not be decoded.
type MalformedError struct {
	Entity string
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed %s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("malformed %s: field %q: %s", e.Entity, e.Field, e.Reason)
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedPayload
}

func malformed(entity, field, reason string) error {
	return &MalformedError{Entity: entity, Field: field, Reason: reason}
}
