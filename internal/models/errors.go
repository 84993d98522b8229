package models

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed or unknown enum value before anything is
// persisted. Field and Value survive to the API response so the caller knows
// exactly what was rejected.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value %q for field %s", e.Value, e.Field)
}

func NewValidationError(field, value string) *ValidationError {
	return &ValidationError{Field: field, Value: value}
}

// ConsistencyError reports a status combination that breaks the cascade rules.
type ConsistencyError struct {
	Problems []string
}

func (e *ConsistencyError) Error() string {
	return "inconsistent statuses: " + strings.Join(e.Problems, "; ")
}
