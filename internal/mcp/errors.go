package mcp

import (
	"fmt"
)

// ValidationError reports a missing or malformed parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func missingParam(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "required parameter is missing"}
}

func invalidID(field, value string) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf("invalid ID format: %s", value)}
}

// NotFoundError reports an absent referenced record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// AuthorizationError reports an ownership mismatch.
type AuthorizationError struct {
	UserID string
	Action string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %s is not authorized to %s", e.UserID, e.Action)
}
