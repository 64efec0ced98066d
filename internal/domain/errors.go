package domain

import (
	"errors"
	"fmt"
)

// ErrPositionNotFound is returned by stores when a position id does not exist.
var ErrPositionNotFound = errors.New("position not found")

// ErrSecurityNotFound is returned when a ticker is not in the universe.
var ErrSecurityNotFound = errors.New("security not found")

// ValidationError reports bad inputs to a pure calculation such as sizing.
// It aborts only the calculation it came from.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvariantViolationError reports an attempt to break a position invariant, such as
// lowering a stop or updating a closed position. Callers must surface it as a failure.
type InvariantViolationError struct {
	PositionID int64
	Rule       string
	Message    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant %s violated on position %d: %s", e.Rule, e.PositionID, e.Message)
}

// Invariant rule names.
const (
	RuleStopMonotonic = "stop_non_decreasing"
	RuleLevelForward  = "protection_level_forward"
	RulePositionOpen  = "position_open"
	RuleKnownLevel    = "protection_level_known"
)

// NewInvariantViolation builds an InvariantViolationError.
func NewInvariantViolation(positionID int64, rule, format string, args ...any) error {
	return &InvariantViolationError{PositionID: positionID, Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsInvariantViolation reports whether err wraps an InvariantViolationError.
func IsInvariantViolation(err error) bool {
	var target *InvariantViolationError
	return errors.As(err, &target)
}
