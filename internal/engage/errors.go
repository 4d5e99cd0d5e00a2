package engage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oppboard/oppboard/pkg/models"
)

var (
	// ErrDuplicateEngagement is returned when a respondent grabs an
	// opportunity they already have an engagement for.
	ErrDuplicateEngagement = errors.New("engagement already exists for this opportunity and respondent")

	// ErrUnauthorized is returned when the actor lacks rights for the action.
	ErrUnauthorized = errors.New("actor is not authorized for this action")

	// ErrConflictRetry is returned when an optimistic version check loses a
	// concurrent write race. The service retries a bounded number of times
	// before surfacing it.
	ErrConflictRetry = errors.New("concurrent update conflict")

	// ErrExpired is returned when answers are submitted after the
	// questionnaire deadline.
	ErrExpired = errors.New("questionnaire has expired")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

// InvalidTransitionError reports an action that is not legal for the
// engagement's current status, together with the actions that are.
type InvalidTransitionError struct {
	Current models.EngagementStatus
	Action  Action
	Allowed []Action
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, a := range e.Allowed {
		allowed[i] = string(a)
	}
	if len(allowed) == 0 {
		return fmt.Sprintf("action %q is not allowed in terminal state %q", e.Action, e.Current)
	}
	return fmt.Sprintf("action %q is not allowed in state %q (allowed: %s)", e.Action, e.Current, strings.Join(allowed, ", "))
}

// ValidationError collects every violation found in an input, not just the
// first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}
