// Package execution owns the durable lifecycle of one tool invocation.
package execution

import "errors"

// Status represents the lifecycle status of an execution.
type Status string

const (
	// StatusPending is the only initial state: the input is uploaded and the
	// record persisted, work has not started.
	StatusPending Status = "pending"
	// StatusProcessing means an executor (local or remote) acknowledged the
	// work.
	StatusProcessing Status = "processing"

	// Terminal states (no further transitions allowed)
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrInvalidTransition is returned when a status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ValidTransitions defines allowed status transitions. A direct
// pending -> failed covers a handoff that dies before the remote tier ever
// acknowledges.
var ValidTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	// Terminal states have no valid transitions
	StatusCompleted: {},
	StatusFailed:    {},
}

// CanTransitionTo checks if a transition from current status to target status is valid.
func (s Status) CanTransitionTo(target Status) bool {
	validTargets, ok := ValidTransitions[s]
	if !ok {
		return false
	}
	for _, t := range validTargets {
		if t == target {
			return true
		}
	}
	return false
}

// TransitionTo attempts to transition to the target status and returns error if invalid.
func (s Status) TransitionTo(target Status) (Status, error) {
	if !s.CanTransitionTo(target) {
		return s, ErrInvalidTransition
	}
	return target, nil
}

// ParseStatus validates an externally supplied status string.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return Status(raw), true
	default:
		return "", false
	}
}
