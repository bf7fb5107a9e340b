package execution_test

import (
	"testing"

	"toolhub/services/conversion-api/internal/domain/execution"
)

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		name     string
		status   execution.Status
		expected bool
	}{
		{"pending is not terminal", execution.StatusPending, false},
		{"processing is not terminal", execution.StatusProcessing, false},
		{"completed is terminal", execution.StatusCompleted, true},
		{"failed is terminal", execution.StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.expected {
				t.Errorf("Status.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name  string
		from  execution.Status
		to    execution.Status
		canDo bool
	}{
		{"pending to processing", execution.StatusPending, execution.StatusProcessing, true},
		{"pending to failed (handoff died before ack)", execution.StatusPending, execution.StatusFailed, true},
		{"pending to completed - invalid", execution.StatusPending, execution.StatusCompleted, false},

		{"processing to completed", execution.StatusProcessing, execution.StatusCompleted, true},
		{"processing to failed", execution.StatusProcessing, execution.StatusFailed, true},
		{"processing to pending - invalid", execution.StatusProcessing, execution.StatusPending, false},

		{"completed to anything - invalid", execution.StatusCompleted, execution.StatusProcessing, false},
		{"completed to failed - invalid", execution.StatusCompleted, execution.StatusFailed, false},
		{"failed to anything - invalid", execution.StatusFailed, execution.StatusProcessing, false},
		{"failed to completed - invalid", execution.StatusFailed, execution.StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.canDo {
				t.Errorf("Status.CanTransitionTo() = %v, want %v", got, tt.canDo)
			}
		})
	}
}

func TestStatus_TransitionTo(t *testing.T) {
	s := execution.StatusPending
	newStatus, err := s.TransitionTo(execution.StatusProcessing)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if newStatus != execution.StatusProcessing {
		t.Errorf("Expected status to be processing, got %v", newStatus)
	}

	s = execution.StatusCompleted
	if _, err = s.TransitionTo(execution.StatusFailed); err != execution.ErrInvalidTransition {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	if _, ok := execution.ParseStatus("completed"); !ok {
		t.Error("completed should parse")
	}
	if _, ok := execution.ParseStatus("done"); ok {
		t.Error("unknown status should not parse")
	}
}
