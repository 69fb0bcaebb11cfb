package errors

import (
	"errors"
	"testing"
)

func TestMeowctlError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *MeowctlError
		wantStr string
	}{
		{
			name:    "simple error",
			err:     &MeowctlError{Code: "TEST_001", Message: "test error"},
			wantStr: "[TEST_001] test error",
		},
		{
			name:    "error with cause",
			err:     &MeowctlError{Code: "TEST_002", Message: "wrapped error", Cause: errors.New("underlying")},
			wantStr: "[TEST_002] wrapped error: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantStr {
				t.Errorf("Error() = %q, want %q", got, tt.wantStr)
			}
		})
	}
}

func TestHasCodeUnwraps(t *testing.T) {
	base := TargetNotFound("agent-1")
	wrapped := fmt_Errorf(base)

	if !HasCode(wrapped, CodeResolutionNotFound) {
		t.Fatalf("expected HasCode to find wrapped code")
	}
	if Code(wrapped) != CodeResolutionNotFound {
		t.Fatalf("expected Code() to return %s, got %s", CodeResolutionNotFound, Code(wrapped))
	}
}

func fmt_Errorf(err error) error {
	return errors.Join(err)
}

func TestApprovalTimedOutMessage(t *testing.T) {
	err := ApprovalTimedOut("appr-1", 30)
	want := "Approval appr-1 timed out after 30 seconds"
	if err.Message != want {
		t.Fatalf("got %q, want %q", err.Message, want)
	}
}

func TestCycleDetectedMessage(t *testing.T) {
	err := CycleDetected([]string{"A", "B", "A"})
	want := "circular dependencies: A -> B -> A"
	if err.Message != want {
		t.Fatalf("got %q, want %q", err.Message, want)
	}
}
