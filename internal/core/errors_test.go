package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := (&DomainError{
		Category: ErrCatValidation,
		Code:     "CODE",
		Message:  "message",
	}).WithCause(cause)

	if err.Unwrap() != cause {
		t.Fatalf("expected cause to be unwrapped")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match cause")
	}

	match := &DomainError{Category: ErrCatValidation, Code: "CODE"}
	if !errors.Is(err, match) {
		t.Fatalf("expected errors.Is to match category and code")
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := &DomainError{Category: ErrCatState, Code: "X", Message: "msg"}
	err.WithDetail("k", "v")
	if err.Details == nil || err.Details["k"] != "v" {
		t.Fatalf("expected details to be set")
	}
}

func TestErrorFactories_Codes(t *testing.T) {
	tests := []struct {
		name string
		err  *DomainError
		code string
		cat  ErrorCategory
	}{
		{"command not found", ErrCommandNotFound("claude"), CodeCommandNotFound, ErrCatNotFound},
		{"timeout", ErrTimeout("slow"), CodeTimeout, ErrCatTimeout},
		{"parse", ErrParse("bad"), CodeParseError, ErrCatParse},
		{"invalid workflow", ErrInvalidWorkflow("bad"), CodeValidationError, ErrCatValidation},
		{"prohibited", ErrProhibitedNodeType([]string{"n1 (subAgent)"}), CodeProhibitedNodeType, ErrCatValidation},
		{"cancelled", ErrCancelled(), CodeCancelled, ErrCatState},
		{"unknown", ErrUnknown("boom"), CodeUnknownError, ErrCatInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Category != tt.cat {
				t.Errorf("Category = %q, want %q", tt.err.Category, tt.cat)
			}
		})
	}
}

func TestErrProhibitedNodeType_ListsOffenders(t *testing.T) {
	err := ErrProhibitedNodeType([]string{"agent-1 (subAgent)"})
	offenders, ok := err.Details["offenders"].([]string)
	if !ok || len(offenders) != 1 || offenders[0] != "agent-1 (subAgent)" {
		t.Fatalf("offenders = %v", err.Details["offenders"])
	}
}

func TestGetCode(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrTimeout("slow"))
	if GetCode(wrapped) != CodeTimeout {
		t.Errorf("GetCode(wrapped) = %q, want %q", GetCode(wrapped), CodeTimeout)
	}
	if GetCode(errors.New("plain")) != CodeUnknownError {
		t.Errorf("expected unknown code for plain error")
	}
}

func TestIsCancelled(t *testing.T) {
	if !IsCancelled(fmt.Errorf("x: %w", ErrCancelled())) {
		t.Fatalf("expected wrapped cancellation to match")
	}
	if IsCancelled(ErrTimeout("slow")) {
		t.Fatalf("timeout must not match cancellation")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrTimeout("slow")) {
		t.Fatalf("expected retryable error")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("expected non-domain error to be non-retryable")
	}
}

func TestGetCategory(t *testing.T) {
	if GetCategory(errors.New("plain")) != ErrCatInternal {
		t.Fatalf("expected internal category for non-domain error")
	}
	if GetCategory(ErrTimeout("slow")) != ErrCatTimeout {
		t.Fatalf("expected timeout category")
	}
}

func TestUserGuidance(t *testing.T) {
	if UserGuidance(CodeCommandNotFound) == "" {
		t.Errorf("expected install guidance for %s", CodeCommandNotFound)
	}
	if UserGuidance(CodeCancelled) != "" {
		t.Errorf("cancellation should not carry guidance")
	}
	if UserGuidance("SOMETHING_ELSE") == "" {
		t.Errorf("expected fallback guidance")
	}
}
