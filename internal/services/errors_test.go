package services_test

import (
	"errors"
	"strings"
	"testing"

	"bidsify/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "convert", "dcm2niix", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"convert", "dcm2niix", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutDetail(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrFilesystem) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestFailureKindMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"precondition", services.Wrap(services.ErrPrecondition, "organize", "mkdir", "exists", nil), "precondition"},
		{"classification", services.Wrap(services.ErrClassification, "organize", "classify", "bad task", nil), "classification"},
		{"external", services.Wrap(services.ErrExternalTool, "convert", "run", "exit 1", nil), "external_tool"},
		{"filesystem", services.Wrap(services.ErrFilesystem, "organize", "rename", "denied", nil), "filesystem"},
		{"plain", errors.New("other"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.FailureKind(tt.err); got != tt.want {
				t.Fatalf("FailureKind = %q, want %q", got, tt.want)
			}
		})
	}
}
