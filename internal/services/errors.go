package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPrecondition   = errors.New("precondition failure")
	ErrClassification = errors.New("classification error")
	ErrExternalTool   = errors.New("external tool error")
	ErrFilesystem     = errors.New("filesystem error")
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later failure classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrFilesystem
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind maps an error to the short label persisted in run history.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPrecondition):
		return "precondition"
	case errors.Is(err, ErrClassification):
		return "classification"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrFilesystem):
		return "filesystem"
	default:
		return "unknown"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
