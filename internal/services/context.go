package services

import "context"

type contextKey string

const (
	subjectKey contextKey = "subject"
	sessionKey contextKey = "session"
	stageKey   contextKey = "stage"
	runIDKey   contextKey = "run_id"
)

// WithSubject annotates context with the subject identifier.
func WithSubject(ctx context.Context, subject string) context.Context {
	if subject == "" {
		return ctx
	}
	return context.WithValue(ctx, subjectKey, subject)
}

// SubjectFromContext extracts the subject identifier if present.
func SubjectFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(subjectKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSession annotates context with the session identifier.
func WithSession(ctx context.Context, session string) context.Context {
	if session == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext returns the session identifier if present.
func SessionFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name (convert/organize).
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRunID annotates context with the run correlation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
