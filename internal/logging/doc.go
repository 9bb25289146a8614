// Package logging assembles structured slog loggers and formatting helpers used
// across bidsify.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code automatically tags
// log lines with subject, session, stage, and run identifiers. The console
// handler lifts subject/session into a line prefix so per-file organizer logs
// stay readable. A no-op logger is provided for tests and wiring code.
package logging
