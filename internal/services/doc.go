// Package services defines shared utilities consumed by the pipeline stages
// and the external converter integration.
//
// Key responsibilities:
//   - Context helpers that stamp subject, session, stage, and run identifiers
//     for logging and history records.
//   - Structured error markers plus the Wrap helper that tag failures as
//     precondition, classification, external tool, or filesystem problems.
//
// Use these helpers when wiring new stage logic so error reporting stays
// uniform across the pipeline.
package services
