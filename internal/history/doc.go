// Package history persists an audit trail of bidsify runs in SQLite.
//
// Organization moves and renames files with no undo, so every run records
// its sessions, their outcomes, and each placement from original filename to
// destination. The CLI reads the same store for the history and status
// commands.
package history
