// Package logs reads the bidsify log file for the CLI.
//
// Tail returns the last lines with bounded memory and the offset to resume
// from; Follow polls from that offset until the context is cancelled. Both
// accept a substring filter so a single run or session can be isolated, e.g.
// by its run_id field.
package logs
