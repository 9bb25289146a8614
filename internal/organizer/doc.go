// Package organizer turns a flat directory of freshly converted scans into
// the BIDS session layout.
//
// Organize snapshots the session directory once, classifies every file,
// checks the planned destinations for collisions, creates the dwi, anat, func,
// and misc subdirectories, and then moves and renames each file. The
// subdirectories must not exist beforehand: running twice on the same session
// fails at directory creation rather than reshuffling organized data.
//
// Destructive work goes through the Filesystem interface. OSFilesystem never
// replaces an existing path and falls back to a verified copy across devices.
// There is no rollback; a failure part way leaves earlier files where they
// were moved and the returned Report says which.
package organizer
