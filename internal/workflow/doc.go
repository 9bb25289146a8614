// Package workflow runs a subject's sessions through conversion and
// organization.
//
// The Runner takes a Plan built from configuration, holds a per-subject file
// lock for the duration of the run, stamps a run id into the context, and
// processes sessions strictly in order. Each session runs dcm2niix and then
// the organizer; outcomes and placements go to the run history.
//
// A failed session never makes the run succeed. With ContinueOnError the
// remaining sessions still run and every failure is joined into the returned
// error; without it the remaining sessions are reported as skipped.
package workflow
