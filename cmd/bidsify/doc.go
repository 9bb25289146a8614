// Package main hosts the bidsify CLI entrypoint and command graph.
//
// The Cobra-based command tree loads configuration once, applies the
// subject, session and output directory flags on top of it, and hands the
// result to the workflow, organizer, classifier and history packages. The
// commands themselves only parse flags and render output.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
