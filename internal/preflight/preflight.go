package preflight

import (
	"errors"
	"fmt"

	"bidsify/internal/config"
	"bidsify/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options narrows RunAll.
type Options struct {
	// SkipConverter omits the dcm2niix and source directory checks, for
	// organizing sessions that are already converted.
	SkipConverter bool
}

// RunAll executes every preflight check applicable to cfg. Output and log
// directories must already exist; call cfg.EnsureDirectories first.
func RunAll(cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if opts.SkipConverter {
		return results
	}

	for _, status := range CheckSystemDeps(cfg) {
		r := Result{Name: status.Name, Passed: status.Satisfied(), Detail: status.Detail}
		if status.Available {
			r.Detail = status.Path
		}
		results = append(results, r)
	}
	for _, s := range cfg.Sessions {
		results = append(results, CheckReadableDirectory(fmt.Sprintf("Session %s source", s.ID), s.SourceDir))
	}
	return results
}

// Err joins every failed result into a precondition error, or returns nil.
func Err(results []Result) error {
	var failures []error
	for _, r := range results {
		if !r.Passed {
			failures = append(failures, fmt.Errorf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return services.Wrap(services.ErrPrecondition, "preflight", "check", "", errors.Join(failures...))
}
