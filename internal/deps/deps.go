package deps

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Requirement names an external binary and whether a run can proceed without it.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the lookup outcome for one Requirement. Path is the resolved
// executable when Available.
type Status struct {
	Requirement
	Available bool
	Path      string
	Detail    string
}

// Satisfied reports whether the requirement does not block a run.
func (s Status) Satisfied() bool {
	return s.Available || s.Optional
}

// Check resolves a single requirement. Commands containing a path separator
// are checked directly; bare names are looked up on PATH.
func Check(req Requirement) Status {
	req.Command = strings.TrimSpace(req.Command)
	req.Description = strings.TrimSpace(req.Description)
	status := Status{Requirement: req}

	if req.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(req.Command)
	switch {
	case err == nil:
		status.Available = true
		status.Path = path
	case errors.Is(err, exec.ErrNotFound):
		status.Detail = fmt.Sprintf("binary %q not found in PATH", req.Command)
	case strings.ContainsRune(req.Command, filepath.Separator):
		status.Detail = describePathError(req.Command, err)
	default:
		status.Detail = fmt.Sprintf("binary %q: %v", req.Command, err)
	}
	return status
}

// CheckBinaries resolves every requirement in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, Check(req))
	}
	return results
}

// Missing returns the names of required binaries that were not found.
func Missing(statuses []Status) []string {
	var names []string
	for _, s := range statuses {
		if !s.Satisfied() {
			names = append(names, s.Name)
		}
	}
	return names
}

func describePathError(command string, err error) string {
	info, statErr := os.Stat(command)
	switch {
	case statErr != nil:
		return fmt.Sprintf("%s does not exist", command)
	case info.IsDir():
		return fmt.Sprintf("%s is a directory", command)
	case info.Mode()&0o111 == 0:
		return fmt.Sprintf("%s is not executable", command)
	default:
		return fmt.Sprintf("%s: %v", command, err)
	}
}
