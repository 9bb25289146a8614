package organizer

import (
	"fmt"
	"path/filepath"

	"bidsify/internal/services"
)

// Verify checks that every completed placement in report exists at its
// destination and that no original is left in the session root.
func (o *Organizer) Verify(report Report) error {
	for _, p := range report.Placements {
		if !p.Done {
			continue
		}
		dest := filepath.Join(report.SessionDir, p.Destination)
		info, err := o.fs.Stat(dest)
		if err != nil {
			return services.Wrap(services.ErrValidation, stageName, "verify", fmt.Sprintf("%s missing at %s", p.Original, p.Destination), err)
		}
		if info.IsDir() {
			return services.Wrap(services.ErrValidation, stageName, "verify", fmt.Sprintf("%s is a directory", p.Destination), nil)
		}
	}
	remaining, err := o.fs.ListFiles(report.SessionDir)
	if err != nil {
		return services.Wrap(services.ErrFilesystem, stageName, "verify", "list session directory", err)
	}
	done := make(map[string]bool, len(report.Placements))
	for _, p := range report.Placements {
		if p.Done {
			done[p.Original] = true
		}
	}
	for _, name := range remaining {
		if done[name] {
			return services.Wrap(services.ErrValidation, stageName, "verify", fmt.Sprintf("%s still present in session root", name), nil)
		}
	}
	return nil
}
