package workflow

import (
	"errors"
	"fmt"
	"strings"

	"bidsify/internal/classifier"
	"bidsify/internal/config"
	"bidsify/internal/services"
)

// SessionPlan names one session and its DICOM source.
type SessionPlan struct {
	ID        string
	SourceDir string
}

// Plan is everything a run needs to know about what to process.
type Plan struct {
	Subject         string
	OutputDir       string
	Sessions        []SessionPlan
	ContinueOnError bool
	// SkipConversion organizes sessions that were already converted.
	SkipConversion bool
}

// PlanFromConfig builds a plan from validated configuration.
func PlanFromConfig(cfg *config.Config) (Plan, error) {
	if cfg == nil {
		return Plan{}, services.Wrap(services.ErrConfiguration, "planning", "build plan", "configuration required", nil)
	}
	if err := cfg.ValidateRun(); err != nil {
		return Plan{}, services.Wrap(services.ErrConfiguration, "planning", "build plan", "", err)
	}
	plan := Plan{
		Subject:         cfg.Subject.ID,
		OutputDir:       cfg.Paths.OutputDir,
		ContinueOnError: cfg.Workflow.ContinueOnError,
	}
	for _, s := range cfg.Sessions {
		plan.Sessions = append(plan.Sessions, SessionPlan{ID: s.ID, SourceDir: s.SourceDir})
	}
	return plan, nil
}

// SubjectLabel returns the BIDS label of the plan's subject.
func (p Plan) SubjectLabel() string {
	return classifier.SubjectLabel(p.Subject)
}

// Validate checks that the plan names a subject, an output root, and at
// least one uniquely named session.
func (p Plan) Validate() error {
	var problems []error
	if strings.TrimSpace(p.Subject) == "" {
		problems = append(problems, errors.New("subject is required"))
	}
	if strings.TrimSpace(p.OutputDir) == "" {
		problems = append(problems, errors.New("output directory is required"))
	}
	if len(p.Sessions) == 0 {
		problems = append(problems, errors.New("at least one session is required"))
	}
	seen := make(map[string]struct{}, len(p.Sessions))
	for i, s := range p.Sessions {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			problems = append(problems, fmt.Errorf("session %d: id is required", i+1))
			continue
		}
		if _, dup := seen[id]; dup {
			problems = append(problems, fmt.Errorf("session %s listed twice", id))
		}
		seen[id] = struct{}{}
		if !p.SkipConversion && strings.TrimSpace(s.SourceDir) == "" {
			problems = append(problems, fmt.Errorf("session %s: source directory is required", id))
		}
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrConfiguration, "planning", "validate plan", "", errors.Join(problems...))
	}
	return nil
}
