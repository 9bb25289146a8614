package workflow

import (
	"time"

	"bidsify/internal/history"
	"bidsify/internal/organizer"
	"bidsify/internal/services/dcm2niix"
)

// SessionReport is the outcome of one session.
type SessionReport struct {
	ID           string
	SourceDir    string
	SessionDir   string
	Status       history.SessionStatus
	Conversion   dcm2niix.Result
	Organization organizer.Report
	Err          error
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Report summarizes a run.
type Report struct {
	RunID      string
	Subject    string
	StartedAt  time.Time
	FinishedAt time.Time
	Sessions   []SessionReport
}

// Succeeded reports whether every session succeeded.
func (r Report) Succeeded() bool {
	if len(r.Sessions) == 0 {
		return false
	}
	for _, s := range r.Sessions {
		if s.Status != history.SessionSucceeded {
			return false
		}
	}
	return true
}

// Count returns the number of sessions with the given status.
func (r Report) Count(status history.SessionStatus) int {
	n := 0
	for _, s := range r.Sessions {
		if s.Status == status {
			n++
		}
	}
	return n
}

// Duration returns the wall time of the run.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
