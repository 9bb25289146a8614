package history

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// SessionStatus is the outcome of one session within a run.
type SessionStatus string

const (
	SessionSucceeded SessionStatus = "succeeded"
	SessionFailed    SessionStatus = "failed"
	// SessionSkipped marks sessions not attempted after an earlier failure.
	SessionSkipped SessionStatus = "skipped"
)

// Run is one invocation of the workflow for a subject.
type Run struct {
	ID           string
	Subject      string
	OutputDir    string
	Status       RunStatus
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   *time.Time
	SessionCount int
	FailedCount  int
}

// Duration returns the elapsed run time, or zero while the run is active.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Session records the outcome of one session within a run.
type Session struct {
	RunID        string
	SessionID    string
	SourceDir    string
	SessionDir   string
	Status       SessionStatus
	FailureKind  string
	ErrorMessage string
	Series       int
	DICOMs       int
	Files        int
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Placement records where one original file was moved.
type Placement struct {
	RunID       string
	SessionID   string
	Original    string
	Category    string
	Destination string
	Renamed     bool
	CreatedAt   time.Time
}
