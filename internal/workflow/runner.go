package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"bidsify/internal/classifier"
	"bidsify/internal/config"
	"bidsify/internal/history"
	"bidsify/internal/logging"
	"bidsify/internal/organizer"
	"bidsify/internal/services"
	"bidsify/internal/services/dcm2niix"
)

// ErrSubjectLocked is returned when another process holds the subject lock.
var ErrSubjectLocked = errors.New("subject is locked by another run")

// Organizer lays out one converted session.
type Organizer interface {
	Organize(ctx context.Context, outputDir, subjectID, sessionID string) (organizer.Report, error)
}

// Recorder persists run outcomes. *history.Store implements it.
type Recorder interface {
	BeginRun(ctx context.Context, id, subject, outputDir string) error
	FinishRun(ctx context.Context, id string, status history.RunStatus, errorMessage string) error
	RecordSession(ctx context.Context, rec history.Session) error
	RecordPlacements(ctx context.Context, placements []history.Placement) error
}

// Runner executes plans.
type Runner struct {
	converter dcm2niix.Converter
	organizer Organizer
	recorder  Recorder
	lockDir   string
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder records runs in the given history store.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithLockDir enables per-subject locking using lock files in dir.
func WithLockDir(dir string) Option {
	return func(r *Runner) {
		r.lockDir = strings.TrimSpace(dir)
	}
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Runner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRunner constructs a runner from explicit collaborators.
func NewRunner(converter dcm2niix.Converter, org Organizer, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		converter: converter,
		organizer: org,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewFromConfig wires the dcm2niix client, classifier and organizer described
// by cfg. rec may be nil to disable history.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, rec Recorder) (*Runner, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "planning", "build runner", "configuration required", nil)
	}
	client, err := dcm2niix.New(cfg.Converter, dcm2niix.WithLogger(logger))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "planning", "build converter", "", err)
	}
	c := classifier.New(classifier.WithAccelerationMarkers(cfg.Classifier.AccelerationMarkers))
	org := organizer.New(c, logger)
	opts := []Option{WithLockDir(cfg.LockDir())}
	if rec != nil {
		opts = append(opts, WithRecorder(rec))
	}
	return NewRunner(client, org, logger, opts...), nil
}

// Run executes the plan. The returned error joins every session failure; the
// report is populated even when err is non-nil.
func (r *Runner) Run(ctx context.Context, plan Plan) (Report, error) {
	report := Report{Subject: plan.SubjectLabel(), StartedAt: r.now()}
	if err := plan.Validate(); err != nil {
		return report, err
	}
	if !plan.SkipConversion && r.converter == nil {
		return report, services.Wrap(services.ErrConfiguration, "planning", "run", "converter required", nil)
	}
	if r.organizer == nil {
		return report, services.Wrap(services.ErrConfiguration, "planning", "run", "organizer required", nil)
	}

	unlock, err := r.lockSubject(plan.SubjectLabel())
	if err != nil {
		return report, err
	}
	defer unlock()

	report.RunID = r.newID()
	ctx = services.WithRunID(ctx, report.RunID)
	ctx = services.WithSubject(ctx, report.Subject)
	logger := logging.WithContext(ctx, r.logger)

	if r.recorder != nil {
		if err := r.recorder.BeginRun(ctx, report.RunID, plan.Subject, plan.OutputDir); err != nil {
			return report, services.Wrap(services.ErrFilesystem, "planning", "record run", "history unavailable", err)
		}
	}

	logger.Info("run started",
		logging.String("output_dir", plan.OutputDir),
		logging.Int("sessions", len(plan.Sessions)),
		logging.Bool("continue_on_error", plan.ContinueOnError),
	)

	var failures []error
	stopped := false
	for _, sp := range plan.Sessions {
		if stopped || ctx.Err() != nil {
			sr := SessionReport{ID: sp.ID, SourceDir: sp.SourceDir, Status: history.SessionSkipped}
			report.Sessions = append(report.Sessions, sr)
			r.recordSession(ctx, report.RunID, sr)
			continue
		}
		sr := r.runSession(ctx, plan, sp)
		report.Sessions = append(report.Sessions, sr)
		r.recordSession(ctx, report.RunID, sr)
		if sr.Err != nil {
			failures = append(failures, fmt.Errorf("session %s: %w", sp.ID, sr.Err))
			decision := "continue"
			if !plan.ContinueOnError {
				stopped = true
				decision = "stop"
			}
			logger.Info("session failure handled",
				logging.Args(logging.DecisionAttrs("session_failure", decision, "workflow.continue_on_error")...)...)
		}
	}
	if err := ctx.Err(); err != nil && len(failures) == 0 {
		failures = append(failures, err)
	}

	report.FinishedAt = r.now()
	runErr := errors.Join(failures...)
	status := history.RunSucceeded
	if runErr != nil {
		status = history.RunFailed
	}
	if r.recorder != nil {
		msg := ""
		if runErr != nil {
			msg = fmt.Sprintf("%d of %d sessions failed", len(failures), len(plan.Sessions))
		}
		if err := r.recorder.FinishRun(context.WithoutCancel(ctx), report.RunID, status, msg); err != nil {
			logging.WarnWithContext(logger, "failed to record run completion", "history_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "run history shows this run as still running"),
			)
		}
	}

	logger.Info("run finished",
		logging.String("status", string(status)),
		logging.Int("succeeded", report.Count(history.SessionSucceeded)),
		logging.Int("failed", report.Count(history.SessionFailed)),
		logging.Int("skipped", report.Count(history.SessionSkipped)),
		logging.Duration("duration", report.Duration()),
	)
	return report, runErr
}

func (r *Runner) runSession(ctx context.Context, plan Plan, sp SessionPlan) SessionReport {
	ctx = services.WithSession(ctx, sp.ID)
	logger := logging.WithContext(ctx, r.logger)
	sr := SessionReport{
		ID:         sp.ID,
		SourceDir:  sp.SourceDir,
		SessionDir: classifier.SessionDir(plan.OutputDir, plan.Subject, sp.ID),
		StartedAt:  r.now(),
	}
	logger.Info("session started", logging.String("source_dir", sp.SourceDir))

	if !plan.SkipConversion {
		result, err := r.converter.Convert(ctx, dcm2niix.Request{
			SourceDir: sp.SourceDir,
			OutputDir: plan.OutputDir,
			Subject:   plan.Subject,
			Session:   sp.ID,
		})
		sr.Conversion = result
		if err != nil {
			return r.failSession(logger, sr, err)
		}
	}

	orgReport, err := r.organizer.Organize(ctx, plan.OutputDir, plan.Subject, sp.ID)
	sr.Organization = orgReport
	if err != nil {
		return r.failSession(logger, sr, err)
	}

	sr.Status = history.SessionSucceeded
	sr.FinishedAt = r.now()
	logger.Info("session completed",
		logging.Int("placed", orgReport.Processed()),
		logging.Duration("duration", sr.FinishedAt.Sub(sr.StartedAt)),
	)
	return sr
}

func (r *Runner) failSession(logger *slog.Logger, sr SessionReport, err error) SessionReport {
	sr.Status = history.SessionFailed
	sr.Err = err
	sr.FinishedAt = r.now()
	logging.ErrorWithContext(logger, "session failed", "session_failed",
		logging.String("failure_kind", services.FailureKind(err)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, failureHint(err)),
	)
	return sr
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrPrecondition):
		return "the session directory may already be organized; inspect it before re-running"
	case errors.Is(err, services.ErrExternalTool):
		return "check the dcm2niix output and the DICOM source directory"
	case errors.Is(err, services.ErrClassification):
		return "rename the offending file or adjust classifier.acceleration_markers"
	default:
		return "check logs for details"
	}
}

func (r *Runner) recordSession(ctx context.Context, runID string, sr SessionReport) {
	if r.recorder == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	logger := logging.WithContext(services.WithSession(ctx, sr.ID), r.logger)

	rec := history.Session{
		RunID:       runID,
		SessionID:   sr.ID,
		SourceDir:   sr.SourceDir,
		SessionDir:  sr.SessionDir,
		Status:      sr.Status,
		FailureKind: services.FailureKind(sr.Err),
		Series:      sr.Conversion.Series,
		DICOMs:      sr.Conversion.DICOMs,
		Files:       len(sr.Conversion.Files),
		StartedAt:   sr.StartedAt,
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = r.now()
	}
	if sr.Err != nil {
		rec.ErrorMessage = sr.Err.Error()
	}
	if !sr.FinishedAt.IsZero() {
		finished := sr.FinishedAt
		rec.FinishedAt = &finished
	}
	if err := r.recorder.RecordSession(ctx, rec); err != nil {
		logging.WarnWithContext(logger, "failed to record session outcome", "history_write_failed", logging.Error(err))
	}

	placedAt := sr.FinishedAt
	if placedAt.IsZero() {
		placedAt = r.now()
	}
	var placements []history.Placement
	for _, p := range sr.Organization.Placements {
		if !p.Done {
			continue
		}
		placements = append(placements, history.Placement{
			RunID:       runID,
			SessionID:   sr.ID,
			Original:    p.Original,
			Category:    string(p.Category),
			Destination: p.Destination,
			Renamed:     p.Renamed,
			CreatedAt:   placedAt,
		})
	}
	if err := r.recorder.RecordPlacements(ctx, placements); err != nil {
		logging.WarnWithContext(logger, "failed to record placements", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "placements for this session are missing from run history"),
		)
	}
}

// lockSubject takes the per-subject flock and returns its release function.
func (r *Runner) lockSubject(label string) (func(), error) {
	if r.lockDir == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(r.lockDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrFilesystem, "planning", "lock subject", r.lockDir, err)
	}
	lockPath := filepath.Join(r.lockDir, label+".lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrFilesystem, "planning", "lock subject", lockPath, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrPrecondition, "planning", "lock subject", fmt.Sprintf("%s (%s)", label, lockPath), ErrSubjectLocked)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release subject lock", logging.String("lock", lockPath), logging.Error(err))
		}
	}, nil
}
