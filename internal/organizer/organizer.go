package organizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"bidsify/internal/classifier"
	"bidsify/internal/logging"
	"bidsify/internal/services"
)

const stageName = "organizing"

// Placement records where one converted file goes.
type Placement struct {
	Original string
	Category classifier.Category
	Rule     string
	Task     string
	// Destination is relative to the session directory, e.g. "anat/sub-007_ses-2_acq-mprage_T1w.nii.gz".
	Destination string
	Renamed     bool
	Done        bool
}

// Report summarizes one Organize call. On failure it still lists every
// planned placement; Done marks the ones that completed.
type Report struct {
	SessionDir string
	Subject    string
	Session    string
	Placements []Placement
}

// Counts returns completed placements per category.
func (r Report) Counts() map[classifier.Category]int {
	counts := make(map[classifier.Category]int, len(classifier.Categories))
	for _, p := range r.Placements {
		if p.Done {
			counts[p.Category]++
		}
	}
	return counts
}

// Processed returns the number of completed placements.
func (r Report) Processed() int {
	n := 0
	for _, p := range r.Placements {
		if p.Done {
			n++
		}
	}
	return n
}

// Organizer classifies and relocates the files of a session directory.
type Organizer struct {
	fs         Filesystem
	classifier *classifier.Classifier
	logger     *slog.Logger
}

// Option configures an Organizer.
type Option func(*Organizer)

// WithFilesystem overrides the filesystem used for listing and moving files.
func WithFilesystem(fsys Filesystem) Option {
	return func(o *Organizer) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// New constructs an organizer. A nil classifier uses the default rules.
func New(c *classifier.Classifier, logger *slog.Logger, opts ...Option) *Organizer {
	if c == nil {
		c = classifier.New()
	}
	o := &Organizer{
		fs:         OSFilesystem{},
		classifier: c,
		logger:     logging.NewComponentLogger(logger, "organizer"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Plan snapshots and classifies the session directory without mutating it.
func (o *Organizer) Plan(ctx context.Context, outputDir, subjectID, sessionID string) (Report, error) {
	subjectLabel := classifier.SubjectLabel(subjectID)
	sessionID = strings.TrimSpace(sessionID)
	report := Report{
		SessionDir: classifier.SessionDir(outputDir, subjectID, sessionID),
		Subject:    subjectLabel,
		Session:    sessionID,
	}
	if strings.TrimSpace(subjectID) == "" || sessionID == "" {
		return report, services.Wrap(services.ErrPrecondition, stageName, "plan", "subject and session identifiers are required", nil)
	}

	info, err := o.fs.Stat(report.SessionDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return report, services.Wrap(services.ErrPrecondition, stageName, "snapshot", fmt.Sprintf("session directory %s does not exist", report.SessionDir), err)
		}
		return report, services.Wrap(services.ErrFilesystem, stageName, "snapshot", fmt.Sprintf("stat %s", report.SessionDir), err)
	}
	if !info.IsDir() {
		return report, services.Wrap(services.ErrPrecondition, stageName, "snapshot", fmt.Sprintf("%s is not a directory", report.SessionDir), nil)
	}

	names, err := o.fs.ListFiles(report.SessionDir)
	if err != nil {
		return report, services.Wrap(services.ErrFilesystem, stageName, "snapshot", fmt.Sprintf("list %s", report.SessionDir), err)
	}
	sort.Strings(names)

	logger := logging.WithContext(ctx, o.logger)
	claimed := make(map[string]string, len(names))
	placements := make([]Placement, 0, len(names))
	for _, name := range names {
		if isCategoryDir(name) {
			return report, services.Wrap(
				services.ErrPrecondition,
				stageName,
				"plan",
				fmt.Sprintf("file %s occupies the %s subdirectory name; rename or remove it", name, name),
				nil,
			)
		}
		result, err := o.classifier.Classify(name)
		if err != nil {
			return report, services.Wrap(services.ErrClassification, stageName, "classify", fmt.Sprintf("file %s", name), err)
		}
		dest := filepath.Join(result.Category.Dir(), result.Filename(subjectLabel, sessionID))
		if prev, ok := claimed[dest]; ok {
			return report, services.Wrap(
				services.ErrClassification,
				stageName,
				"plan",
				fmt.Sprintf("files %s and %s both map to %s", prev, name, dest),
				nil,
			)
		}
		claimed[dest] = name
		placements = append(placements, Placement{
			Original:    name,
			Category:    result.Category,
			Rule:        result.Rule,
			Task:        result.Task,
			Destination: dest,
			Renamed:     result.Renamed(),
		})
		logger.Debug("file classified",
			logging.String("file", name),
			logging.String("category", string(result.Category)),
			logging.String("destination", dest),
		)
	}
	report.Placements = placements
	return report, nil
}

// Organize plans the session, creates the category subdirectories and moves
// every file into place. Any subdirectory already present is a precondition
// failure and nothing is moved.
func (o *Organizer) Organize(ctx context.Context, outputDir, subjectID, sessionID string) (Report, error) {
	ctx = services.WithStage(ctx, stageName)
	report, err := o.Plan(ctx, outputDir, subjectID, sessionID)
	if err != nil {
		return report, err
	}
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("organizing session",
		logging.String("session_dir", report.SessionDir),
		logging.Int("files", len(report.Placements)),
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	for _, dir := range classifier.Dirs() {
		path := filepath.Join(report.SessionDir, dir)
		if err := o.fs.MakeDir(path); err != nil {
			if info, statErr := o.fs.Stat(path); statErr == nil && !info.IsDir() {
				return report, services.Wrap(
					services.ErrPrecondition,
					stageName,
					"create subdirectories",
					fmt.Sprintf("%s exists and is not a directory", path),
					err,
				)
			}
			if errors.Is(err, fs.ErrExist) {
				return report, services.Wrap(
					services.ErrPrecondition,
					stageName,
					"create subdirectories",
					fmt.Sprintf("%s already exists; session appears to be organized already", path),
					err,
				)
			}
			return report, services.Wrap(services.ErrFilesystem, stageName, "create subdirectories", path, err)
		}
	}

	for i := range report.Placements {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		p := &report.Placements[i]
		if err := o.place(report.SessionDir, *p); err != nil {
			logging.ErrorWithContext(logger, "file placement failed", "placement_failed",
				logging.String("file", p.Original),
				logging.String("destination", p.Destination),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "files moved before this one remain in place"),
			)
			return report, services.Wrap(services.ErrFilesystem, stageName, "place file", fmt.Sprintf("file %s", p.Original), err)
		}
		p.Done = true
		logger.Info(fmt.Sprintf("file is %s", p.Category),
			logging.String("file", p.Original),
			logging.String("destination", p.Destination),
		)
	}

	if err := o.Verify(report); err != nil {
		return report, err
	}

	counts := report.Counts()
	logger.Info("session organized",
		logging.Int("dwi", counts[classifier.CategoryDiffusion]),
		logging.Int("anat", counts[classifier.CategoryAnatomical]),
		logging.Int("func", counts[classifier.CategoryFunctional]),
		logging.Int("misc", counts[classifier.CategoryMisc]),
	)
	return report, nil
}

// place moves the file into its category directory and then renames it.
func (o *Organizer) place(sessionDir string, p Placement) error {
	src := filepath.Join(sessionDir, p.Original)
	dir := filepath.Join(sessionDir, filepath.Dir(p.Destination))
	moved, err := o.fs.Move(src, dir)
	if err != nil {
		return fmt.Errorf("move into %s: %w", filepath.Dir(p.Destination), err)
	}
	if !p.Renamed {
		return nil
	}
	if err := o.fs.Rename(moved, filepath.Join(sessionDir, p.Destination)); err != nil {
		return fmt.Errorf("rename to %s: %w", filepath.Base(p.Destination), err)
	}
	return nil
}

func isCategoryDir(name string) bool {
	for _, dir := range classifier.Dirs() {
		if name == dir {
			return true
		}
	}
	return false
}
