package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// BeginRun inserts a running run.
func (s *Store) BeginRun(ctx context.Context, id, subject, outputDir string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("run id required")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, subject, output_dir, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, subject, outputDir, RunRunning, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the final status of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, errorMessage string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		status, nullableString(errorMessage), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// RecordSession inserts or replaces the outcome of a session.
func (s *Store) RecordSession(ctx context.Context, rec Session) error {
	if strings.TrimSpace(rec.RunID) == "" || strings.TrimSpace(rec.SessionID) == "" {
		return errors.New("run id and session id required")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT OR REPLACE INTO sessions (
            run_id, session_id, source_dir, session_dir, status, failure_kind, error_message,
            series, dicoms, files, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.SessionID,
		nullableString(rec.SourceDir),
		nullableString(rec.SessionDir),
		rec.Status,
		nullableString(rec.FailureKind),
		nullableString(rec.ErrorMessage),
		rec.Series,
		rec.DICOMs,
		rec.Files,
		formatTime(rec.StartedAt),
		nullableTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record session %s: %w", rec.SessionID, err)
	}
	return nil
}

// RecordPlacements stores placements in a single transaction.
func (s *Store) RecordPlacements(ctx context.Context, placements []Placement) error {
	if len(placements) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin placements tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO placements (run_id, session_id, original, category, destination, renamed, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare placement insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range placements {
			if _, err := stmt.ExecContext(ctx,
				p.RunID, p.SessionID, p.Original, p.Category, p.Destination, boolToInt(p.Renamed), formatTime(p.CreatedAt),
			); err != nil {
				return fmt.Errorf("insert placement %s: %w", p.Original, err)
			}
		}
		return tx.Commit()
	})
}

const runColumns = `r.id, r.subject, r.output_dir, r.status, r.error_message, r.started_at, r.finished_at,
    (SELECT COUNT(1) FROM sessions s WHERE s.run_id = r.id),
    (SELECT COUNT(1) FROM sessions s WHERE s.run_id = r.id AND s.status = 'failed')`

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run        Run
		status     string
		errMsg     sql.NullString
		startedRaw string
		finished   sql.NullString
	)
	if err := scanner.Scan(
		&run.ID, &run.Subject, &run.OutputDir, &status, &errMsg, &startedRaw, &finished,
		&run.SessionCount, &run.FailedCount,
	); err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	run.ErrorMessage = errMsg.String
	if t, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = t
	}
	run.FinishedAt = parseNullTime(finished)
	return run, nil
}

// ListRuns returns the most recent runs first. A subject filter of "" matches
// every subject; limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, subject string, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + runColumns + ` FROM runs r`
	var args []any
	if subject = strings.TrimSpace(subject); subject != "" {
		query += ` WHERE r.subject = ?`
		args = append(args, subject)
	}
	query += ` ORDER BY r.started_at DESC, r.id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns a run by id. An id prefix is accepted when it is unambiguous.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return Run{}, fmt.Errorf("%w: empty id", ErrRunNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r WHERE r.id = ? OR r.id LIKE ? ORDER BY r.id = ? DESC LIMIT 2`,
		id, stripLikeWildcards(id)+"%", id,
	)
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return Run{}, fmt.Errorf("scan run: %w", err)
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	switch {
	case len(matches) == 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case matches[0].ID == id || len(matches) == 1:
		return matches[0], nil
	default:
		return Run{}, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// Sessions returns the sessions recorded for a run in start order.
func (s *Store) Sessions(ctx context.Context, runID string) ([]Session, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, session_id, source_dir, session_dir, status, failure_kind, error_message,
            series, dicoms, files, started_at, finished_at
         FROM sessions WHERE run_id = ? ORDER BY started_at, session_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

// LatestSession returns the most recent record of a subject's session, or
// nil when the session has never run.
func (s *Store) LatestSession(ctx context.Context, subject, sessionID string) (*Session, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT s.run_id, s.session_id, s.source_dir, s.session_dir, s.status, s.failure_kind, s.error_message,
            s.series, s.dicoms, s.files, s.started_at, s.finished_at
         FROM sessions s JOIN runs r ON r.id = s.run_id
         WHERE r.subject = ? AND s.session_id = ? AND s.status != 'skipped'
         ORDER BY s.started_at DESC LIMIT 1`, subject, sessionID)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (Session, error) {
	var (
		rec        Session
		sourceDir  sql.NullString
		sessionDir sql.NullString
		status     string
		kind       sql.NullString
		errMsg     sql.NullString
		startedRaw string
		finished   sql.NullString
	)
	if err := scanner.Scan(
		&rec.RunID, &rec.SessionID, &sourceDir, &sessionDir, &status, &kind, &errMsg,
		&rec.Series, &rec.DICOMs, &rec.Files, &startedRaw, &finished,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	rec.SourceDir = sourceDir.String
	rec.SessionDir = sessionDir.String
	rec.Status = SessionStatus(status)
	rec.FailureKind = kind.String
	rec.ErrorMessage = errMsg.String
	if t, err := parseTimeString(startedRaw); err == nil {
		rec.StartedAt = t
	}
	rec.FinishedAt = parseNullTime(finished)
	return rec, nil
}

// Placements returns the placements recorded for a run in insertion order.
func (s *Store) Placements(ctx context.Context, runID string) ([]Placement, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, session_id, original, category, destination, renamed, created_at
         FROM placements WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list placements: %w", err)
	}
	defer rows.Close()

	var placements []Placement
	for rows.Next() {
		var (
			p          Placement
			renamed    int
			createdRaw string
		)
		if err := rows.Scan(&p.RunID, &p.SessionID, &p.Original, &p.Category, &p.Destination, &renamed, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan placement: %w", err)
		}
		p.Renamed = renamed != 0
		if t, err := parseTimeString(createdRaw); err == nil {
			p.CreatedAt = t
		}
		placements = append(placements, p)
	}
	return placements, rows.Err()
}

func stripLikeWildcards(value string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(value)
}
