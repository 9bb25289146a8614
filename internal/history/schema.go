package history

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// layoutVersion is stored in the database header as PRAGMA user_version.
const layoutVersion = 1

// ErrSchemaMismatch reports a database written with a different table layout.
var ErrSchemaMismatch = errors.New("history layout mismatch")

// initSchema creates the tables in an empty database and otherwise checks
// that the stored layout is the one this build reads and writes.
func (s *Store) initSchema(ctx context.Context) error {
	var stored int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&stored); err != nil {
		return fmt.Errorf("read history layout version: %w", err)
	}

	switch {
	case stored == layoutVersion:
		return nil
	case stored > layoutVersion:
		return fmt.Errorf("%w: %s was written by a newer bidsify (layout %d, this build reads %d)",
			ErrSchemaMismatch, s.path, stored, layoutVersion)
	case stored > 0:
		return fmt.Errorf("%w: %s uses layout %d; move it aside to start a new history",
			ErrSchemaMismatch, s.path, stored)
	}

	var tables int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table'",
	).Scan(&tables); err != nil {
		return fmt.Errorf("inspect history tables: %w", err)
	}
	if tables > 0 {
		return fmt.Errorf("%w: %s already holds tables that bidsify did not create",
			ErrSchemaMismatch, s.path)
	}
	return s.createTables(ctx)
}

// createTables applies the embedded DDL and stamps the layout version in
// one transaction.
func (s *Store) createTables(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history setup: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create history tables: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", layoutVersion)); err != nil {
		return fmt.Errorf("stamp history layout version: %w", err)
	}
	return tx.Commit()
}
