// Package history journals diagnostic runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"proxyconsole/pkg/models"

	_ "modernc.org/sqlite"
)

// Store manages the diagnostics journal.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (or creates) the journal at dbPath.
func NewStore(dbPath string) (*Store, error) {
	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDatabaseError, err)
	}

	// A single connection keeps the pragmas below in effect for every query.
	database.SetMaxOpenConns(1)

	ctx := context.Background()

	if _, err := database.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to enable foreign keys: %w", ErrDatabaseError, err)
	}

	if _, err := database.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL mode: %w", ErrDatabaseError, err)
	}

	store := &Store{db: database}
	if err := store.Initialize(); err != nil {
		_ = database.Close()
		return nil, err
	}

	return store, nil
}

// Initialize creates the database schema.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(context.Background(), Schema); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %w", ErrDatabaseError, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores a run and its results in one transaction.
func (s *Store) SaveRun(ctx context.Context, run models.DiagnosticRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, base_url, started_at, finished_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.BaseURL, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrRunExists
		}
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	for i, result := range run.Results {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO results (run_id, position, endpoint, url, request_data, response_data, status_code, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i,
			nullString(result.Endpoint), nullString(result.URL),
			nullString(result.RequestData), nullString(result.ResponseData),
			nullInt(result.StatusCode), nullString(result.Error),
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return nil
}

// GetRun returns a run with its results.
func (s *Store) GetRun(ctx context.Context, id string) (*models.DiagnosticRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run := &models.DiagnosticRun{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, base_url, started_at, finished_at FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.BaseURL, &run.StartedAt, &run.FinishedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	results, err := s.loadResults(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.Results = results

	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.DiagnosticRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	runs, err := s.listRunRows(ctx, limit)
	if err != nil {
		return nil, err
	}

	for i := range runs {
		results, err := s.loadResults(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Results = results
	}

	return runs, nil
}

// Prune keeps the newest keep runs and deletes the rest.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE seq NOT IN (SELECT seq FROM runs ORDER BY seq DESC LIMIT ?)`, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return deleted, nil
}

func (s *Store) listRunRows(ctx context.Context, limit int) ([]models.DiagnosticRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, base_url, started_at, finished_at FROM runs ORDER BY seq DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer rows.Close()

	runs := []models.DiagnosticRun{}
	for rows.Next() {
		var run models.DiagnosticRun
		if err := rows.Scan(&run.ID, &run.BaseURL, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return runs, nil
}

func (s *Store) loadResults(ctx context.Context, runID string) ([]models.TestResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT endpoint, url, request_data, response_data, status_code, error
		 FROM results WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer rows.Close()

	results := []models.TestResult{}
	for rows.Next() {
		var (
			endpoint, url, requestData, responseData, errText sql.NullString
			statusCode                                        sql.NullInt64
		)
		if err := rows.Scan(&endpoint, &url, &requestData, &responseData, &statusCode, &errText); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}

		results = append(results, models.TestResult{
			Endpoint:     stringPtr(endpoint),
			URL:          stringPtr(url),
			RequestData:  stringPtr(requestData),
			ResponseData: stringPtr(responseData),
			StatusCode:   intPtr(statusCode),
			Error:        stringPtr(errText),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return results, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
