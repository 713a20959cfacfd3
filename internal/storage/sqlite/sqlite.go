package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/michaelbrown/gradebox/internal/storage"

	_ "modernc.org/sqlite"
)

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const submissionColumns = `id, kind, exercise_id, digest, code, outcome, state, score,
	passed_count, total_tests, output, results, created_at`

// SQLiteStore implements storage.Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *storage.Submission) error {
	if sub.ID == "" {
		return errors.New("submission id is required")
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Kind, sub.ExerciseID, sub.Digest, sub.Code, sub.Outcome, sub.State,
		sub.Score, sub.PassedCount, sub.TotalTests, sub.Output, string(sub.Results),
		sub.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting submission: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*storage.Submission, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", storage.ErrNotFound)
	}

	// Try exact match first, then prefix match
	sub, err := scanSubmission(s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id))
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying submission: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id LIKE ? || '%' ESCAPE '\' LIMIT 2`,
		escapeLike(id))
	if err != nil {
		return nil, fmt.Errorf("querying submission: %w", err)
	}
	defer rows.Close()

	var matches []*storage.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: prefix %q matches several submissions", storage.ErrAmbiguousID, id)
	}
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, opts storage.ListOptions) ([]storage.Submission, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + submissionColumns + ` FROM submissions`
	var where []string
	var args []any

	if opts.Kind != "" {
		where = append(where, `kind = ?`)
		args = append(args, string(opts.Kind))
	}
	if opts.ExerciseID != "" {
		where = append(where, `exercise_id = ?`)
		args = append(args, opts.ExerciseID)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}

	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	var subs []storage.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (s *SQLiteStore) DeleteSubmission(ctx context.Context, id string) error {
	// Resolve prefix first
	sub, err := s.GetSubmission(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, sub.ID)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Scanner interface to work with both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(s scanner) (*storage.Submission, error) {
	var sub storage.Submission
	var results, createdAt string
	err := s.Scan(&sub.ID, &sub.Kind, &sub.ExerciseID, &sub.Digest, &sub.Code,
		&sub.Outcome, &sub.State, &sub.Score, &sub.PassedCount, &sub.TotalTests,
		&sub.Output, &results, &createdAt)
	if err != nil {
		return nil, err
	}
	if results != "" {
		sub.Results = []byte(results)
	}
	sub.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &sub, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
