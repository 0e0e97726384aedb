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

	"aagateway/internal/application"
	"aagateway/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository is the SQLite submission journal.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer avoids SQLITE_BUSY between concurrent requests.
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			chain_id INTEGER NOT NULL,
			sender TEXT NOT NULL,
			target TEXT NOT NULL,
			subject TEXT NOT NULL,
			user_op_hash TEXT NOT NULL DEFAULT '',
			tx_hash TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS submissions_created_idx ON submissions (created_at)`,
		`CREATE INDEX IF NOT EXISTS submissions_sender_idx ON submissions (sender)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) RecordSubmission(ctx context.Context, submission domain.Submission) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO submissions
		(id, operation, chain_id, sender, target, subject, user_op_hash, tx_hash, status, error_kind, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		submission.ID,
		string(submission.Operation),
		submission.ChainID,
		strings.ToLower(submission.Sender),
		strings.ToLower(submission.Target),
		strings.ToLower(submission.Subject),
		submission.UserOpHash,
		submission.TxHash,
		string(submission.Status),
		string(submission.ErrorKind),
		submission.ErrorMessage,
		submission.CreatedAt.UnixMilli(),
		submission.UpdatedAt.UnixMilli(),
	)
	return err
}

func (r *Repository) CompleteSubmission(ctx context.Context, id string, outcome domain.SubmissionOutcome) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `UPDATE submissions
		SET status = ?, user_op_hash = ?, tx_hash = ?, error_kind = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		string(outcome.Status),
		outcome.UserOpHash,
		outcome.TxHash,
		string(outcome.ErrorKind),
		outcome.ErrorMessage,
		time.Now().UnixMilli(),
		id,
	)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("submission %s not found", id)
	}
	return nil
}

func (r *Repository) QuerySubmissions(ctx context.Context, filter application.SubmissionQueryFilter) ([]domain.Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	clauses := make([]string, 0, 4)
	args := make([]any, 0, 5)

	if filter.Operation != "" {
		clauses = append(clauses, "operation = ?")
		args = append(args, string(filter.Operation))
	}
	if filter.Sender != "" {
		clauses = append(clauses, "sender = ?")
		args = append(args, strings.ToLower(filter.Sender))
	}
	if filter.Subject != "" {
		clauses = append(clauses, "subject = ?")
		args = append(args, strings.ToLower(filter.Subject))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT id, operation, chain_id, sender, target, subject, user_op_hash, tx_hash, status, error_kind, error_message, created_at, updated_at FROM submissions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var submissions []domain.Submission
	for rows.Next() {
		var (
			submission domain.Submission
			createdAt  int64
			updatedAt  int64
		)
		if err := rows.Scan(
			&submission.ID,
			&submission.Operation,
			&submission.ChainID,
			&submission.Sender,
			&submission.Target,
			&submission.Subject,
			&submission.UserOpHash,
			&submission.TxHash,
			&submission.Status,
			&submission.ErrorKind,
			&submission.ErrorMessage,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, err
		}
		submission.CreatedAt = time.UnixMilli(createdAt).UTC()
		submission.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
