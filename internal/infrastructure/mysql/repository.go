package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"aagateway/internal/application"
	"aagateway/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Repository is the MySQL submission journal.
type Repository struct {
	db *sql.DB
}

func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS submissions (
			id VARCHAR(36) NOT NULL,
			operation VARCHAR(32) NOT NULL,
			chain_id BIGINT UNSIGNED NOT NULL,
			sender VARCHAR(42) NOT NULL,
			target VARCHAR(42) NOT NULL,
			subject VARCHAR(42) NOT NULL,
			user_op_hash VARCHAR(66) NOT NULL DEFAULT '',
			tx_hash VARCHAR(66) NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL,
			error_kind VARCHAR(32) NOT NULL DEFAULT '',
			error_message TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (id),
			KEY submissions_created_idx (created_at),
			KEY submissions_sender_idx (sender),
			KEY submissions_subject_idx (subject)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return ensureColumn(db, "submissions", "user_op_hash", "VARCHAR(66) NOT NULL DEFAULT ''")
}

func ensureColumn(db *sql.DB, table, column, definition string) error {
	var count int
	row := db.QueryRow(
		`SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`,
		table,
		column,
	)
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	_, err := db.Exec(stmt)
	return err
}

func (r *Repository) RecordSubmission(ctx context.Context, submission domain.Submission) error {
	ctx, span := startDBSpan(ctx, "mysql.RecordSubmission",
		attribute.String("submission.id", submission.ID),
		attribute.String("submission.operation", string(submission.Operation)),
	)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO submissions
		(id, operation, chain_id, sender, target, subject, user_op_hash, tx_hash, status, error_kind, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Repository) CompleteSubmission(ctx context.Context, id string, outcome domain.SubmissionOutcome) error {
	ctx, span := startDBSpan(ctx, "mysql.CompleteSubmission",
		attribute.String("submission.id", id),
		attribute.String("submission.status", string(outcome.Status)),
	)
	defer span.End()
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
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("submission %s not found", id)
	}
	return nil
}

func (r *Repository) QuerySubmissions(ctx context.Context, filter application.SubmissionQueryFilter) ([]domain.Submission, error) {
	ctx, span := startDBSpan(ctx, "mysql.QuerySubmissions")
	defer span.End()
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
	query += " ORDER BY created_at DESC LIMIT ?"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
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

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "mysql"))
	return otel.Tracer("aagateway/mysql").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}
