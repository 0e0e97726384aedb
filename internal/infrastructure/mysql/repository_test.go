package mysql

import (
	"context"
	"regexp"
	"testing"
	"time"

	"aagateway/internal/application"
	"aagateway/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &Repository{db: db}, mock
}

func TestRecordSubmissionLowercasesAddresses(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.UnixMilli(1_700_000_000_000)

	mock.ExpectExec("INSERT INTO submissions").
		WithArgs(
			"id-1", "set_points", uint64(84532),
			"0xabcdef0000000000000000000000000000000001",
			"0x438b8336b6c4104d653f783714197d9c14fe17fd",
			"0x3333333333333333333333333333333333333333",
			"", "", "pending", "", "",
			created.UnixMilli(), created.UnixMilli(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.RecordSubmission(context.Background(), domain.Submission{
		ID:        "id-1",
		Operation: domain.OperationSetPoints,
		ChainID:   84532,
		Sender:    "0xABCDEF0000000000000000000000000000000001",
		Target:    "0x438b8336B6C4104d653F783714197d9C14fe17FD",
		Subject:   "0x3333333333333333333333333333333333333333",
		Status:    domain.SubmissionPending,
		CreatedAt: created,
		UpdatedAt: created,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCompleteSubmission(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("UPDATE submissions").
		WithArgs("failed", "0xop", "", "upstream", "boom", sqlmock.AnyArg(), "id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE submissions").
		WithArgs("confirmed", "", "", "", "", sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CompleteSubmission(context.Background(), "id-1", domain.SubmissionOutcome{
		Status:       domain.SubmissionFailed,
		UserOpHash:   "0xop",
		ErrorKind:    domain.KindUpstream,
		ErrorMessage: "boom",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := repo.CompleteSubmission(context.Background(), "missing", domain.SubmissionOutcome{Status: domain.SubmissionConfirmed}); err == nil {
		t.Fatal("expected error for unknown submission")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQuerySubmissionsFilters(t *testing.T) {
	repo, mock := newMockRepository(t)

	rows := sqlmock.NewRows([]string{
		"id", "operation", "chain_id", "sender", "target", "subject", "user_op_hash", "tx_hash",
		"status", "error_kind", "error_message", "created_at", "updated_at",
	}).AddRow("id-1", "create_token", uint64(80002), "0xa", "0xb", "0xc", "0xop", "0xtx", "confirmed", "", "", int64(1000), int64(2000))

	mock.ExpectQuery(regexp.QuoteMeta("FROM submissions WHERE operation = ? AND sender = ? ORDER BY created_at DESC LIMIT ?")).
		WithArgs("create_token", "0xabc", 100).
		WillReturnRows(rows)

	submissions, err := repo.QuerySubmissions(context.Background(), application.SubmissionQueryFilter{
		Operation: domain.OperationCreateToken,
		Sender:    "0xABC",
		Limit:     0,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(submissions) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(submissions))
	}
	got := submissions[0]
	if got.Status != domain.SubmissionConfirmed || got.ChainID != 80002 || got.TxHash != "0xtx" {
		t.Fatalf("unexpected submission: %+v", got)
	}
	if got.UpdatedAt.UnixMilli() != 2000 {
		t.Fatalf("updated_at = %s", got.UpdatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
