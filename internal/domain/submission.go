package domain

import "time"

type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionConfirmed SubmissionStatus = "confirmed"
	SubmissionFailed    SubmissionStatus = "failed"
)

// Operation names a gateway write.
type Operation string

const (
	OperationSetPoints   Operation = "set_points"
	OperationCreateToken Operation = "create_token"
	OperationSellTokens  Operation = "sell_tokens"
	OperationBuyTokens   Operation = "buy_tokens"
)

// Submission is one journaled user operation sent by the gateway.
type Submission struct {
	ID           string           `json:"id"`
	Operation    Operation        `json:"operation"`
	ChainID      uint64           `json:"chain_id"`
	Sender       string           `json:"sender"`
	Target       string           `json:"target"`
	Subject      string           `json:"subject"`
	UserOpHash   string           `json:"user_op_hash,omitempty"`
	TxHash       string           `json:"tx_hash,omitempty"`
	Status       SubmissionStatus `json:"status"`
	ErrorKind    ErrorKind        `json:"error_kind,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// SubmissionOutcome is the final state written back to the journal.
type SubmissionOutcome struct {
	Status       SubmissionStatus
	UserOpHash   string
	TxHash       string
	ErrorKind    ErrorKind
	ErrorMessage string
}

// StoredResponse is a completed HTTP response kept for an idempotency key.
// Pending marks a key whose first request is still running.
type StoredResponse struct {
	Pending bool   `json:"pending,omitempty"`
	Status  int    `json:"status,omitempty"`
	Body    []byte `json:"body,omitempty"`
}
