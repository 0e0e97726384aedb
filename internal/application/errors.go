package application

import (
	"context"
	"errors"

	"aagateway/internal/domain"
)

// detailedError is implemented by upstream errors that carry a payload
// beyond their message, such as JSON-RPC error data.
type detailedError interface {
	error
	Details() string
}

// classify maps any failure into a *domain.Error. Errors that already carry
// a kind are returned unchanged.
func classify(err error) *domain.Error {
	if err == nil {
		return nil
	}
	var gwErr *domain.Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	kind := domain.KindUpstream
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrUserOperationTimeout) {
		kind = domain.KindUpstreamTimeout
	}
	classified := &domain.Error{Kind: kind, Err: err}
	if details := errorDetails(err); details != "" {
		classified.Details = details
	}
	return classified
}

// errorDetails prefers an RPC error payload, then the innermost cause when
// its text differs from the top-level message.
func errorDetails(err error) string {
	var detailed detailedError
	if errors.As(err, &detailed) {
		if details := detailed.Details(); details != "" {
			return details
		}
	}
	cause := err
	for {
		next := errors.Unwrap(cause)
		if next == nil {
			break
		}
		cause = next
	}
	if cause != err && cause.Error() != err.Error() {
		return cause.Error()
	}
	return ""
}
