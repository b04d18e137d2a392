package wizard

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"txwizard/domain/fee"
	"txwizard/domain/money"
)

// Gateway accepts a frozen draft and resolves to a receipt or an error.
// The machine calls it at most once per submission attempt.
type Gateway interface {
	Submit(ctx context.Context, draft FrozenDraft) (Receipt, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, draft FrozenDraft) (Receipt, error)

func (f GatewayFunc) Submit(ctx context.Context, draft FrozenDraft) (Receipt, error) {
	return f(ctx, draft)
}

// FeeResolver is the read-only fee configuration the machine consumes.
type FeeResolver interface {
	Resolve(instrumentID, tier string) (fee.Quote, error)
	Instrument(instrumentID string) (unit string, p money.Precision, err error)
}

// RateFunc returns target units per source unit for an instrument.
type RateFunc func(instrumentID string) (decimal.Decimal, error)

// SubmissionError is how a gateway reports a classified failure.
type SubmissionError struct {
	Kind   FailureKind
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submission %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("submission %s: %s", e.Kind, e.Reason)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Transient marks a failure (timeout, connectivity) the user may retry.
func Transient(reason string, err error) *SubmissionError {
	return &SubmissionError{Kind: FailureTransient, Reason: reason, Err: err}
}

// Rejected marks a policy or business decline.
func Rejected(reason string, err error) *SubmissionError {
	return &SubmissionError{Kind: FailureRejected, Reason: reason, Err: err}
}

// classify turns a gateway error into a Failure. Unclassified errors are
// transient: the retry reuses the idempotency key.
func classify(err error, attempt int) Failure {
	var se *SubmissionError
	switch {
	case errors.As(err, &se):
		return Failure{Kind: se.Kind, Reason: se.Reason, Retryable: se.Kind == FailureTransient, Attempt: attempt}
	case errors.Is(err, context.DeadlineExceeded):
		return Failure{Kind: FailureTransient, Reason: "timeout", Retryable: true, Attempt: attempt}
	default:
		return Failure{Kind: FailureTransient, Reason: "unknown", Retryable: true, Attempt: attempt}
	}
}
