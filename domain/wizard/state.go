package wizard

import (
	"time"

	"github.com/shopspring/decimal"

	"txwizard/domain/fee"
	"txwizard/domain/validation"
)

// Phase is the lifecycle stage of a wizard instance.
type Phase string

const (
	PhaseEditing    Phase = "editing"
	PhaseConfirming Phase = "confirming"
	PhaseSubmitting Phase = "submitting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether p ends a submission attempt.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// ComputationKind classifies why derived values are unavailable.
type ComputationKind string

const (
	ComputeInvalidRate ComputationKind = "invalid_rate"
	ComputeNotFound    ComputationKind = "not_found"
	ComputeIncomplete  ComputationKind = "incomplete"
)

// ComputationError blocks advancement until the input or the external
// rate/fee configuration changes.
type ComputationError struct {
	Kind       ComputationKind `json:"kind"`
	Instrument string          `json:"instrument,omitempty"`
	Tier       string          `json:"tier,omitempty"`
}

func (e *ComputationError) Error() string {
	msg := "cannot derive values: " + string(e.Kind)
	if e.Instrument != "" {
		msg += " (" + e.Instrument
		if e.Tier != "" {
			msg += "/" + e.Tier
		}
		msg += ")"
	}
	return msg
}

// Derived is the projection of the draft through rates and the fee
// schedule. It is recomputed on every read and never stored as authority.
type Derived struct {
	Available    bool              `json:"available"`
	Instrument   string            `json:"instrument,omitempty"`
	SourceAmount decimal.Decimal   `json:"source_amount"`
	SourceUnit   string            `json:"source_unit,omitempty"`
	Rate         decimal.Decimal   `json:"rate"`
	TargetAmount decimal.Decimal   `json:"target_amount"`
	TargetUnit   string            `json:"target_unit,omitempty"`
	Fee          *fee.Quote        `json:"fee,omitempty"`
	Total        decimal.Decimal   `json:"total"`
	TotalUnit    string            `json:"total_unit,omitempty"`
	Err          *ComputationError `json:"error,omitempty"`
}

// FailureKind separates failures the user may retry from declined requests.
type FailureKind string

const (
	FailureTransient FailureKind = "transient"
	FailureRejected  FailureKind = "rejected"
)

// Failure is attached to a wizard in PhaseFailed.
type Failure struct {
	Kind      FailureKind `json:"kind"`
	Reason    string      `json:"reason"`
	Retryable bool        `json:"retryable"`
	Attempt   int         `json:"attempt"`
}

// FrozenDraft is the immutable input handed to the gateway. Retries of the
// same freeze share the idempotency key.
type FrozenDraft struct {
	WizardID       string            `json:"wizard_id"`
	Flow           string            `json:"flow"`
	IdempotencyKey string            `json:"idempotency_key"`
	Fields         map[string]string `json:"fields"`
	Derived        Derived           `json:"derived"`
	FrozenAt       time.Time         `json:"frozen_at"`
}

// Receipt is the terminal artifact of a successful submission.
type Receipt struct {
	Reference      string            `json:"reference"`
	IdempotencyKey string            `json:"idempotency_key"`
	Draft          map[string]string `json:"draft"`
	Derived        Derived           `json:"derived"`
	CommittedAt    time.Time         `json:"committed_at"`
}

// State is a read-only snapshot of a wizard instance.
type State struct {
	WizardID    string                 `json:"wizard_id"`
	Flow        string                 `json:"flow"`
	Phase       Phase                  `json:"phase"`
	StepIndex   int                    `json:"step_index"`
	StepName    string                 `json:"step_name"`
	Draft       map[string]string      `json:"draft"`
	Errors      validation.FieldErrors `json:"errors,omitempty"`
	Computation *ComputationError      `json:"computation_error,omitempty"`
	Receipt     *Receipt               `json:"receipt,omitempty"`
	Failure     *Failure               `json:"failure,omitempty"`
	Attempts    int                    `json:"attempts"`
	Version     int                    `json:"version"`
}

func cloneFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
