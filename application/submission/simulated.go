package submission

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"txwizard/domain/wizard"
	pkguuid "txwizard/pkg/uuid"
)

// Outcome decides how a simulated submission resolves. A nil error commits.
type Outcome func(draft wizard.FrozenDraft, attempt int) error

// SimulatedGateway stands in for a payment rail: it waits for a fixed
// latency and then resolves according to its outcome.
type SimulatedGateway struct {
	latency time.Duration
	outcome Outcome
	logger  *zap.Logger

	mu       sync.Mutex
	attempts map[string]int
}

func NewSimulatedGateway(latency time.Duration, outcome Outcome, logger *zap.Logger) *SimulatedGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedGateway{
		latency:  latency,
		outcome:  outcome,
		logger:   logger.Named("gateway"),
		attempts: make(map[string]int),
	}
}

func (g *SimulatedGateway) Submit(ctx context.Context, draft wizard.FrozenDraft) (wizard.Receipt, error) {
	g.mu.Lock()
	g.attempts[draft.IdempotencyKey]++
	attempt := g.attempts[draft.IdempotencyKey]
	g.mu.Unlock()

	g.logger.Info("executing submission",
		zap.String("wizard_id", draft.WizardID),
		zap.String("flow", draft.Flow),
		zap.String("idempotency_key", draft.IdempotencyKey),
		zap.Int("attempt", attempt))

	timer := time.NewTimer(g.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return wizard.Receipt{}, wizard.Transient("timeout", ctx.Err())
	}

	if g.outcome != nil {
		if err := g.outcome(draft, attempt); err != nil {
			return wizard.Receipt{}, err
		}
	}
	return wizard.Receipt{Reference: "txn-" + pkguuid.New()}, nil
}

// FailFirst fails the first n attempts of every idempotency key with a
// transient error.
func FailFirst(n int) Outcome {
	return func(_ wizard.FrozenDraft, attempt int) error {
		if attempt <= n {
			return wizard.Transient("connectivity", nil)
		}
		return nil
	}
}

// DeclineAbove rejects drafts whose derived total exceeds limit.
func DeclineAbove(limit decimal.Decimal) Outcome {
	return func(d wizard.FrozenDraft, _ int) error {
		if d.Derived.Available && d.Derived.Total.GreaterThan(limit) {
			return wizard.Rejected("limit_exceeded", nil)
		}
		return nil
	}
}

// Chain runs outcomes in order and returns the first error.
func Chain(outcomes ...Outcome) Outcome {
	return func(d wizard.FrozenDraft, attempt int) error {
		for _, o := range outcomes {
			if err := o(d, attempt); err != nil {
				return err
			}
		}
		return nil
	}
}
