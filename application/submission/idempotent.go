package submission

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"txwizard/domain/wizard"
	"txwizard/infrastructure/idempotency"
)

// IdempotentGateway records committed submissions and answers a repeated
// idempotency key from the ledger instead of submitting again.
type IdempotentGateway struct {
	next   wizard.Gateway
	ledger idempotency.Ledger
	logger *zap.Logger
}

func NewIdempotentGateway(next wizard.Gateway, ledger idempotency.Ledger, logger *zap.Logger) *IdempotentGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdempotentGateway{next: next, ledger: ledger, logger: logger.Named("idempotency")}
}

func (g *IdempotentGateway) Submit(ctx context.Context, draft wizard.FrozenDraft) (wizard.Receipt, error) {
	prev, ok, err := g.ledger.Lookup(ctx, draft.IdempotencyKey)
	if err != nil {
		return wizard.Receipt{}, wizard.Transient("ledger unavailable", err)
	}
	if ok {
		g.logger.Info("submission already committed",
			zap.String("idempotency_key", draft.IdempotencyKey),
			zap.String("reference", prev.Reference))
		return wizard.Receipt{Reference: prev.Reference, CommittedAt: prev.CommittedAt}, nil
	}

	receipt, err := g.next.Submit(ctx, draft)
	if err != nil {
		return receipt, err
	}
	if receipt.CommittedAt.IsZero() {
		receipt.CommittedAt = time.Now()
	}

	entry := idempotency.Entry{
		Key:         draft.IdempotencyKey,
		WizardID:    draft.WizardID,
		Flow:        draft.Flow,
		Reference:   receipt.Reference,
		CommittedAt: receipt.CommittedAt,
	}
	if err := g.ledger.Record(ctx, entry); err != nil {
		// The rail committed; the receipt stands even if the ledger lags.
		level := g.logger.Warn
		if errors.Is(err, idempotency.ErrConflict) {
			level = g.logger.Error
		}
		level("failed to record submission",
			zap.String("idempotency_key", draft.IdempotencyKey),
			zap.String("reference", receipt.Reference),
			zap.Error(err))
	}
	return receipt, nil
}
