package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

const schema = `
CREATE TABLE IF NOT EXISTS submission_ledger (
	idempotency_key TEXT PRIMARY KEY,
	wizard_id       TEXT NOT NULL,
	flow            TEXT NOT NULL,
	reference       TEXT NOT NULL,
	committed_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS submission_ledger_wizard_idx ON submission_ledger (wizard_id);
`

// PostgresLedger stores committed submissions in the submission_ledger table.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureSchema creates the ledger table if it does not exist.
func (r *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create submission ledger: %w", err)
	}
	return nil
}

// Lookup returns the entry recorded for key, if any.
func (r *PostgresLedger) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	query := `
		SELECT idempotency_key, wizard_id, flow, reference, committed_at
		FROM submission_ledger
		WHERE idempotency_key = $1
	`

	var e Entry
	err := r.db.QueryRowContext(ctx, query, key).Scan(&e.Key, &e.WizardID, &e.Flow, &e.Reference, &e.CommittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to look up submission: %w", err)
	}
	return e, true, nil
}

// Record inserts e. A duplicate key with the same reference is accepted.
func (r *PostgresLedger) Record(ctx context.Context, e Entry) error {
	query := `
		INSERT INTO submission_ledger (idempotency_key, wizard_id, flow, reference, committed_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query, e.Key, e.WizardID, e.Flow, e.Reference, e.CommittedAt)
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return fmt.Errorf("failed to record submission: %w", err)
	}

	prev, ok, lerr := r.Lookup(ctx, e.Key)
	if lerr != nil {
		return lerr
	}
	if ok && prev.Reference != e.Reference {
		return ErrConflict
	}
	return nil
}

// ForWizard returns a wizard's entries in commit order (audit/debug).
func (r *PostgresLedger) ForWizard(ctx context.Context, wizardID string) ([]Entry, error) {
	query := `
		SELECT idempotency_key, wizard_id, flow, reference, committed_at
		FROM submission_ledger
		WHERE wizard_id = $1
		ORDER BY committed_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, wizardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.WizardID, &e.Flow, &e.Reference, &e.CommittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
