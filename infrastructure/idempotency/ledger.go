package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrConflict is returned when a key is already recorded with a different
// reference, i.e. the same frozen draft was committed twice downstream.
var ErrConflict = errors.New("idempotency key already committed with another reference")

// Entry is one committed submission.
type Entry struct {
	Key         string    `json:"idempotency_key"`
	WizardID    string    `json:"wizard_id"`
	Flow        string    `json:"flow"`
	Reference   string    `json:"reference"`
	CommittedAt time.Time `json:"committed_at"`
}

// Ledger remembers committed submissions by idempotency key.
type Ledger interface {
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	Record(ctx context.Context, e Entry) error
	ForWizard(ctx context.Context, wizardID string) ([]Entry, error)
}

// MemoryLedger is a process-local Ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]Entry)}
}

func (l *MemoryLedger) Lookup(_ context.Context, key string) (Entry, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[key]
	return e, ok, nil
}

// Record stores e. Recording the same key and reference again is a no-op.
func (l *MemoryLedger) Record(_ context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.entries[e.Key]; ok {
		if prev.Reference != e.Reference {
			return ErrConflict
		}
		return nil
	}
	l.entries[e.Key] = e
	l.order = append(l.order, e.Key)
	return nil
}

// ForWizard returns a wizard's entries in commit order.
func (l *MemoryLedger) ForWizard(_ context.Context, wizardID string) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, k := range l.order {
		if e := l.entries[k]; e.WizardID == wizardID {
			out = append(out, e)
		}
	}
	return out, nil
}
