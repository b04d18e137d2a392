package wizard

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"txwizard/domain/fee"
	"txwizard/domain/validation"
)

var testAddress = regexp.MustCompile(`^[a-zA-Z0-9]{8,}$`)

func testFees(t *testing.T) *fee.Schedule {
	t.Helper()
	s, err := fee.NewSchedule(map[string]fee.Instrument{
		"BTC": {Unit: "BTC", Precision: 8, Tiers: []fee.Tier{
			{Name: "low", Fee: decimal.RequireFromString("0.0001"), Estimate: time.Hour},
			{Name: "medium", Fee: decimal.RequireFromString("0.0003"), Estimate: 30 * time.Minute},
			{Name: "high", Fee: decimal.RequireFromString("0.0005"), Estimate: 10 * time.Minute},
		}},
	})
	require.NoError(t, err)
	return s
}

func testRates(instrument string) (decimal.Decimal, error) {
	if instrument == "BTC" {
		return decimal.RequireFromString("0.00005"), nil
	}
	return decimal.Zero, errors.New("no rate")
}

func sendDefinition(t *testing.T) *Definition {
	t.Helper()
	def, err := NewDefinition("send-asset").
		Step("asset", []string{"asset", "recipient"},
			validation.OneOf("asset", "BTC", "DOGE"),
			validation.Pattern("recipient", testAddress)).
		Step("amount", []string{"sourceAmount", "tier"},
			validation.Amount("sourceAmount", validation.AmountOpts{Precision: 2}),
			validation.OneOf("tier", "low", "medium", "high")).
		Pricing(Pricing{
			InstrumentField: "asset",
			TierField:       "tier",
			AmountField:     "sourceAmount",
			SourceUnit:      "USD",
			SourcePrecision: 2,
		}).
		Build()
	require.NoError(t, err)
	return def
}

// fakeGateway counts calls and resolves each from a queue of outcomes.
// When hold is set every call blocks until release is closed.
type fakeGateway struct {
	calls    atomic.Int32
	mu       sync.Mutex
	drafts   []FrozenDraft
	outcomes []error
	hold     chan struct{}
	entered  chan struct{}
}

func newFakeGateway(outcomes ...error) *fakeGateway {
	return &fakeGateway{outcomes: outcomes, entered: make(chan struct{}, 16)}
}

func (g *fakeGateway) Submit(ctx context.Context, d FrozenDraft) (Receipt, error) {
	n := g.calls.Add(1)
	g.mu.Lock()
	g.drafts = append(g.drafts, d)
	g.mu.Unlock()
	g.entered <- struct{}{}
	if g.hold != nil {
		<-g.hold
	}
	if int(n) <= len(g.outcomes) && g.outcomes[n-1] != nil {
		return Receipt{}, g.outcomes[n-1]
	}
	return Receipt{Reference: "ref-" + d.IdempotencyKey}, nil
}

func (g *fakeGateway) Drafts() []FrozenDraft {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]FrozenDraft(nil), g.drafts...)
}

func newSendMachine(t *testing.T, gw Gateway, opts ...Option) *Machine {
	t.Helper()
	opts = append([]Option{WithFees(testFees(t)), WithRates(testRates)}, opts...)
	m, err := New(sendDefinition(t), gw, opts...)
	require.NoError(t, err)
	return m
}

func set(t *testing.T, m *Machine, kv ...string) {
	t.Helper()
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(t, m.SetField(kv[i], kv[i+1]))
	}
}

func advance(t *testing.T, m *Machine) {
	t.Helper()
	ok, err := m.Advance()
	require.NoError(t, err)
	require.True(t, ok, "advance blocked: %+v", m.Snapshot())
}

// toConfirming fills a valid crypto send and reaches confirmation.
func toConfirming(t *testing.T, m *Machine) {
	t.Helper()
	set(t, m, "asset", "BTC", "recipient", "bc1qrecipient")
	advance(t, m)
	set(t, m, "sourceAmount", "1000", "tier", "medium")
	advance(t, m)
	require.Equal(t, PhaseConfirming, m.Phase())
}

func await(t *testing.T, m *Machine) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := m.Await(ctx)
	require.NoError(t, err)
	return s
}

// rank orders phases along the lifecycle.
func rank(p Phase) int {
	switch p {
	case PhaseEditing:
		return 0
	case PhaseConfirming:
		return 1
	case PhaseSubmitting:
		return 2
	case PhaseSucceeded, PhaseFailed:
		return 3
	}
	return -1
}
