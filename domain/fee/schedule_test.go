package fee

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchedule(t *testing.T) *Schedule {
	t.Helper()
	s, err := NewSchedule(map[string]Instrument{
		"BTC": {
			Unit:      "BTC",
			Precision: 8,
			Tiers: []Tier{
				{Name: "low", Fee: decimal.RequireFromString("0.0001"), Estimate: time.Hour},
				{Name: "medium", Fee: decimal.RequireFromString("0.0003"), Estimate: 30 * time.Minute},
				{Name: "high", Fee: decimal.RequireFromString("0.0005"), Estimate: 10 * time.Minute},
			},
		},
		"WIRE": {
			Unit:      "USD",
			Precision: 2,
			Tiers:     []Tier{{Name: "standard", Fee: decimal.RequireFromString("25"), Estimate: 48 * time.Hour}},
		},
	})
	require.NoError(t, err)
	return s
}

func TestResolve(t *testing.T) {
	s := testSchedule(t)

	q, err := s.Resolve("BTC", "medium")
	require.NoError(t, err)
	assert.True(t, q.Amount.Equal(decimal.RequireFromString("0.0003")))
	assert.Equal(t, "BTC", q.Unit)
	assert.Equal(t, 30*time.Minute, q.Estimate)

	q, err = s.Resolve("WIRE", "standard")
	require.NoError(t, err)
	assert.Equal(t, "USD", q.Unit)
}

func TestResolve_IsPure(t *testing.T) {
	s := testSchedule(t)
	a, err := s.Resolve("BTC", "high")
	require.NoError(t, err)
	b, err := s.Resolve("BTC", "high")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestResolve_NotFound(t *testing.T) {
	s := testSchedule(t)

	_, err := s.Resolve("DOGE", "medium")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Resolve("BTC", "ludicrous")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, s.Tiers("DOGE"))
	assert.Equal(t, []string{"low", "medium", "high"}, s.Tiers("BTC"))
}

func TestNewSchedule_Rejects(t *testing.T) {
	cases := map[string]map[string]Instrument{
		"no tiers":     {"X": {Unit: "X", Precision: 2}},
		"empty unit":   {"X": {Precision: 2, Tiers: []Tier{{Name: "a"}}}},
		"duplicate":    {"X": {Unit: "X", Precision: 2, Tiers: []Tier{{Name: "a"}, {Name: "a"}}}},
		"precision":    {"X": {Unit: "X", Precision: 2, Tiers: []Tier{{Name: "a", Fee: decimal.RequireFromString("0.001")}}}},
		"negative fee": {"X": {Unit: "X", Precision: 2, Tiers: []Tier{{Name: "a", Fee: decimal.RequireFromString("-1")}}}},
		"unnamed tier": {"X": {Unit: "X", Precision: 2, Tiers: []Tier{{Fee: decimal.Zero}}}},
		"empty id":     {"": {Unit: "X", Precision: 2, Tiers: []Tier{{Name: "a"}}}},
	}
	for name, table := range cases {
		_, err := NewSchedule(table)
		assert.Error(t, err, name)
	}
}

func TestLive_Store(t *testing.T) {
	live := NewLive(testSchedule(t))
	q, err := live.Resolve("WIRE", "standard")
	require.NoError(t, err)
	assert.True(t, q.Amount.Equal(decimal.NewFromInt(25)))

	next, err := NewSchedule(map[string]Instrument{
		"WIRE": {Unit: "USD", Precision: 2, Tiers: []Tier{{Name: "standard", Fee: decimal.RequireFromString("15")}}},
	})
	require.NoError(t, err)
	live.Store(next)

	q, err = live.Resolve("WIRE", "standard")
	require.NoError(t, err)
	assert.True(t, q.Amount.Equal(decimal.NewFromInt(15)))
	assert.Empty(t, live.Tiers("BTC"))
	_, _, err = live.Instrument("BTC")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSchedule_Instruments(t *testing.T) {
	assert.Equal(t, []string{"BTC", "WIRE"}, testSchedule(t).Instruments())
}
