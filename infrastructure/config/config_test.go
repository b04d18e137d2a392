package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txwizard/domain/fee"
)

func TestLoadEngine_Default(t *testing.T) {
	e, err := LoadEngine("")
	require.NoError(t, err)

	q, err := e.Schedule.Resolve("BTC", "medium")
	require.NoError(t, err)
	assert.True(t, q.Amount.Equal(decimal.RequireFromString("0.0003")))
	assert.Equal(t, 30*time.Minute, q.Estimate)
	assert.Equal(t, []string{"standard", "express"}, e.Schedule.Tiers("card-physical"))
	assert.True(t, e.Rates["BTC"].Equal(decimal.RequireFromString("0.00005")))
	assert.Equal(t, []string{"BTC", "ETH"}, e.Assets)
	assert.True(t, e.MinimumDeposits["savings"].Equal(decimal.NewFromInt(100)))
}

func TestLoadEngine_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	doc := `
assets: [BTC]
rates: {BTC: "0.0001"}
instruments:
  BTC:
    unit: BTC
    precision: 8
    tiers:
      - {name: only, fee: "0.00001", estimate: 1h}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	e, err := LoadEngine(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, e.Schedule.Tiers("BTC"))
	assert.Nil(t, e.MinimumDeposits)

	_, err = LoadEngine(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseEngine_Rejects(t *testing.T) {
	base := func(rate, feeAmount, assets string) string {
		return `
assets: ` + assets + `
rates: {BTC: "` + rate + `"}
instruments:
  BTC:
    unit: BTC
    precision: 8
    tiers:
      - {name: low, fee: "` + feeAmount + `"}
`
	}
	tests := map[string]string{
		"not yaml":             "assets: [",
		"zero rate":            base("0", "0.0001", "[BTC]"),
		"bad rate":             base("abc", "0.0001", "[BTC]"),
		"fee beyond precision": base("1", "0.000000001", "[BTC]"),
		"negative fee":         base("1", "-1", "[BTC]"),
		"asset without fees":   base("1", "0.0001", "[BTC, DOGE]"),
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEngine([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestRates(t *testing.T) {
	r := NewRates(map[string]decimal.Decimal{"BTC": decimal.RequireFromString("0.00005")})
	rate, err := r.Lookup("BTC")
	require.NoError(t, err)
	assert.Equal(t, "0.00005", rate.String())

	_, err = r.Lookup("ETH")
	assert.ErrorIs(t, err, fee.ErrNotFound)

	r.Store(map[string]decimal.Decimal{"ETH": decimal.RequireFromString("0.0003")})
	_, err = r.Lookup("ETH")
	assert.NoError(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SUBMIT_DELAY", "10ms")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Millisecond, cfg.SubmitDelay)
	assert.Equal(t, 30*time.Second, cfg.SubmitTimeout)
	assert.Equal(t, "info", cfg.LogLevel)

	t.Setenv("SUBMIT_TIMEOUT", "soon")
	_, err = FromEnv()
	assert.Error(t, err)
}
