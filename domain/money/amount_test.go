package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestToTargetUnit_CryptoSend(t *testing.T) {
	target, err := ToTargetUnit(d("1000"), d("0.00005"), AssetPrecision)
	require.NoError(t, err)
	assert.Equal(t, "0.05000000", Format(target, AssetPrecision))

	total, err := ComputeTotal(target, d("0.0003"), AssetPrecision)
	require.NoError(t, err)
	assert.True(t, total.Equal(d("0.0503")), "got %s", total)
}

func TestToTargetUnit_RoundsHalfEven(t *testing.T) {
	cases := []struct {
		source, rate string
		p            Precision
		want         string
	}{
		{"1", "0.125", 2, "0.12"},
		{"1", "0.135", 2, "0.14"},
		{"3", "0.005", 2, "0.02"},
		{"10", "0.00000000125", 8, "0.00000001"},
		{"10", "0.00000000135", 8, "0.00000001"},
	}
	for _, tc := range cases {
		got, err := ToTargetUnit(d(tc.source), d(tc.rate), tc.p)
		require.NoError(t, err)
		assert.True(t, got.Equal(d(tc.want)), "%s*%s@%d: want %s got %s", tc.source, tc.rate, tc.p, tc.want, got)
	}
}

func TestToTargetUnit_InvalidRate(t *testing.T) {
	for _, rate := range []string{"0", "-1", "-0.00001"} {
		_, err := ToTargetUnit(d("100"), d(rate), 2)
		assert.ErrorIs(t, err, ErrInvalidRate, rate)
	}
}

func TestRateFromFloat(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 0, -2} {
		_, err := RateFromFloat(f)
		assert.ErrorIs(t, err, ErrInvalidRate)
	}
	r, err := RateFromFloat(0.00005)
	require.NoError(t, err)
	assert.True(t, r.Equal(d("0.00005")))
}

func TestQuantize_NeverTruncates(t *testing.T) {
	_, err := Quantize(d("1.005"), 2)
	assert.ErrorIs(t, err, ErrPrecisionExceeded)

	got, err := Quantize(d("1.50"), 2)
	require.NoError(t, err)
	assert.True(t, got.Equal(d("1.5")))
}

func TestComputeTotal_RejectsExcessPrecision(t *testing.T) {
	_, err := ComputeTotal(d("1.00"), d("0.001"), 2)
	assert.ErrorIs(t, err, ErrPrecisionExceeded)
}

func TestConversionThenTotal_StaysWithinPrecision(t *testing.T) {
	sources := []string{"0.01", "1", "7.77", "1000", "123456.78", "99999999.99"}
	rates := []string{"0.00005", "0.333333333", "1", "1.5", "0.000000017", "42.4242"}
	fees := []string{"0", "0.0003", "0.01", "1.25"}
	for _, p := range []Precision{2, 8} {
		for _, s := range sources {
			for _, r := range rates {
				target, err := ToTargetUnit(d(s), d(r), p)
				require.NoError(t, err)
				for _, f := range fees {
					fee := Round(d(f), p)
					total, err := ComputeTotal(target, fee, p)
					require.NoError(t, err)
					assert.True(t, Fits(total, p), "%s*%s+%s@%d = %s", s, r, f, p, total)
				}
			}
		}
	}
}

func TestParse(t *testing.T) {
	got, err := Parse(" 12.50 ")
	require.NoError(t, err)
	assert.True(t, got.Equal(d("12.5")))

	for _, bad := range []string{"", "  ", "1,000", "abc", "1.2.3"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}
