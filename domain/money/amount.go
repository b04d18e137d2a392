package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits an amount may carry.
type Precision int32

const (
	// CurrencyPrecision is used for fiat-denominated flows.
	CurrencyPrecision Precision = 2
	// AssetPrecision is used for asset-denominated flows.
	AssetPrecision Precision = 8
)

var (
	ErrInvalidRate       = errors.New("invalid rate")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrPrecisionExceeded = errors.New("amount exceeds declared precision")
	ErrNegativePrecision = errors.New("precision must not be negative")
)

// Parse reads a user-entered decimal. Surrounding spaces are ignored and
// thousands separators are rejected.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// Fits reports whether d has no more than p fractional digits.
func Fits(d decimal.Decimal, p Precision) bool {
	return d.Equal(d.Truncate(int32(p)))
}

// Quantize returns d unchanged when it fits p, and ErrPrecisionExceeded
// otherwise. It never truncates.
func Quantize(d decimal.Decimal, p Precision) (decimal.Decimal, error) {
	if p < 0 {
		return decimal.Zero, ErrNegativePrecision
	}
	if !Fits(d, p) {
		return decimal.Zero, fmt.Errorf("%w: %s has more than %d fractional digits", ErrPrecisionExceeded, d.String(), p)
	}
	return d, nil
}

// Round applies round-half-even at p.
func Round(d decimal.Decimal, p Precision) decimal.Decimal {
	return d.RoundBank(int32(p))
}

// ToTargetUnit converts a validated, positive source amount with a rate
// expressed as target units per source unit.
func ToTargetUnit(source, rate decimal.Decimal, p Precision) (decimal.Decimal, error) {
	if p < 0 {
		return decimal.Zero, ErrNegativePrecision
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidRate, rate.String())
	}
	return Round(source.Mul(rate), p), nil
}

// ComputeTotal adds a fee to an amount of the same unit. Both operands must
// already fit p.
func ComputeTotal(amount, fee decimal.Decimal, p Precision) (decimal.Decimal, error) {
	if _, err := Quantize(amount, p); err != nil {
		return decimal.Zero, err
	}
	if _, err := Quantize(fee, p); err != nil {
		return decimal.Zero, err
	}
	return Round(amount.Add(fee), p), nil
}

// RateFromFloat guards hosts that hold prices as float64.
func RateFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidRate, f)
	}
	return decimal.NewFromFloat(f), nil
}

// Format renders d with exactly p fractional digits.
func Format(d decimal.Decimal, p Precision) string {
	return d.StringFixedBank(int32(p))
}
