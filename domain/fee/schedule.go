package fee

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"txwizard/domain/money"
)

// ErrNotFound is returned when an instrument or one of its tiers is not
// configured. Callers treat it as "no fee tiers available", not as a fault.
var ErrNotFound = errors.New("fee tier not found")

// Tier is one priority level of an instrument's fee table.
type Tier struct {
	Name     string
	Fee      decimal.Decimal
	Estimate time.Duration
}

// Instrument is the fee configuration of one asset or payment method.
// Fees are denominated in Unit and fit Precision.
type Instrument struct {
	Unit      string
	Precision money.Precision
	Tiers     []Tier
}

// Quote is the resolved fee for an (instrument, tier) pair.
type Quote struct {
	Instrument string          `json:"instrument"`
	Tier       string          `json:"tier"`
	Amount     decimal.Decimal `json:"fee_amount"`
	Unit       string          `json:"fee_unit"`
	Estimate   time.Duration   `json:"estimated_duration"`
}

// Schedule is an immutable lookup table. A configuration refresh builds a
// new Schedule instead of mutating this one.
type Schedule struct {
	instruments map[string]Instrument
}

// NewSchedule validates and copies the table.
func NewSchedule(instruments map[string]Instrument) (*Schedule, error) {
	cp := make(map[string]Instrument, len(instruments))
	for id, inst := range instruments {
		if id == "" {
			return nil, errors.New("instrument id is empty")
		}
		if inst.Unit == "" {
			return nil, fmt.Errorf("instrument %q: unit is empty", id)
		}
		if inst.Precision < 0 {
			return nil, fmt.Errorf("instrument %q: %w", id, money.ErrNegativePrecision)
		}
		if len(inst.Tiers) == 0 {
			return nil, fmt.Errorf("instrument %q: no tiers configured", id)
		}
		seen := make(map[string]bool, len(inst.Tiers))
		tiers := make([]Tier, 0, len(inst.Tiers))
		for _, t := range inst.Tiers {
			if t.Name == "" {
				return nil, fmt.Errorf("instrument %q: tier name is empty", id)
			}
			if seen[t.Name] {
				return nil, fmt.Errorf("instrument %q: duplicate tier %q", id, t.Name)
			}
			seen[t.Name] = true
			if t.Fee.IsNegative() {
				return nil, fmt.Errorf("instrument %q tier %q: negative fee", id, t.Name)
			}
			if _, err := money.Quantize(t.Fee, inst.Precision); err != nil {
				return nil, fmt.Errorf("instrument %q tier %q: %w", id, t.Name, err)
			}
			tiers = append(tiers, t)
		}
		inst.Tiers = tiers
		cp[id] = inst
	}
	return &Schedule{instruments: cp}, nil
}

// Resolve looks up the fee for a tier of an instrument.
func (s *Schedule) Resolve(instrumentID, tier string) (Quote, error) {
	inst, ok := s.instruments[instrumentID]
	if !ok {
		return Quote{}, fmt.Errorf("%w: instrument %q", ErrNotFound, instrumentID)
	}
	for _, t := range inst.Tiers {
		if t.Name == tier {
			return Quote{
				Instrument: instrumentID,
				Tier:       t.Name,
				Amount:     t.Fee,
				Unit:       inst.Unit,
				Estimate:   t.Estimate,
			}, nil
		}
	}
	return Quote{}, fmt.Errorf("%w: instrument %q tier %q", ErrNotFound, instrumentID, tier)
}

// Tiers lists tier names in configured order. It is empty for an unknown
// instrument, which hosts render as a disabled tier selector.
func (s *Schedule) Tiers(instrumentID string) []string {
	inst, ok := s.instruments[instrumentID]
	if !ok {
		return nil
	}
	names := make([]string, len(inst.Tiers))
	for i, t := range inst.Tiers {
		names[i] = t.Name
	}
	return names
}

// Instrument returns the unit and precision of an instrument.
func (s *Schedule) Instrument(instrumentID string) (unit string, p money.Precision, err error) {
	inst, ok := s.instruments[instrumentID]
	if !ok {
		return "", 0, fmt.Errorf("%w: instrument %q", ErrNotFound, instrumentID)
	}
	return inst.Unit, inst.Precision, nil
}

// Instruments returns the configured instrument ids, sorted.
func (s *Schedule) Instruments() []string {
	ids := make([]string, 0, len(s.instruments))
	for id := range s.instruments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
