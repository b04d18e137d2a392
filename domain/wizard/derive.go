package wizard

import (
	"txwizard/domain/money"
	"txwizard/domain/validation"
)

// derive projects the draft through the fee schedule and rate source.
// Missing or malformed inputs yield an Incomplete result; validation
// reports the field-level reason.
func derive(p *Pricing, values validation.Values, fees FeeResolver, rates RateFunc) Derived {
	if p == nil {
		return Derived{}
	}

	instrument := p.Instrument
	if p.InstrumentField != "" {
		raw, ok := values.Get(p.InstrumentField)
		if !ok {
			return incomplete("")
		}
		instrument = p.InstrumentPrefix + raw
	}
	tier := p.Tier
	if p.TierField != "" {
		if raw, ok := values.Get(p.TierField); ok {
			tier = raw
		}
	}
	if tier == "" {
		tier = p.DefaultTier
	}
	if tier == "" {
		return incomplete(instrument)
	}

	unit, prec, err := fees.Instrument(instrument)
	if err != nil {
		return failed(ComputeNotFound, instrument, "")
	}
	quote, err := fees.Resolve(instrument, tier)
	if err != nil {
		return failed(ComputeNotFound, instrument, tier)
	}

	out := Derived{
		Instrument: instrument,
		SourceUnit: p.SourceUnit,
		TargetUnit: unit,
		Fee:        &quote,
		TotalUnit:  unit,
	}

	if p.AmountField == "" {
		out.Total = quote.Amount
		out.Available = true
		return out
	}

	raw, ok := values.Get(p.AmountField)
	if !ok {
		return incomplete(instrument)
	}
	source, err := money.Parse(raw)
	if err != nil || !source.IsPositive() || !money.Fits(source, p.SourcePrecision) {
		return incomplete(instrument)
	}

	rate, err := rates(instrument)
	if err != nil {
		return failed(ComputeInvalidRate, instrument, tier)
	}
	target, err := money.ToTargetUnit(source, rate, prec)
	if err != nil {
		return failed(ComputeInvalidRate, instrument, tier)
	}
	total, err := money.ComputeTotal(target, quote.Amount, prec)
	if err != nil {
		return failed(ComputeInvalidRate, instrument, tier)
	}

	out.SourceAmount = source
	out.Rate = rate
	out.TargetAmount = target
	out.Total = total
	out.Available = true
	return out
}

func incomplete(instrument string) Derived {
	return failed(ComputeIncomplete, instrument, "")
}

func failed(kind ComputationKind, instrument, tier string) Derived {
	return Derived{
		Instrument: instrument,
		Err:        &ComputationError{Kind: kind, Instrument: instrument, Tier: tier},
	}
}
