package wizard

import (
	"errors"
	"fmt"

	"txwizard/domain/money"
	"txwizard/domain/validation"
)

// Step is one page of a wizard: the fields it owns and the rules that gate
// leaving it.
type Step struct {
	validation.Step
	Title string
}

// Pricing tells the machine how to derive amounts and fees from the draft.
// Each source is either a draft field or a fixed value.
type Pricing struct {
	InstrumentField  string
	InstrumentPrefix string
	Instrument       string

	TierField   string
	Tier        string
	DefaultTier string

	// AmountField is empty for fee-only flows.
	AmountField     string
	SourceUnit      string
	SourcePrecision money.Precision
}

// Definition is the built, read-only description of one flow type.
type Definition struct {
	Flow    string
	Steps   []Step
	Pricing *Pricing

	fieldStep   map[string]int
	pricingGate int
}

// LastStep is the index of the last editable step.
func (d *Definition) LastStep() int { return len(d.Steps) - 1 }

// StepOf returns the index of the step owning field.
func (d *Definition) StepOf(field string) (int, bool) {
	i, ok := d.fieldStep[field]
	return i, ok
}

// Fields lists every field in step order.
func (d *Definition) Fields() []string {
	var out []string
	for _, s := range d.Steps {
		out = append(out, s.Fields...)
	}
	return out
}

// PricingGate is the first step whose advance requires derived values.
func (d *Definition) PricingGate() int { return d.pricingGate }

// DefinitionBuilder assembles a Definition.
type DefinitionBuilder struct {
	flow    string
	steps   []Step
	pricing *Pricing
}

func NewDefinition(flow string) *DefinitionBuilder {
	return &DefinitionBuilder{flow: flow}
}

// Step appends a step owning fields, gated by rules.
func (b *DefinitionBuilder) Step(name string, fields []string, rules ...validation.Rule) *DefinitionBuilder {
	return b.TitledStep(name, "", fields, rules...)
}

// TitledStep is Step with display copy for hosts.
func (b *DefinitionBuilder) TitledStep(name, title string, fields []string, rules ...validation.Rule) *DefinitionBuilder {
	b.steps = append(b.steps, Step{
		Step: validation.Step{
			Name:   name,
			Fields: append([]string(nil), fields...),
			Rules:  append([]validation.Rule(nil), rules...),
		},
		Title: title,
	})
	return b
}

func (b *DefinitionBuilder) Pricing(p Pricing) *DefinitionBuilder {
	b.pricing = &p
	return b
}

func (b *DefinitionBuilder) Build() (*Definition, error) {
	if b.flow == "" {
		return nil, errors.New("flow name is empty")
	}
	if len(b.steps) == 0 {
		return nil, fmt.Errorf("flow %q has no steps", b.flow)
	}
	fieldStep := make(map[string]int)
	stepNames := make(map[string]bool, len(b.steps))
	for i, s := range b.steps {
		if s.Name == "" {
			return nil, fmt.Errorf("flow %q: step %d has no name", b.flow, i)
		}
		if stepNames[s.Name] {
			return nil, fmt.Errorf("flow %q: duplicate step %q", b.flow, s.Name)
		}
		stepNames[s.Name] = true
		for _, f := range s.Fields {
			if f == "" {
				return nil, fmt.Errorf("flow %q step %q: empty field name", b.flow, s.Name)
			}
			if prev, dup := fieldStep[f]; dup {
				return nil, fmt.Errorf("flow %q: field %q owned by steps %q and %q", b.flow, f, b.steps[prev].Name, s.Name)
			}
			fieldStep[f] = i
		}
		for _, r := range s.Rules {
			for _, f := range r.Fields() {
				if !s.Owns(f) {
					return nil, fmt.Errorf("flow %q step %q: rule reports on field %q it does not own", b.flow, s.Name, f)
				}
			}
		}
	}

	gate := len(b.steps)
	if p := b.pricing; p != nil {
		if p.InstrumentField == "" && p.Instrument == "" {
			return nil, fmt.Errorf("flow %q: pricing has no instrument", b.flow)
		}
		if p.TierField == "" && p.Tier == "" && p.DefaultTier == "" {
			return nil, fmt.Errorf("flow %q: pricing has no tier", b.flow)
		}
		if p.SourcePrecision < 0 {
			return nil, fmt.Errorf("flow %q: %w", b.flow, money.ErrNegativePrecision)
		}
		gate = -1
		for _, f := range []string{p.InstrumentField, p.TierField, p.AmountField} {
			if f == "" {
				continue
			}
			i, ok := fieldStep[f]
			if !ok {
				return nil, fmt.Errorf("flow %q: pricing field %q is not owned by any step", b.flow, f)
			}
			if i > gate {
				gate = i
			}
		}
		if gate < 0 {
			gate = len(b.steps) - 1
		}
	}

	steps := make([]Step, len(b.steps))
	copy(steps, b.steps)
	var pricing *Pricing
	if b.pricing != nil {
		cp := *b.pricing
		pricing = &cp
	}
	return &Definition{
		Flow:        b.flow,
		Steps:       steps,
		Pricing:     pricing,
		fieldStep:   fieldStep,
		pricingGate: gate,
	}, nil
}
