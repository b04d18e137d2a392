package flows

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"txwizard/domain/wizard"
)

// ErrUnknownFlow is returned for a flow name the catalog does not hold.
var ErrUnknownFlow = errors.New("unknown flow")

// Catalog holds built flow definitions by name.
type Catalog struct {
	defs  map[string]*wizard.Definition
	order []string
}

// NewCatalog indexes definitions, rejecting duplicate flow names.
func NewCatalog(defs ...*wizard.Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]*wizard.Definition, len(defs))}
	for _, d := range defs {
		if d == nil {
			return nil, errors.New("nil definition")
		}
		if _, dup := c.defs[d.Flow]; dup {
			return nil, fmt.Errorf("duplicate flow %q", d.Flow)
		}
		c.defs[d.Flow] = d
		c.order = append(c.order, d.Flow)
	}
	return c, nil
}

// Default builds the four built-in flows.
func Default(o Options) (*Catalog, error) {
	if o.Tiers == nil {
		return nil, errNoTiers
	}
	if o.MinimumDeposits == nil {
		o.MinimumDeposits = map[string]decimal.Decimal{
			"checking": decimal.NewFromInt(25),
			"savings":  decimal.NewFromInt(100),
			"business": decimal.NewFromInt(500),
		}
	}

	builders := []func(Options) (*wizard.Definition, error){sendAsset, openAccount, requestCard, recurringDeposit}
	defs := make([]*wizard.Definition, 0, len(builders))
	for _, build := range builders {
		d, err := build(o)
		if err != nil {
			return nil, fmt.Errorf("failed to build flow: %w", err)
		}
		defs = append(defs, d)
	}
	return NewCatalog(defs...)
}

// Get returns the definition of a flow.
func (c *Catalog) Get(flow string) (*wizard.Definition, error) {
	d, ok := c.defs[flow]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlow, flow)
	}
	return d, nil
}

// Names lists flows in registration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}
