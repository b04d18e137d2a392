package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"txwizard/configs"
	"txwizard/domain/fee"
	"txwizard/domain/money"
)

// TierConfig is one fee tier of an instrument.
type TierConfig struct {
	Name     string        `yaml:"name"`
	Fee      string        `yaml:"fee"`
	Estimate time.Duration `yaml:"estimate"`
}

// InstrumentConfig is the fee table of one instrument.
type InstrumentConfig struct {
	Unit      string       `yaml:"unit"`
	Precision int32        `yaml:"precision"`
	Tiers     []TierConfig `yaml:"tiers"`
}

// EngineConfig is the data the wizard engine consumes: fee schedules,
// conversion rates and the choices offered by the built-in flows.
type EngineConfig struct {
	Assets          []string                    `yaml:"assets"`
	Accounts        []string                    `yaml:"accounts"`
	MinimumDeposits map[string]string           `yaml:"minimum_deposits"`
	Rates           map[string]string           `yaml:"rates"`
	Instruments     map[string]InstrumentConfig `yaml:"instruments"`
}

// Engine is a validated EngineConfig with its values parsed.
type Engine struct {
	Schedule        *fee.Schedule
	Rates           map[string]decimal.Decimal
	Assets          []string
	Accounts        []string
	MinimumDeposits map[string]decimal.Decimal
}

// LoadEngine reads the engine configuration from path, or the shipped
// default when path is empty.
func LoadEngine(path string) (*Engine, error) {
	data := configs.Engine
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read engine config: %w", err)
		}
	}
	return ParseEngine(data)
}

// ParseEngine decodes and validates an engine configuration document.
func ParseEngine(data []byte) (*Engine, error) {
	var raw EngineConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse engine config: %w", err)
	}
	return raw.Build()
}

// Build validates c and converts it to engine inputs.
func (c *EngineConfig) Build() (*Engine, error) {
	instruments := make(map[string]fee.Instrument, len(c.Instruments))
	for id, ic := range c.Instruments {
		inst := fee.Instrument{Unit: ic.Unit, Precision: money.Precision(ic.Precision)}
		for _, tc := range ic.Tiers {
			amount, err := money.Parse(tc.Fee)
			if err != nil {
				return nil, fmt.Errorf("instrument %q tier %q: %w", id, tc.Name, err)
			}
			inst.Tiers = append(inst.Tiers, fee.Tier{Name: tc.Name, Fee: amount, Estimate: tc.Estimate})
		}
		instruments[id] = inst
	}
	schedule, err := fee.NewSchedule(instruments)
	if err != nil {
		return nil, fmt.Errorf("invalid fee schedule: %w", err)
	}

	rates := make(map[string]decimal.Decimal, len(c.Rates))
	for id, s := range c.Rates {
		rate, err := money.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("rate %q: %w", id, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate %q: %w: %s", id, money.ErrInvalidRate, rate)
		}
		rates[id] = rate
	}

	for _, a := range c.Assets {
		if len(schedule.Tiers(a)) == 0 {
			return nil, fmt.Errorf("asset %q has no fee schedule", a)
		}
		if _, ok := rates[a]; !ok {
			return nil, fmt.Errorf("asset %q has no rate", a)
		}
	}

	minimums := make(map[string]decimal.Decimal, len(c.MinimumDeposits))
	for accountType, s := range c.MinimumDeposits {
		m, err := money.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("minimum deposit %q: %w", accountType, err)
		}
		minimums[accountType] = m
	}
	if len(minimums) == 0 {
		minimums = nil
	}

	return &Engine{
		Schedule:        schedule,
		Rates:           rates,
		Assets:          append([]string(nil), c.Assets...),
		Accounts:        append([]string(nil), c.Accounts...),
		MinimumDeposits: minimums,
	}, nil
}
