package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txwizard/domain/validation"
)

func TestBuild_Rejects(t *testing.T) {
	tests := []struct {
		name string
		b    *DefinitionBuilder
	}{
		{"empty flow", NewDefinition("").Step("a", []string{"x"})},
		{"no steps", NewDefinition("f")},
		{"unnamed step", NewDefinition("f").Step("", []string{"x"})},
		{"duplicate step", NewDefinition("f").Step("a", []string{"x"}).Step("a", []string{"y"})},
		{"empty field", NewDefinition("f").Step("a", []string{""})},
		{"shared field", NewDefinition("f").Step("a", []string{"x"}).Step("b", []string{"x"})},
		{"rule on foreign field", NewDefinition("f").
			Step("a", []string{"x"}).
			Step("b", []string{"y"}, validation.NotBlank("x"))},
		{"pricing without instrument", NewDefinition("f").
			Step("a", []string{"tier"}).
			Pricing(Pricing{TierField: "tier"})},
		{"pricing without tier", NewDefinition("f").
			Step("a", []string{"x"}).
			Pricing(Pricing{Instrument: "BTC"})},
		{"pricing field not owned", NewDefinition("f").
			Step("a", []string{"tier"}).
			Pricing(Pricing{Instrument: "BTC", TierField: "tier", AmountField: "amount"})},
		{"negative precision", NewDefinition("f").
			Step("a", []string{"x"}).
			Pricing(Pricing{Instrument: "BTC", Tier: "std", SourcePrecision: -1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := tt.b.Build()
			assert.Error(t, err)
			assert.Nil(t, def)
		})
	}
}

func TestBuild_PricingGate(t *testing.T) {
	t.Run("highest owning step", func(t *testing.T) {
		def := sendDefinition(t)
		assert.Equal(t, 1, def.PricingGate())
	})

	t.Run("fixed pricing gates the last step", func(t *testing.T) {
		def, err := NewDefinition("card").
			Step("type", []string{"cardType"}).
			Step("delivery", []string{"address"}).
			Pricing(Pricing{Instrument: "card-physical", DefaultTier: "standard"}).
			Build()
		require.NoError(t, err)
		assert.Equal(t, 1, def.PricingGate())
	})

	t.Run("no pricing never gates", func(t *testing.T) {
		def, err := NewDefinition("account").Step("a", []string{"x"}).Build()
		require.NoError(t, err)
		assert.Equal(t, 1, def.PricingGate())
		assert.Nil(t, def.Pricing)
	})
}

func TestDefinition_Lookup(t *testing.T) {
	def := sendDefinition(t)
	assert.Equal(t, []string{"asset", "recipient", "sourceAmount", "tier"}, def.Fields())
	assert.Equal(t, 1, def.LastStep())

	i, ok := def.StepOf("tier")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = def.StepOf("memo")
	assert.False(t, ok)
}

func TestBuild_CopiesBuilderInput(t *testing.T) {
	fields := []string{"x"}
	b := NewDefinition("f").Step("a", fields)
	def, err := b.Build()
	require.NoError(t, err)
	fields[0] = "changed"
	assert.Equal(t, []string{"x"}, def.Steps[0].Fields)
}
