package flows

import (
	"errors"
	"regexp"

	"github.com/shopspring/decimal"

	"txwizard/domain/money"
	"txwizard/domain/validation"
	"txwizard/domain/wizard"
)

// Names of the built-in flows.
const (
	SendAsset        = "send-asset"
	OpenAccount      = "open-account"
	RequestCard      = "request-card"
	RecurringDeposit = "recurring-deposit"
)

// CardInstrumentPrefix prefixes the card type to form its fee instrument id.
const CardInstrumentPrefix = "card-"

// Recurring deposits are priced as a flat ACH transfer.
const (
	DepositInstrument = "ACH"
	DepositTier       = "standard"
)

var addressPattern = regexp.MustCompile(`^[a-zA-Z0-9]{26,90}$`)

// Options carries the host configuration the flow definitions depend on.
type Options struct {
	// Assets offered by send-asset.
	Assets []string
	// Tiers lists the fee tiers of an instrument, in display order.
	Tiers func(instrumentID string) []string
	// Balance returns the spendable balance of an asset in source units.
	// A nil Balance disables the check.
	Balance func(asset string) (decimal.Decimal, bool)
	// Accounts are the funding accounts of recurring deposits.
	Accounts []string
	// MinimumDeposits maps account type to its minimum opening deposit.
	MinimumDeposits map[string]decimal.Decimal
}

func sendAsset(o Options) (*wizard.Definition, error) {
	amountRules := []validation.Rule{
		validation.Amount("sourceAmount", validation.AmountOpts{Precision: money.CurrencyPrecision}),
		validation.OneOfFunc("tier", func(v validation.Values) []string {
			asset, _ := v.Get("asset")
			return o.Tiers(asset)
		}),
	}
	if o.Balance != nil {
		amountRules = append(amountRules, validation.NotExceeding("sourceAmount", func(v validation.Values) (decimal.Decimal, bool) {
			asset, ok := v.Get("asset")
			if !ok {
				return decimal.Zero, false
			}
			return o.Balance(asset)
		}))
	}

	return wizard.NewDefinition(SendAsset).
		TitledStep("asset", "Choose asset and recipient", []string{"asset", "recipient"},
			validation.OneOf("asset", o.Assets...),
			validation.Pattern("recipient", addressPattern)).
		TitledStep("amount", "Amount and network fee", []string{"sourceAmount", "tier"}, amountRules...).
		Pricing(wizard.Pricing{
			InstrumentField: "asset",
			TierField:       "tier",
			AmountField:     "sourceAmount",
			SourceUnit:      "USD",
			SourcePrecision: money.CurrencyPrecision,
		}).
		Build()
}

func openAccount(o Options) (*wizard.Definition, error) {
	return wizard.NewDefinition(OpenAccount).
		TitledStep("type", "Account type", []string{"accountType"},
			validation.OneOf("accountType", "checking", "savings", "business")).
		TitledStep("details", "Account details", []string{"accountName", "currency", "initialDeposit"},
			validation.Pattern("accountName", regexp.MustCompile(`^[\p{L}\p{N} '\-]{2,64}$`)),
			validation.OneOf("currency", "USD", "EUR", "GBP"),
			validation.Amount("initialDeposit", validation.AmountOpts{Precision: money.CurrencyPrecision}),
			validation.MinimumBy("initialDeposit", "accountType", o.MinimumDeposits)).
		TitledStep("terms", "Terms and conditions", []string{"acceptTerms"},
			validation.MustAccept("acceptTerms")).
		Build()
}

func requestCard(o Options) (*wizard.Definition, error) {
	isPhysical := validation.FieldIn("cardType", "physical")
	speedChosen := func(v validation.Values) bool {
		_, ok := v.Get("deliverySpeed")
		return ok
	}
	minLimit := decimal.NewFromInt(100)
	maxLimit := decimal.NewFromInt(10000)

	return wizard.NewDefinition(RequestCard).
		TitledStep("card", "Card type", []string{"cardType", "network"},
			validation.OneOf("cardType", "virtual", "physical"),
			validation.OneOf("network", "visa", "mastercard")).
		TitledStep("delivery", "Delivery", []string{"deliveryAddress", "deliverySpeed"},
			validation.When(isPhysical, validation.NotBlank("deliveryAddress")),
			validation.When(func(v validation.Values) bool { return isPhysical(v) || speedChosen(v) },
				validation.OneOfFunc("deliverySpeed", func(v validation.Values) []string {
					cardType, _ := v.Get("cardType")
					return o.Tiers(CardInstrumentPrefix + cardType)
				}))).
		TitledStep("limits", "Spending limit", []string{"spendLimit"},
			validation.Amount("spendLimit", validation.AmountOpts{
				Precision: money.CurrencyPrecision,
				Min:       &minLimit,
				Max:       &maxLimit,
			})).
		Pricing(wizard.Pricing{
			InstrumentField:  "cardType",
			InstrumentPrefix: CardInstrumentPrefix,
			TierField:        "deliverySpeed",
			DefaultTier:      "instant",
		}).
		Build()
}

func recurringDeposit(o Options) (*wizard.Definition, error) {
	minDeposit := decimal.NewFromInt(1)
	account := validation.NotBlank("sourceAccount")
	if len(o.Accounts) > 0 {
		account = validation.OneOf("sourceAccount", o.Accounts...)
	}
	recurring := validation.FieldIn("frequency", "weekly", "monthly")

	return wizard.NewDefinition(RecurringDeposit).
		TitledStep("plan", "Deposit plan", []string{"sourceAccount", "amount"},
			account,
			validation.Amount("amount", validation.AmountOpts{Precision: money.CurrencyPrecision, Min: &minDeposit})).
		TitledStep("schedule", "Schedule", []string{"frequency", "startDate", "endDate"},
			validation.OneOf("frequency", "one-time", "weekly", "monthly"),
			validation.When(recurring,
				validation.Date("startDate"),
				validation.Date("endDate"),
				validation.DateAfter("startDate", "endDate"))).
		Pricing(wizard.Pricing{
			Instrument:      DepositInstrument,
			Tier:            DepositTier,
			AmountField:     "amount",
			SourceUnit:      "USD",
			SourcePrecision: money.CurrencyPrecision,
		}).
		Build()
}

var errNoTiers = errors.New("flows: Options.Tiers is required")
