package validation

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"txwizard/domain/money"
)

// DateLayout is the wire format of date fields.
const DateLayout = "2006-01-02"

// Values is a read-only view of a draft: field name to raw input.
type Values map[string]string

// Get returns the trimmed value of a field and whether it is non-blank.
func (v Values) Get(name string) (string, bool) {
	s := strings.TrimSpace(v[name])
	return s, s != ""
}

// Rule checks part of a draft. Fields lists every field the rule may report
// on; a step may only carry rules that report on fields it owns.
type Rule interface {
	Fields() []string
	Check(v Values) FieldErrors
}

type ruleFunc struct {
	fields []string
	check  func(v Values) FieldErrors
}

func (r ruleFunc) Fields() []string           { return r.fields }
func (r ruleFunc) Check(v Values) FieldErrors { return r.check(v) }

func single(field string, kind ErrorKind) FieldErrors {
	return FieldErrors{field: kind}
}

// NotBlank rejects a blank field with the Required kind.
func NotBlank(field string) Rule {
	return ruleFunc{fields: []string{field}, check: func(v Values) FieldErrors {
		if _, ok := v.Get(field); !ok {
			return single(field, Required)
		}
		return nil
	}}
}

// AmountOpts bounds an amount field. Nil bounds are open.
type AmountOpts struct {
	Precision money.Precision
	Min       *decimal.Decimal
	Max       *decimal.Decimal
	Optional  bool
}

// Amount checks a positive decimal amount. Zero or negative input counts as
// missing unless a positive minimum is configured, in which case it is
// BelowMinimum. Digits beyond the precision are InvalidFormat, never rounded.
func Amount(field string, opts AmountOpts) Rule {
	return ruleFunc{fields: []string{field}, check: func(v Values) FieldErrors {
		raw, ok := v.Get(field)
		if !ok {
			if opts.Optional {
				return nil
			}
			return single(field, Required)
		}
		amt, err := money.Parse(raw)
		if err != nil || !money.Fits(amt, opts.Precision) {
			return single(field, InvalidFormat)
		}
		hasMin := opts.Min != nil && opts.Min.IsPositive()
		switch {
		case !amt.IsPositive() && !hasMin:
			return single(field, Required)
		case hasMin && amt.LessThan(*opts.Min):
			return single(field, BelowMinimum)
		case opts.Max != nil && amt.GreaterThan(*opts.Max):
			return single(field, AboveMaximum)
		}
		return nil
	}}
}

// OneOf restricts a field to a fixed set of choices.
func OneOf(field string, choices ...string) Rule {
	return OneOfFunc(field, func(Values) []string { return choices })
}

// OneOfFunc restricts a field to choices that depend on other fields, such as
// the fee tiers of the selected asset.
func OneOfFunc(field string, choices func(v Values) []string) Rule {
	return ruleFunc{fields: []string{field}, check: func(v Values) FieldErrors {
		raw, ok := v.Get(field)
		if !ok {
			return single(field, Required)
		}
		for _, c := range choices(v) {
			if c == raw {
				return nil
			}
		}
		return single(field, OutOfRange)
	}}
}

// Pattern requires a non-blank field matching re.
func Pattern(field string, re *regexp.Regexp) Rule {
	return ruleFunc{fields: []string{field}, check: func(v Values) FieldErrors {
		raw, ok := v.Get(field)
		if !ok {
			return single(field, Required)
		}
		if !re.MatchString(raw) {
			return single(field, InvalidFormat)
		}
		return nil
	}}
}

// Date requires a field in DateLayout.
func Date(field string) Rule {
	return ruleFunc{fields: []string{field}, check: func(v Values) FieldErrors {
		raw, ok := v.Get(field)
		if !ok {
			return single(field, Required)
		}
		if _, err := time.Parse(DateLayout, raw); err != nil {
			return single(field, InvalidFormat)
		}
		return nil
	}}
}

// MustAccept requires a checkbox-style field to be "true".
func MustAccept(field string) Rule {
	return ruleFunc{fields: []string{field}, check: func(v Values) FieldErrors {
		raw, _ := v.Get(field)
		if !strings.EqualFold(raw, "true") {
			return single(field, Required)
		}
		return nil
	}}
}

// When applies rules only while pred holds.
func When(pred func(v Values) bool, rules ...Rule) Rule {
	var fields []string
	for _, r := range rules {
		fields = append(fields, r.Fields()...)
	}
	return ruleFunc{fields: fields, check: func(v Values) FieldErrors {
		if !pred(v) {
			return nil
		}
		return evaluate(rules, v)
	}}
}

// FieldIn is a When predicate matching a field against choices.
func FieldIn(field string, choices ...string) func(v Values) bool {
	return func(v Values) bool {
		raw, _ := v.Get(field)
		for _, c := range choices {
			if c == raw {
				return true
			}
		}
		return false
	}
}

// DateAfter reports CrossFieldConflict on end when end is not strictly after
// start. Unparseable or missing dates are left to the Date rules.
func DateAfter(start, end string) Rule {
	return ruleFunc{fields: []string{end}, check: func(v Values) FieldErrors {
		s, ok1 := v.Get(start)
		e, ok2 := v.Get(end)
		if !ok1 || !ok2 {
			return nil
		}
		st, err1 := time.Parse(DateLayout, s)
		et, err2 := time.Parse(DateLayout, e)
		if err1 != nil || err2 != nil {
			return nil
		}
		if !et.After(st) {
			return single(end, CrossFieldConflict)
		}
		return nil
	}}
}

// LimitFunc resolves an upper bound from the draft, e.g. the balance of the
// selected source account. ok=false means no bound is known.
type LimitFunc func(v Values) (limit decimal.Decimal, ok bool)

// NotExceeding reports CrossFieldConflict when an amount exceeds a limit
// that depends on other fields.
func NotExceeding(field string, limit LimitFunc) Rule {
	return ruleFunc{fields: []string{field}, check: func(v Values) FieldErrors {
		raw, ok := v.Get(field)
		if !ok {
			return nil
		}
		amt, err := money.Parse(raw)
		if err != nil {
			return nil
		}
		bound, ok := limit(v)
		if ok && amt.GreaterThan(bound) {
			return single(field, CrossFieldConflict)
		}
		return nil
	}}
}

// MinimumBy reports BelowMinimum when an amount is under the minimum keyed
// by another field's value.
func MinimumBy(field, keyField string, minimums map[string]decimal.Decimal) Rule {
	return ruleFunc{fields: []string{field}, check: func(v Values) FieldErrors {
		raw, ok := v.Get(field)
		if !ok {
			return nil
		}
		amt, err := money.Parse(raw)
		if err != nil {
			return nil
		}
		key, _ := v.Get(keyField)
		if floor, ok := minimums[key]; ok && amt.LessThan(floor) {
			return single(field, BelowMinimum)
		}
		return nil
	}}
}
