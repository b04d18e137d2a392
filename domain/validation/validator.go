package validation

// Step is the validation view of one wizard step.
type Step struct {
	Name   string
	Fields []string
	Rules  []Rule
}

// Owns reports whether the step owns field.
func (s Step) Owns(field string) bool {
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Validate checks the fields owned by step. It never mutates v and returns
// the same result for the same input.
func Validate(step Step, v Values) Result {
	errs := evaluate(step.Rules, v)
	for field := range errs {
		if !step.Owns(field) {
			delete(errs, field)
		}
	}
	if len(errs) == 0 {
		return Result{OK: true}
	}
	return Result{OK: false, Errors: errs}
}

// evaluate runs rules in order; the first error per field wins.
func evaluate(rules []Rule, v Values) FieldErrors {
	var out FieldErrors
	for _, r := range rules {
		for field, kind := range r.Check(v) {
			if out == nil {
				out = make(FieldErrors)
			}
			if _, seen := out[field]; !seen {
				out[field] = kind
			}
		}
	}
	return out
}
