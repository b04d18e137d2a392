package validation

import "fmt"

// ErrorKind is the closed set of field error categories. UI layers map
// kinds to copy; the validator never produces free text.
type ErrorKind uint8

const (
	Required ErrorKind = iota + 1
	OutOfRange
	BelowMinimum
	AboveMaximum
	InvalidFormat
	CrossFieldConflict
)

var kindNames = map[ErrorKind]string{
	Required:           "required",
	OutOfRange:         "out_of_range",
	BelowMinimum:       "below_minimum",
	AboveMaximum:       "above_maximum",
	InvalidFormat:      "invalid_format",
	CrossFieldConflict: "cross_field_conflict",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown error kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *ErrorKind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", string(b))
}

// FieldErrors maps a field name to the first error found for it.
type FieldErrors map[string]ErrorKind

// Clone returns an independent copy.
func (fe FieldErrors) Clone() FieldErrors {
	if fe == nil {
		return nil
	}
	cp := make(FieldErrors, len(fe))
	for k, v := range fe {
		cp[k] = v
	}
	return cp
}

// Result is the outcome of validating one step.
type Result struct {
	OK     bool        `json:"ok"`
	Errors FieldErrors `json:"field_errors,omitempty"`
}
