package wizard

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalPhase   = errors.New("operation not permitted in current phase")
	ErrUnknownField   = errors.New("unknown field")
	ErrMissingPricing = errors.New("definition has pricing but no fee resolver or rate source")
	ErrNoGateway      = errors.New("submission gateway is nil")
)

// PhaseError reports a host integration bug: a mutation called in a phase
// that does not permit it.
type PhaseError struct {
	Op    string
	Phase Phase
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v (phase %s)", e.Op, ErrIllegalPhase, e.Phase)
}

func (e *PhaseError) Is(target error) bool { return target == ErrIllegalPhase }
