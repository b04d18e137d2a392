package fee

import (
	"sync/atomic"

	"txwizard/domain/money"
)

// Live serves lookups from the most recently stored Schedule. Readers never
// block a refresh and always see one complete table.
type Live struct {
	current atomic.Pointer[Schedule]
}

func NewLive(s *Schedule) *Live {
	l := &Live{}
	l.current.Store(s)
	return l
}

// Store replaces the schedule used by subsequent lookups.
func (l *Live) Store(s *Schedule) { l.current.Store(s) }

func (l *Live) Load() *Schedule { return l.current.Load() }

func (l *Live) Resolve(instrumentID, tier string) (Quote, error) {
	return l.Load().Resolve(instrumentID, tier)
}

func (l *Live) Tiers(instrumentID string) []string {
	return l.Load().Tiers(instrumentID)
}

func (l *Live) Instrument(instrumentID string) (string, money.Precision, error) {
	return l.Load().Instrument(instrumentID)
}
