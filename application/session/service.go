package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"txwizard/application/flows"
	"txwizard/domain/wizard"
)

// EventTopic is the in-process topic every wizard event is published on.
const EventTopic = "wizard:event"

var (
	ErrNotFound           = errors.New("wizard not found")
	ErrSubmissionInFlight = errors.New("submission in flight")
)

// Sink receives every wizard event. It runs on the goroutine that caused
// the change and must not call mutating Machine methods.
type Sink func(wizard.Event)

type entry struct {
	machine     *wizard.Machine
	unsubscribe func()
	started     time.Time
}

// Service keeps the live wizard instances of this host, keyed by wizard id.
// Instances are in-memory only; a restart of the process loses them.
type Service struct {
	catalog       *flows.Catalog
	gateway       wizard.Gateway
	fees          wizard.FeeResolver
	rates         wizard.RateFunc
	bus           evbus.Bus
	logger        *zap.Logger
	submitTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewService wires the catalog to a gateway and the shared pricing inputs.
func NewService(catalog *flows.Catalog, gw wizard.Gateway, fees wizard.FeeResolver, rates wizard.RateFunc, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		catalog:  catalog,
		gateway:  gw,
		fees:     fees,
		rates:    rates,
		bus:      evbus.New(),
		logger:   logger.Named("session"),
		sessions: make(map[string]*entry),
	}
}

// SetSubmitTimeout bounds gateway calls of wizards started afterwards.
func (s *Service) SetSubmitTimeout(d time.Duration) { s.submitTimeout = d }

// AddSink registers fn for every event of every wizard.
func (s *Service) AddSink(fn Sink) error {
	if err := s.bus.Subscribe(EventTopic, func(ev wizard.Event) { fn(ev) }); err != nil {
		return fmt.Errorf("failed to subscribe sink: %w", err)
	}
	return nil
}

// Start creates a wizard instance of flow at editing(0).
func (s *Service) Start(flow string) (*wizard.Machine, error) {
	def, err := s.catalog.Get(flow)
	if err != nil {
		return nil, err
	}
	m, err := wizard.New(def, s.gateway,
		wizard.WithFees(s.fees),
		wizard.WithRates(s.rates),
		wizard.WithLogger(s.logger),
		wizard.WithSubmitTimeout(s.submitTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to start %s wizard: %w", flow, err)
	}
	unsubscribe := m.Subscribe(func(ev wizard.Event) {
		s.bus.Publish(EventTopic, ev)
	})

	s.mu.Lock()
	s.sessions[m.ID()] = &entry{machine: m, unsubscribe: unsubscribe, started: time.Now()}
	s.mu.Unlock()

	s.logger.Info("wizard started", zap.String("wizard_id", m.ID()), zap.String("flow", flow))
	return m, nil
}

// Get returns a live wizard instance.
func (s *Service) Get(id string) (*wizard.Machine, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.machine, nil
}

// Discard forgets a wizard instance. An in-flight submission must resolve
// first.
func (s *Service) Discard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.machine.Phase() == wizard.PhaseSubmitting {
		return fmt.Errorf("wizard %s: %w", id, ErrSubmissionInFlight)
	}
	e.unsubscribe()
	delete(s.sessions, id)
	s.logger.Debug("wizard discarded", zap.String("wizard_id", id))
	return nil
}

// List returns snapshots of all live wizards ordered by start time.
func (s *Service) List() []wizard.State {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].started.Equal(entries[j].started) {
			return entries[i].machine.ID() < entries[j].machine.ID()
		}
		return entries[i].started.Before(entries[j].started)
	})
	out := make([]wizard.State, len(entries))
	for i, e := range entries {
		out[i] = e.machine.Snapshot()
	}
	return out
}

// Drain waits until no wizard is submitting or ctx ends. Wizards still
// submitting at the deadline are logged and counted in the error.
func (s *Service) Drain(ctx context.Context) error {
	s.mu.RLock()
	machines := make([]*wizard.Machine, 0, len(s.sessions))
	for _, e := range s.sessions {
		machines = append(machines, e.machine)
	}
	s.mu.RUnlock()

	pending := 0
	for _, m := range machines {
		select {
		case <-m.Done():
			continue
		case <-ctx.Done():
		}
		if m.Phase() == wizard.PhaseSubmitting {
			pending++
			s.logger.Warn("submission still in flight at shutdown",
				zap.String("wizard_id", m.ID()),
				zap.String("flow", m.Definition().Flow))
		}
	}
	if pending > 0 {
		return fmt.Errorf("%d submissions still in flight: %w", pending, ctx.Err())
	}
	return nil
}

// Catalog exposes the flows this service can start.
func (s *Service) Catalog() *flows.Catalog { return s.catalog }
