package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"txwizard/domain/validation"
	pkguuid "txwizard/pkg/uuid"
)

// Option configures a Machine.
type Option func(*Machine)

// WithID overrides the generated wizard id.
func WithID(id string) Option { return func(m *Machine) { m.id = id } }

// WithFees sets the fee schedule consulted for derived values.
func WithFees(f FeeResolver) Option { return func(m *Machine) { m.fees = f } }

// WithRates sets the rate source consulted for derived values.
func WithRates(r RateFunc) Option { return func(m *Machine) { m.rates = r } }

func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSubmitTimeout bounds a single gateway call. Zero means unbounded.
func WithSubmitTimeout(d time.Duration) Option { return func(m *Machine) { m.submitTimeout = d } }

func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }

type subscription struct {
	id int
	fn Listener
}

// Machine drives one wizard instance through
// editing → confirming → submitting → succeeded | failed.
//
// Operations are totally ordered by an internal lock. The only suspension
// is the gateway call, which runs on its own goroutine while the machine
// reports PhaseSubmitting.
type Machine struct {
	id            string
	def           *Definition
	gateway       Gateway
	fees          FeeResolver
	rates         RateFunc
	logger        *zap.Logger
	submitTimeout time.Duration
	now           func() time.Time

	mu          sync.Mutex
	phase       Phase
	step        int
	values      map[string]string
	errors      validation.FieldErrors
	computation *ComputationError
	frozen      *FrozenDraft
	receipt     *Receipt
	failure     *Failure
	attempts    int
	version     int
	done        chan struct{}

	// pending holds events queued under mu, in version order.
	pending []Event
	// notifyMu serializes delivery. It is never acquired while mu is held.
	notifyMu sync.Mutex

	subsMu    sync.RWMutex
	listeners []subscription
	nextSub   int
}

// New starts a wizard instance at editing(0) with an empty draft.
func New(def *Definition, gw Gateway, opts ...Option) (*Machine, error) {
	if def == nil {
		return nil, errors.New("definition is nil")
	}
	if gw == nil {
		return nil, ErrNoGateway
	}
	m := &Machine{
		id:      pkguuid.New(),
		def:     def,
		gateway: gw,
		logger:  zap.NewNop(),
		now:     time.Now,
		phase:   PhaseEditing,
		values:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	if def.Pricing != nil && (m.fees == nil || m.rates == nil) {
		return nil, fmt.Errorf("flow %q: %w", def.Flow, ErrMissingPricing)
	}
	m.logger = m.logger.With(zap.String("wizard_id", m.id), zap.String("flow", def.Flow))
	return m, nil
}

func (m *Machine) ID() string { return m.id }

func (m *Machine) Definition() *Definition { return m.def }

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Derived recomputes derived values from the current draft and the current
// fee/rate inputs. Once a draft is frozen the frozen projection is returned.
func (m *Machine) Derived() Derived {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen != nil {
		return m.frozen.Derived
	}
	return m.deriveLocked()
}

// Subscribe registers a listener and returns its cancel function.
func (m *Machine) Subscribe(l Listener) (unsubscribe func()) {
	m.subsMu.Lock()
	m.nextSub++
	id := m.nextSub
	m.listeners = append(m.listeners, subscription{id: id, fn: l})
	m.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subsMu.Lock()
			defer m.subsMu.Unlock()
			for i, s := range m.listeners {
				if s.id == id {
					m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// SetField updates one draft field and clears that field's error.
func (m *Machine) SetField(name, value string) error {
	m.mu.Lock()
	if m.phase != PhaseEditing {
		return m.refuseLocked("SetField")
	}
	if _, ok := m.def.StepOf(name); !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	m.values[name] = value
	delete(m.errors, name)
	m.computation = nil
	m.emitLocked(EventFieldSet)
	return nil
}

// Advance validates the current step and moves forward. It reports false
// when validation or value derivation blocked the move; the reasons are in
// the snapshot.
func (m *Machine) Advance() (bool, error) {
	m.mu.Lock()
	if m.phase != PhaseEditing {
		return false, m.refuseLocked("Advance")
	}
	values := validation.Values(m.values)
	step := m.def.Steps[m.step]

	if res := validation.Validate(step.Step, values); !res.OK {
		m.errors = res.Errors
		m.computation = nil
		m.logger.Debug("step rejected", zap.String("step", step.Name), zap.Int("errors", len(res.Errors)))
		m.emitLocked(EventStepRejected)
		return false, nil
	}
	last := m.step == m.def.LastStep()
	if last {
		// Earlier steps' fields stay editable after the user moved past them.
		for i, s := range m.def.Steps[:m.step] {
			if res := validation.Validate(s.Step, values); !res.OK {
				m.step = i
				m.errors = res.Errors
				m.computation = nil
				m.emitLocked(EventStepRejected)
				return false, nil
			}
		}
	}
	if m.step >= m.def.pricingGate {
		if d := m.deriveLocked(); d.Err != nil {
			m.errors = nil
			m.computation = d.Err
			m.logger.Debug("derived values unavailable", zap.String("step", step.Name), zap.String("kind", string(d.Err.Kind)))
			m.emitLocked(EventStepRejected)
			return false, nil
		}
	}
	m.errors = nil
	m.computation = nil

	if !last {
		m.step++
		m.emitLocked(EventStepAdvanced)
		return true, nil
	}
	m.phase = PhaseConfirming
	m.logger.Debug("confirmation reached")
	m.emitLocked(EventConfirmationReached)
	return true, nil
}

// Back moves to the previous step, or from confirming to the last step.
// Entered values are kept.
func (m *Machine) Back() error {
	m.mu.Lock()
	switch {
	case m.phase == PhaseConfirming:
		m.phase = PhaseEditing
		m.step = m.def.LastStep()
	case m.phase == PhaseEditing && m.step > 0:
		m.step--
	default:
		return m.refuseLocked("Back")
	}
	m.errors = nil
	m.computation = nil
	m.emitLocked(EventSteppedBack)
	return nil
}

// ConfirmAndSubmit freezes the draft and hands it to the gateway exactly
// once. It returns without waiting for the gateway; use Await or a listener
// for the outcome.
//
// While a submission is in flight further calls are ignored. From a
// retryable failure the same frozen draft is sent again.
func (m *Machine) ConfirmAndSubmit(ctx context.Context) (bool, error) {
	m.mu.Lock()
	switch m.phase {
	case PhaseSubmitting:
		m.mu.Unlock()
		m.logger.Debug("duplicate submit ignored")
		return false, nil

	case PhaseConfirming:
		d := m.deriveLocked()
		if d.Err != nil {
			m.computation = d.Err
			m.emitLocked(EventSubmissionBlocked)
			return false, nil
		}
		m.computation = nil
		m.frozen = &FrozenDraft{
			WizardID:       m.id,
			Flow:           m.def.Flow,
			IdempotencyKey: pkguuid.NewIdempotencyKey(m.id),
			Fields:         cloneFields(m.values),
			Derived:        d,
			FrozenAt:       m.now(),
		}

	case PhaseFailed:
		if m.failure == nil || !m.failure.Retryable {
			return false, m.refuseLocked("ConfirmAndSubmit")
		}
		m.failure = nil

	default:
		return false, m.refuseLocked("ConfirmAndSubmit")
	}

	m.phase = PhaseSubmitting
	m.attempts++
	attempt := m.attempts
	draft := *m.frozen
	draft.Fields = cloneFields(m.frozen.Fields)
	done := make(chan struct{})
	m.done = done

	m.logger.Info("submission started",
		zap.String("idempotency_key", draft.IdempotencyKey),
		zap.Int("attempt", attempt))
	m.emitLocked(EventSubmissionStarted)

	go m.submit(ctx, draft, attempt, done)
	return true, nil
}

// Restart leaves a failed submission and returns to the last editable step
// with the draft unfrozen. A later submission gets a new idempotency key.
func (m *Machine) Restart() error {
	m.mu.Lock()
	if m.phase != PhaseFailed {
		return m.refuseLocked("Restart")
	}
	m.phase = PhaseEditing
	m.step = m.def.LastStep()
	m.frozen = nil
	m.failure = nil
	m.errors = nil
	m.computation = nil
	m.emitLocked(EventRestarted)
	return nil
}

// Done is closed when the in-flight submission resolves. Outside
// PhaseSubmitting it is already closed.
func (m *Machine) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseSubmitting {
		return m.done
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Await blocks until no submission is in flight and returns the state.
func (m *Machine) Await(ctx context.Context) (State, error) {
	select {
	case <-m.Done():
		return m.Snapshot(), nil
	case <-ctx.Done():
		return m.Snapshot(), ctx.Err()
	}
}

// submit runs the gateway call. The caller's cancellation is detached: a
// started submission always reaches a terminal phase.
func (m *Machine) submit(parent context.Context, draft FrozenDraft, attempt int, done chan struct{}) {
	ctx := context.WithoutCancel(parent)
	if m.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.submitTimeout)
		defer cancel()
	}
	receipt, err := m.callGateway(ctx, draft)
	m.resolve(draft, attempt, receipt, err)
	close(done)
}

func (m *Machine) callGateway(ctx context.Context, draft FrozenDraft) (r Receipt, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = Transient("gateway panic", fmt.Errorf("%v", p))
		}
	}()
	return m.gateway.Submit(ctx, draft)
}

func (m *Machine) resolve(draft FrozenDraft, attempt int, r Receipt, err error) {
	if err == nil && r.Reference == "" {
		err = Transient("empty receipt reference", nil)
	}

	m.mu.Lock()
	if err != nil {
		f := classify(err, attempt)
		m.failure = &f
		m.phase = PhaseFailed
		m.logger.Warn("submission failed",
			zap.String("kind", string(f.Kind)),
			zap.String("reason", f.Reason),
			zap.Bool("retryable", f.Retryable),
			zap.Int("attempt", attempt),
			zap.Error(err))
		m.emitLocked(EventSubmissionFailed)
		return
	}

	r.IdempotencyKey = draft.IdempotencyKey
	r.Draft = cloneFields(draft.Fields)
	r.Derived = draft.Derived
	if r.CommittedAt.IsZero() {
		r.CommittedAt = m.now()
	}
	m.receipt = &r
	m.phase = PhaseSucceeded
	m.logger.Info("submission succeeded",
		zap.String("reference", r.Reference),
		zap.Int("attempt", attempt))
	m.emitLocked(EventSubmissionSucceeded)
}

func (m *Machine) deriveLocked() Derived {
	return derive(m.def.Pricing, validation.Values(m.values), m.fees, m.rates)
}

// refuseLocked releases mu and reports an illegal-phase call.
func (m *Machine) refuseLocked(op string) error {
	phase := m.phase
	m.mu.Unlock()
	m.logger.Debug("operation refused", zap.String("op", op), zap.String("phase", string(phase)))
	return &PhaseError{Op: op, Phase: phase}
}

func (m *Machine) snapshotLocked() State {
	s := State{
		WizardID:    m.id,
		Flow:        m.def.Flow,
		Phase:       m.phase,
		StepIndex:   m.step,
		StepName:    m.def.Steps[m.step].Name,
		Draft:       cloneFields(m.values),
		Errors:      m.errors.Clone(),
		Computation: m.computation,
		Attempts:    m.attempts,
		Version:     m.version,
	}
	if m.receipt != nil {
		r := *m.receipt
		r.Draft = cloneFields(r.Draft)
		s.Receipt = &r
	}
	if m.failure != nil {
		f := *m.failure
		s.Failure = &f
	}
	return s
}

// emitLocked queues an event and delivers pending events to listeners. It
// must be called with mu held and releases it before listeners run.
func (m *Machine) emitLocked(t EventType) {
	m.version++
	ev := Event{
		EventID:   pkguuid.New(),
		WizardID:  m.id,
		Flow:      m.def.Flow,
		Type:      t,
		Version:   m.version,
		Timestamp: m.now(),
	}
	ev.State = m.snapshotLocked()
	m.pending = append(m.pending, ev)
	m.mu.Unlock()

	m.deliver()
}

// deliver drains the pending queue in order. Events queued by other
// goroutines while a delivery runs are handed out by whoever holds
// notifyMu.
func (m *Machine) deliver() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return
		}
		ev := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		m.subsMu.RLock()
		subs := append([]subscription(nil), m.listeners...)
		m.subsMu.RUnlock()
		for _, s := range subs {
			s.fn(ev)
		}
	}
}
