package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txwizard/domain/validation"
	"txwizard/domain/wizard"
)

func sampleEvent() wizard.Event {
	return wizard.Event{
		EventID:   "evt-1",
		WizardID:  "w-1",
		Flow:      "send-asset",
		Type:      wizard.EventSubmissionFailed,
		Version:   7,
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		State: wizard.State{
			WizardID: "w-1",
			Flow:     "send-asset",
			Phase:    wizard.PhaseFailed,
			Draft:    map[string]string{"sourceAmount": "1000"},
			Errors:   validation.FieldErrors{"tier": validation.OutOfRange},
			Failure:  &wizard.Failure{Kind: wizard.FailureTransient, Reason: "timeout", Retryable: true, Attempt: 1},
		},
	}
}

func TestEnvelope_RoundTrip(t *testing.T) {
	ev := sampleEvent()
	body, err := Encode(ev, "txwizard")
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Equal(t, "wizard.submission_failed", raw["event_type"])
	assert.Equal(t, map[string]any{"source": "txwizard"}, raw["metadata"])

	got, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, ev.EventID, got.EventID)
	assert.Equal(t, ev.Type, got.Type)
	assert.True(t, ev.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, validation.OutOfRange, got.State.Errors["tier"])
	require.NotNil(t, got.State.Failure)
	assert.True(t, got.State.Failure.Retryable)
}

func TestEnvelope_DecimalsKeepPrecision(t *testing.T) {
	ev := sampleEvent()
	ev.State.Phase = wizard.PhaseSucceeded
	ev.State.Receipt = &wizard.Receipt{
		Reference: "txn-1",
		Derived:   wizard.Derived{Available: true, Total: decimal.RequireFromString("0.05030000")},
	}
	body, err := Encode(ev, "")
	require.NoError(t, err)
	got, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, "0.0503", got.State.Receipt.Derived.Total.String())
}

func TestDecode_Rejects(t *testing.T) {
	_, err := Decode([]byte(`{`))
	assert.Error(t, err)
	_, err = Decode([]byte(`{"event_type":"wizard.field_set"}`))
	assert.Error(t, err)
}

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
	got  chan struct{}
}

func (p *fakePublisher) Publish(_ context.Context, key string, _ []byte) error {
	p.mu.Lock()
	p.keys = append(p.keys, key)
	p.mu.Unlock()
	p.got <- struct{}{}
	return nil
}

func TestRelay_PublishesInOrder(t *testing.T) {
	pub := &fakePublisher{got: make(chan struct{}, 4)}
	r := NewRelay(pub, "txwizard", 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	first := sampleEvent()
	first.Type = wizard.EventSubmissionStarted
	r.Enqueue(first)
	r.Enqueue(sampleEvent())
	for i := 0; i < 2; i++ {
		select {
		case <-pub.got:
		case <-time.After(2 * time.Second):
			t.Fatal("relay did not publish")
		}
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, []string{"wizard.submission_started", "wizard.submission_failed"}, pub.keys)
}

func TestRelay_DropsWhenFull(t *testing.T) {
	r := NewRelay(&fakePublisher{got: make(chan struct{}, 1)}, "", 1, nil)
	r.Enqueue(sampleEvent())
	r.Enqueue(sampleEvent())
	assert.Equal(t, int64(1), r.Dropped())
}
