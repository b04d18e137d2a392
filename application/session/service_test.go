package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txwizard/application/flows"
	"txwizard/domain/fee"
	"txwizard/domain/wizard"
)

func newTestService(t *testing.T, gw wizard.Gateway) *Service {
	t.Helper()
	schedule, err := fee.NewSchedule(map[string]fee.Instrument{
		"BTC": {Unit: "BTC", Precision: 8, Tiers: []fee.Tier{
			{Name: "medium", Fee: decimal.RequireFromString("0.0003")},
		}},
	})
	require.NoError(t, err)
	fees := fee.NewLive(schedule)
	catalog, err := flows.Default(flows.Options{Assets: []string{"BTC"}, Tiers: fees.Tiers})
	require.NoError(t, err)
	rates := func(string) (decimal.Decimal, error) { return decimal.RequireFromString("0.00005"), nil }
	return NewService(catalog, gw, fees, rates, nil)
}

func okGateway() wizard.Gateway {
	return wizard.GatewayFunc(func(ctx context.Context, d wizard.FrozenDraft) (wizard.Receipt, error) {
		return wizard.Receipt{Reference: "r-1"}, nil
	})
}

func toConfirming(t *testing.T, m *wizard.Machine) {
	t.Helper()
	for k, v := range map[string]string{
		"asset":        "BTC",
		"recipient":    "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",
		"sourceAmount": "1000",
		"tier":         "medium",
	} {
		require.NoError(t, m.SetField(k, v))
	}
	for i := 0; i < 2; i++ {
		ok, err := m.Advance()
		require.NoError(t, err)
		require.True(t, ok, "%+v", m.Snapshot())
	}
}

func TestService_StartAndGet(t *testing.T) {
	svc := newTestService(t, okGateway())

	m, err := svc.Start(flows.SendAsset)
	require.NoError(t, err)
	got, err := svc.Get(m.ID())
	require.NoError(t, err)
	assert.Same(t, m, got)

	_, err = svc.Start("wire")
	assert.ErrorIs(t, err, flows.ErrUnknownFlow)

	_, err = svc.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_SinkReceivesOrderedEvents(t *testing.T) {
	svc := newTestService(t, okGateway())
	var mu sync.Mutex
	var got []wizard.Event
	require.NoError(t, svc.AddSink(func(ev wizard.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}))

	m, err := svc.Start(flows.SendAsset)
	require.NoError(t, err)
	toConfirming(t, m)
	_, err = m.ConfirmAndSubmit(context.Background())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = m.Await(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	for i, ev := range got {
		assert.Equal(t, i+1, ev.Version)
		assert.Equal(t, m.ID(), ev.WizardID)
	}
	assert.Equal(t, wizard.EventSubmissionSucceeded, got[len(got)-1].Type)
}

func TestService_DiscardRefusedWhileSubmitting(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	gw := wizard.GatewayFunc(func(ctx context.Context, d wizard.FrozenDraft) (wizard.Receipt, error) {
		close(entered)
		<-release
		return wizard.Receipt{Reference: "r-1"}, nil
	})
	svc := newTestService(t, gw)
	m, err := svc.Start(flows.SendAsset)
	require.NoError(t, err)
	toConfirming(t, m)
	_, err = m.ConfirmAndSubmit(context.Background())
	require.NoError(t, err)
	<-entered

	assert.ErrorIs(t, svc.Discard(m.ID()), ErrSubmissionInFlight)

	close(release)
	<-m.Done()
	require.NoError(t, svc.Discard(m.ID()))
	_, err = svc.Get(m.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Discard(m.ID()), ErrNotFound)
}

func TestService_List(t *testing.T) {
	svc := newTestService(t, okGateway())
	a, err := svc.Start(flows.SendAsset)
	require.NoError(t, err)
	b, err := svc.Start(flows.OpenAccount)
	require.NoError(t, err)

	states := svc.List()
	require.Len(t, states, 2)
	ids := []string{states[0].WizardID, states[1].WizardID}
	assert.ElementsMatch(t, []string{a.ID(), b.ID()}, ids)
	assert.Equal(t, wizard.PhaseEditing, states[0].Phase)
}

func TestService_DrainWaitsForInFlightSubmissions(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	gw := wizard.GatewayFunc(func(ctx context.Context, d wizard.FrozenDraft) (wizard.Receipt, error) {
		close(entered)
		<-release
		return wizard.Receipt{Reference: "r-1"}, nil
	})
	svc := newTestService(t, gw)
	m, err := svc.Start(flows.SendAsset)
	require.NoError(t, err)
	_, err = svc.Start(flows.OpenAccount)
	require.NoError(t, err)
	toConfirming(t, m)
	_, err = m.ConfirmAndSubmit(context.Background())
	require.NoError(t, err)
	<-entered

	drained := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		drained <- svc.Drain(ctx)
	}()

	select {
	case <-drained:
		t.Fatal("Drain returned while a submission was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-drained)
	assert.Equal(t, wizard.PhaseSucceeded, m.Phase())
}

func TestService_DrainReportsSubmissionsPastDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	entered := make(chan struct{})
	gw := wizard.GatewayFunc(func(ctx context.Context, d wizard.FrozenDraft) (wizard.Receipt, error) {
		close(entered)
		<-release
		return wizard.Receipt{Reference: "r-1"}, nil
	})
	svc := newTestService(t, gw)
	m, err := svc.Start(flows.SendAsset)
	require.NoError(t, err)
	toConfirming(t, m)
	_, err = m.ConfirmAndSubmit(context.Background())
	require.NoError(t, err)
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = svc.Drain(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "1 submissions still in flight")
}

func TestService_DrainWithNothingInFlight(t *testing.T) {
	svc := newTestService(t, okGateway())
	_, err := svc.Start(flows.SendAsset)
	require.NoError(t, err)
	assert.NoError(t, svc.Drain(context.Background()))
}
