package callback_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rangesecurity/oracle/callback"
	"github.com/rangesecurity/oracle/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func resolvedExternal(id uint64, target common.CallbackTarget) common.Query {
	outcome := 1
	return common.Query{
		ID:                  id,
		Outcomes:            []string{"Yes", "No"},
		Status:              common.StatusResolved,
		FinalOutcome:        &outcome,
		AggregateConfidence: 75,
		ResolvedAt:          start,
		Source:              common.Source{Kind: common.SourceExternal, Callback: &target},
	}
}

func newDispatcher(t *testing.T, d callback.Deliverer) *callback.Dispatcher {
	t.Helper()
	cfg := callback.DefaultConfig()
	cfg.BaseBackoff = time.Second
	cfg.MaxBackoff = time.Minute
	dispatcher, err := callback.NewDispatcher(cfg, d, nil, zerolog.Nop())
	require.NoError(t, err)
	return dispatcher
}

func TestEnqueueWaitsForSweep(t *testing.T) {
	var got common.Notification
	var calls int
	d := newDispatcher(t, callback.DelivererFunc(func(_ context.Context, _ common.CallbackTarget, n common.Notification) error {
		calls++
		got = n
		return nil
	}))
	target := common.CallbackTarget{Kind: common.TargetHTTP, Address: "http://market.local/resolve", Data: "market-7"}
	rec, err := d.Enqueue(resolvedExternal(7, target), start)
	require.NoError(t, err)
	require.Equal(t, common.CallbackPending, rec.Status)
	require.Zero(t, rec.Attempts)
	require.Equal(t, start, rec.NextRetryAt)
	require.Zero(t, calls)

	again, err := d.Enqueue(resolvedExternal(7, target), start.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, rec, again)

	report := d.Sweep(context.Background(), start)
	require.Equal(t, callback.SweepReport{Attempted: 1, Delivered: 1}, report)
	require.Equal(t, 1, calls)
	require.Equal(t, uint64(7), got.QueryID)
	require.Equal(t, "No", got.OutcomeValue)
	require.Equal(t, uint8(75), got.AggregateConfidence)
	require.Equal(t, "market-7", got.CallbackData)

	rec, err = d.Get(7)
	require.NoError(t, err)
	require.Equal(t, common.CallbackDelivered, rec.Status)
	require.Equal(t, 1, rec.Attempts)
}

func TestRetryScheduleUntilFailed(t *testing.T) {
	var calls int32
	d := newDispatcher(t, callback.DelivererFunc(func(context.Context, common.CallbackTarget, common.Notification) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("connection refused")
	}))
	target := common.CallbackTarget{Kind: common.TargetHTTP, Address: "http://unreachable.invalid"}
	_, err := d.Enqueue(resolvedExternal(1, target), start)
	require.NoError(t, err)
	require.Equal(t, 1, d.Sweep(context.Background(), start).Attempted)
	rec, err := d.Get(1)
	require.NoError(t, err)
	require.Equal(t, common.CallbackPending, rec.Status)
	require.Equal(t, start.Add(time.Second), rec.NextRetryAt)
	require.Equal(t, 0, rec.BackoffExponent)

	// nothing is due before the retry time
	require.Equal(t, callback.SweepReport{}, d.Sweep(context.Background(), start.Add(500*time.Millisecond)))

	now := start
	wantDelays := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, want := range wantDelays {
		now = rec.NextRetryAt
		report := d.Sweep(context.Background(), now)
		require.Equal(t, 1, report.Attempted)
		rec, err = d.Get(1)
		require.NoError(t, err)
		require.Equal(t, i+2, rec.Attempts)
		require.Equal(t, now.Add(want), rec.NextRetryAt)
	}

	report := d.Sweep(context.Background(), rec.NextRetryAt)
	require.Equal(t, 1, report.Failed)
	rec, err = d.Get(1)
	require.NoError(t, err)
	require.Equal(t, common.CallbackFailed, rec.Status)
	require.Equal(t, 5, rec.Attempts)
	require.Equal(t, "connection refused", rec.LastError)
	require.EqualValues(t, 5, atomic.LoadInt32(&calls))

	// failed is terminal
	require.Equal(t, callback.SweepReport{}, d.Sweep(context.Background(), rec.NextRetryAt.Add(24*time.Hour)))
	pending, failed := d.Counts()
	require.Zero(t, pending)
	require.Equal(t, 1, failed)
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	d := newDispatcher(t, callback.DelivererFunc(func(context.Context, common.CallbackTarget, common.Notification) error {
		return errors.New("timeout")
	}))
	target := common.CallbackTarget{Kind: common.TargetStream, Address: "market"}
	_, err := d.Enqueue(resolvedExternal(3, target), start)
	require.NoError(t, err)

	rec, err := d.Acknowledge(3, start.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, common.CallbackDelivered, rec.Status)

	again, err := d.Acknowledge(3, start.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, rec, again)

	_, err = d.Acknowledge(99, start)
	require.ErrorIs(t, err, common.ErrCallbackNotFound)
}

func TestAcknowledgeWhileInFlight(t *testing.T) {
	var calls int
	d := newDispatcher(t, callback.DelivererFunc(func(context.Context, common.CallbackTarget, common.Notification) error {
		calls++
		return errors.New("timeout")
	}))
	target := common.CallbackTarget{Kind: common.TargetHTTP, Address: "http://market.local/resolve"}
	_, err := d.Enqueue(resolvedExternal(4, target), start)
	require.NoError(t, err)

	due := d.Due(start)
	require.Len(t, due, 1)
	// handed out records are not handed out twice
	require.Empty(t, d.Due(start.Add(time.Minute)))

	results := d.Deliver(context.Background(), due)
	_, err = d.Acknowledge(4, start.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, callback.SweepReport{}, d.Apply(due, results, start.Add(2*time.Second)))
	require.Equal(t, 1, calls)

	rec, err := d.Get(4)
	require.NoError(t, err)
	require.Equal(t, common.CallbackDelivered, rec.Status)
	require.Zero(t, rec.Attempts)
	require.Empty(t, rec.LastError)
}

func TestSupports(t *testing.T) {
	require.False(t, newDispatcher(t, nil).Supports(common.TargetHTTP))

	plain := newDispatcher(t, callback.DelivererFunc(func(context.Context, common.CallbackTarget, common.Notification) error { return nil }))
	require.True(t, plain.Supports(common.TargetChain))

	router := callback.NewRouter().Handle(common.TargetHTTP, callback.NewHTTPDeliverer(nil))
	routed := newDispatcher(t, router)
	require.True(t, routed.Supports(common.TargetHTTP))
	require.False(t, routed.Supports(common.TargetStream))
}

func TestRetryDelayCapped(t *testing.T) {
	d := newDispatcher(t, nil)
	require.Equal(t, time.Second, d.RetryDelay(1))
	require.Equal(t, 8*time.Second, d.RetryDelay(4))
	require.Equal(t, time.Minute, d.RetryDelay(12))
}

func TestEnqueueRejectsInternalQuery(t *testing.T) {
	d := newDispatcher(t, nil)
	outcome := 0
	_, err := d.Enqueue(common.Query{ID: 1, Status: common.StatusResolved, FinalOutcome: &outcome}, start)
	require.ErrorIs(t, err, common.ErrInvalidCallbackTarget)
}

func TestRouter(t *testing.T) {
	var hits int
	r := callback.NewRouter().Handle(common.TargetStream, callback.DelivererFunc(func(context.Context, common.CallbackTarget, common.Notification) error {
		hits++
		return nil
	}))
	require.NoError(t, r.Deliver(context.Background(), common.CallbackTarget{Kind: common.TargetStream, Address: "x"}, common.Notification{}))
	require.ErrorIs(t, r.Deliver(context.Background(), common.CallbackTarget{Kind: common.TargetChain, Address: "x"}, common.Notification{}), callback.ErrNoDeliverer)
	require.Equal(t, 1, hits)
}

func TestHTTPDeliverer(t *testing.T) {
	var status int32 = http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "9", r.Header.Get("X-Oracle-Query-Id"))
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()

	h := callback.NewHTTPDeliverer(srv.Client())
	target := common.CallbackTarget{Kind: common.TargetHTTP, Address: srv.URL}
	require.NoError(t, h.Deliver(context.Background(), target, common.Notification{QueryID: 9}))

	atomic.StoreInt32(&status, http.StatusInternalServerError)
	for i := 0; i < 3; i++ {
		require.Error(t, h.Deliver(context.Background(), target, common.Notification{QueryID: 9}))
	}
	// breaker is open now, even though the server would answer
	atomic.StoreInt32(&status, http.StatusOK)
	err := h.Deliver(context.Background(), target, common.Notification{QueryID: 9})
	require.ErrorContains(t, err, "unavailable")

	require.Error(t, h.Deliver(context.Background(), common.CallbackTarget{Kind: common.TargetHTTP, Address: "not a url"}, common.Notification{}))
}
