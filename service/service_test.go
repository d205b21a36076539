package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rangesecurity/oracle/callback"
	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/engine"
	"github.com/rangesecurity/oracle/service"
	"github.com/rangesecurity/oracle/stream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryStore struct {
	saved []common.Snapshot
}

func (m *memoryStore) SaveSnapshot(_ context.Context, snap common.Snapshot) error {
	m.saved = append(m.saved, snap)
	return nil
}

// chanInbox replays pre-loaded messages per stream key.
type chanInbox struct {
	messages map[string][]*stream.Message
}

func (c *chanInbox) InboxKey() string { return "test:inbox" }
func (c *chanInbox) AcksKey() string  { return "test:acks" }

func (c *chanInbox) Consume(ctx context.Context, key, _ string, outCh chan<- *stream.Message) {
	for _, msg := range c.messages[key] {
		select {
		case outCh <- msg:
		case <-ctx.Done():
			return
		}
	}
	<-ctx.Done()
}

func setup(t *testing.T, inbox service.Inbox, store service.Store, opts ...engine.Option) (*service.Service, *fakeClock, common.Query) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	eng, err := engine.New(common.DefaultParameters(), nil, append([]engine.Option{engine.WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	s, err := service.NewService(context.Background(), eng, inbox, store)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	var q common.Query
	require.NoError(t, s.Do(func(e *engine.Engine) error {
		for _, name := range []string{"alice", "bob", "carol"} {
			if _, err := e.RegisterVoter(name, common.NewAmount(1000), "", ""); err != nil {
				return err
			}
		}
		q, err = e.CreateQuery(context.Background(), engine.CreateQueryRequest{
			Creator:      "creator",
			Description:  "Will X happen?",
			Outcomes:     []string{"Yes", "No"},
			MinVotes:     3,
			RewardAmount: common.NewAmount(300),
		})
		return err
	}))
	return s, clock, q
}

func commitMsg(id string, queryID uint64, voter, value string) *stream.Message {
	return &stream.Message{
		MessageID:  id,
		Type:       stream.MessageCommit,
		QueryID:    queryID,
		Voter:      voter,
		CommitHash: common.CommitHash(value, "salt-"+voter, voter),
	}
}

func revealMsg(id string, queryID uint64, voter, value string) *stream.Message {
	return &stream.Message{
		MessageID:  id,
		Type:       stream.MessageReveal,
		QueryID:    queryID,
		Voter:      voter,
		Value:      value,
		Salt:       "salt-" + voter,
		Confidence: 80,
	}
}

func TestEarlyRevealsAreParked(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	s, clock, q := setup(t, nil, store)

	votes := map[string]string{"alice": "Yes", "bob": "Yes", "carol": "No"}
	for voter, value := range votes {
		require.NoError(t, s.HandleMessage(ctx, commitMsg("c-"+voter, q.ID, voter, value)))
		require.NoError(t, s.HandleMessage(ctx, revealMsg("r-"+voter, q.ID, voter, value)))
	}
	require.Equal(t, 3, s.Parked())

	// replays are ignored
	require.ErrorIs(t, s.HandleMessage(ctx, commitMsg("c-alice", q.ID, "alice", "Yes")), service.ErrDuplicateMessage)

	clock.Advance(time.Hour)
	result, err := s.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, []uint64{q.ID}, result.RevealOpened)
	require.Equal(t, 3, result.Revealed)
	require.Zero(t, s.Parked())

	clock.Advance(time.Hour)
	result, err = s.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, []uint64{q.ID}, result.Resolved)

	require.Len(t, store.saved, 2)
	last := store.saved[1]
	require.Len(t, last.Queries, 1)
	require.Equal(t, common.StatusResolved, last.Queries[0].Status)
	require.Equal(t, "Yes", last.Queries[0].FinalValue())
}

func TestParkedRevealDroppedWhenQueryExpires(t *testing.T) {
	ctx := context.Background()
	s, clock, q := setup(t, nil, nil)

	require.NoError(t, s.HandleMessage(ctx, commitMsg("c-alice", q.ID, "alice", "Yes")))
	require.NoError(t, s.HandleMessage(ctx, revealMsg("r-alice", q.ID, "alice", "Yes")))
	require.Equal(t, 1, s.Parked())

	clock.Advance(time.Hour)
	result, err := s.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, []uint64{q.ID}, result.Expired)
	require.Zero(t, result.Revealed)
	require.Zero(t, s.Parked())
}

func TestConsumesInbox(t *testing.T) {
	inbox := &chanInbox{messages: map[string][]*stream.Message{}}
	s, _, q := setup(t, inbox, nil)
	inbox.messages["test:inbox"] = []*stream.Message{
		commitMsg("1", q.ID, "alice", "Yes"),
		commitMsg("2", q.ID, "bob", "No"),
	}
	s.Start(time.Hour)

	require.Eventually(t, func() bool {
		var commits int
		_ = s.View(func(e *engine.Engine) error {
			got, err := e.Query(q.ID)
			commits = got.CommitCount
			return err
		})
		return commits == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPausedMessageCanBeRedelivered(t *testing.T) {
	ctx := context.Background()
	s, _, q := setup(t, nil, nil, engine.WithAdmin("admin"))

	require.NoError(t, s.Do(func(e *engine.Engine) error { return e.Pause("admin") }))
	msg := commitMsg("c-alice", q.ID, "alice", "Yes")
	require.ErrorIs(t, s.HandleMessage(ctx, msg), common.ErrProtocolPaused)

	require.NoError(t, s.Do(func(e *engine.Engine) error { return e.Unpause("admin") }))
	require.NoError(t, s.HandleMessage(ctx, msg))
	require.ErrorIs(t, s.HandleMessage(ctx, msg), service.ErrDuplicateMessage)

	// other rejections are final
	unknown := commitMsg("c-unknown", 99, "bob", "Yes")
	require.ErrorIs(t, s.HandleMessage(ctx, unknown), common.ErrQueryNotFound)
	require.ErrorIs(t, s.HandleMessage(ctx, unknown), service.ErrDuplicateMessage)
}

func TestTickDeliversCallbacksOutsideLock(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	dispatcher, err := callback.NewDispatcher(callback.DefaultConfig(), callback.DelivererFunc(func(ctx context.Context, _ common.CallbackTarget, _ common.Notification) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}), nil, zerolog.Nop())
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	eng, err := engine.New(common.DefaultParameters(), dispatcher, engine.WithClock(clock))
	require.NoError(t, err)
	s, err := service.NewService(ctx, eng, nil, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	voters := []string{"alice", "bob", "carol"}
	var q common.Query
	require.NoError(t, s.Do(func(e *engine.Engine) error {
		for _, name := range voters {
			if _, err := e.RegisterVoter(name, common.NewAmount(1000), "", ""); err != nil {
				return err
			}
		}
		deadline := clock.Now().Add(2 * time.Hour)
		q, err = e.RegisterExternalMarket(ctx, engine.ExternalMarketRequest{
			Requester:   "market",
			Description: "Will the market close above 100?",
			Outcomes:    []string{"Yes", "No"},
			Deadline:    &deadline,
			Callback:    common.CallbackTarget{Kind: common.TargetHTTP, Address: "http://market.local/resolve"},
			Fee:         common.NewAmount(50),
		})
		return err
	}))
	for _, voter := range voters {
		require.NoError(t, s.HandleMessage(ctx, commitMsg("c-"+voter, q.ID, voter, "Yes")))
		require.NoError(t, s.HandleMessage(ctx, revealMsg("r-"+voter, q.ID, voter, "Yes")))
	}
	clock.Advance(time.Hour)
	result, err := s.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, result.Revealed)

	clock.Advance(time.Hour)
	done := make(chan service.TickResult, 1)
	go func() {
		result, _ := s.Tick(ctx)
		done <- result
	}()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("callback was never delivered")
	}

	// the engine stays writable while the delivery is in flight
	written := make(chan error, 1)
	go func() {
		written <- s.Do(func(e *engine.Engine) error {
			_, err := e.RegisterVoter("dave", common.NewAmount(1000), "", "")
			return err
		})
	}()
	select {
	case err := <-written:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine locked during callback delivery")
	}

	close(release)
	select {
	case result = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tick did not finish")
	}
	require.Equal(t, []uint64{q.ID}, result.Resolved)
	require.Equal(t, 1, result.Delivered)

	require.NoError(t, s.View(func(e *engine.Engine) error {
		rec, err := e.Callback(q.ID)
		require.NoError(t, err)
		require.Equal(t, common.CallbackDelivered, rec.Status)
		require.Equal(t, 1, rec.Attempts)
		return nil
	}))
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
