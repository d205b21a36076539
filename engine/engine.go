// Package engine is the oracle registry: it owns queries and votes, drives the
// commit-reveal lifecycle and calls into the ledger, incentive and callback
// components when queries close.
//
// An Engine is not safe for concurrent use. Callers serialize access, see service.Service.
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/rangesecurity/oracle/callback"
	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/incentive"
	"github.com/rangesecurity/oracle/ledger"
	"github.com/rangesecurity/oracle/metrics"
	"github.com/rs/zerolog"
)

type Engine struct {
	params     common.ProtocolParameters
	clock      common.Clock
	admin      string
	ledger     *ledger.Ledger
	incentives *incentive.Engine
	callbacks  *callback.Dispatcher

	queries map[uint64]*common.Query
	votes   map[uint64]map[string]*common.Vote
	regs    common.Registers

	metrics metrics.Collector
	logger  zerolog.Logger
}

type Option func(*options)

type options struct {
	clock    common.Clock
	admin    string
	splitter incentive.RewardSplitter
	metrics  metrics.Collector
	logger   zerolog.Logger
}

func WithClock(c common.Clock) Option { return func(o *options) { o.clock = c } }

// WithAdmin sets the address allowed to pause and unpause the protocol.
func WithAdmin(address string) Option { return func(o *options) { o.admin = address } }

func WithRewardSplitter(s incentive.RewardSplitter) Option {
	return func(o *options) { o.splitter = s }
}

func WithMetrics(c metrics.Collector) Option { return func(o *options) { o.metrics = c } }

func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.logger = l } }

// New creates an empty registry. dispatcher may be nil when no external
// markets are expected; RegisterExternalMarket then rejects every target.
func New(params common.ProtocolParameters, dispatcher *callback.Dispatcher, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	o := options{
		clock:   common.SystemClock{},
		metrics: metrics.NewNoopCollector(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	incentives, err := incentive.New(params, o.splitter, o.logger)
	if err != nil {
		return nil, err
	}
	if dispatcher == nil {
		if dispatcher, err = callback.NewDispatcher(callback.DefaultConfig(), nil, o.metrics, o.logger); err != nil {
			return nil, err
		}
	}
	return &Engine{
		params:     params,
		clock:      o.clock,
		admin:      o.admin,
		ledger:     ledger.New(params, o.logger),
		incentives: incentives,
		callbacks:  dispatcher,
		queries:    make(map[uint64]*common.Query),
		votes:      make(map[uint64]map[string]*common.Vote),
		regs:       common.Registers{NextQueryID: 1},
		metrics:    o.metrics,
		logger:     o.logger.With().Str("component", "engine").Logger(),
	}, nil
}

func (e *Engine) Params() common.ProtocolParameters { return e.params }

// Registers returns the scalar registers with the total stake taken from the ledger.
func (e *Engine) Registers() common.Registers {
	regs := e.regs
	regs.TotalStake = e.ledger.TotalStake()
	return regs
}

// Dispatcher exposes the callback dispatcher so the service can sweep retries.
func (e *Engine) Dispatcher() *callback.Dispatcher { return e.callbacks }

// Snapshot copies the full registry state in deterministic order.
func (e *Engine) Snapshot() common.Snapshot {
	snap := common.Snapshot{
		Params:    e.params,
		Registers: e.Registers(),
		Voters:    e.ledger.All(),
		Callbacks: e.callbacks.All(),
	}
	for _, id := range e.queryIDs() {
		snap.Queries = append(snap.Queries, e.queries[id].Clone())
		snap.Votes = append(snap.Votes, e.queryVotes(id)...)
	}
	return snap
}

// Restore replaces the registry state with snap. Parameters are not restored:
// the running configuration wins, a mismatch is only logged.
func (e *Engine) Restore(snap common.Snapshot) error {
	if snap.Params != (common.ProtocolParameters{}) && snap.Params != e.params {
		e.logger.Warn().Msg("restoring snapshot taken with different protocol parameters")
	}
	queries := make(map[uint64]*common.Query, len(snap.Queries))
	var maxID uint64
	for i := range snap.Queries {
		q := snap.Queries[i].Clone()
		queries[q.ID] = &q
		if q.ID > maxID {
			maxID = q.ID
		}
	}
	votes := make(map[uint64]map[string]*common.Vote)
	for i := range snap.Votes {
		v := snap.Votes[i]
		if _, ok := queries[v.QueryID]; !ok {
			return fmt.Errorf("%w: vote %s references unknown query", common.ErrInvariant, v.Key())
		}
		if votes[v.QueryID] == nil {
			votes[v.QueryID] = make(map[string]*common.Vote)
		}
		votes[v.QueryID][v.VoterID] = &v
	}
	if err := e.ledger.Load(snap.Voters); err != nil {
		return err
	}
	regs := snap.Registers
	if regs.NextQueryID <= maxID {
		regs.NextQueryID = maxID + 1
	}
	e.queries = queries
	e.votes = votes
	e.regs = regs
	e.callbacks.Load(snap.Callbacks)
	e.logger.Info().Int("queries", len(queries)).Int("voters", e.ledger.Len()).Msg("restored registry")
	return nil
}

func (e *Engine) queryIDs() []uint64 {
	ids := make([]uint64, 0, len(e.queries))
	for id := range e.queries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// queryVotes returns copies of a query's votes ordered by voter.
func (e *Engine) queryVotes(queryID uint64) []common.Vote {
	byVoter := e.votes[queryID]
	voters := make([]string, 0, len(byVoter))
	for v := range byVoter {
		voters = append(voters, v)
	}
	sort.Strings(voters)
	out := make([]common.Vote, 0, len(voters))
	for _, v := range voters {
		out = append(out, *byVoter[v])
	}
	return out
}

func (e *Engine) getQuery(id uint64) (*common.Query, error) {
	q, ok := e.queries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", common.ErrQueryNotFound, id)
	}
	return q, nil
}

func (e *Engine) checkNotPaused() error {
	if e.regs.Paused {
		return common.ErrProtocolPaused
	}
	return nil
}

func (e *Engine) reportBalances() {
	e.metrics.RegistryBalances(e.ledger.TotalStake().Float64(), e.regs.Treasury.Float64(), e.regs.RewardPool.Float64())
}

// SweepCallbacks delivers every due callback and records the results. It
// blocks on delivery; a caller guarding the engine with a lock should use
// DueCallbacks, DeliverCallbacks and ApplyCallbackResults instead.
func (e *Engine) SweepCallbacks(ctx context.Context) callback.SweepReport {
	return e.callbacks.Sweep(ctx, e.clock.Now())
}

// DueCallbacks hands out the callbacks to deliver now.
func (e *Engine) DueCallbacks() []common.CallbackRecord {
	return e.callbacks.Due(e.clock.Now())
}

// DeliverCallbacks sends due callbacks. It reads no engine state and may run
// without holding the caller's lock.
func (e *Engine) DeliverCallbacks(ctx context.Context, due []common.CallbackRecord) []error {
	return e.callbacks.Deliver(ctx, due)
}

func (e *Engine) ApplyCallbackResults(due []common.CallbackRecord, results []error) callback.SweepReport {
	return e.callbacks.Apply(due, results, e.clock.Now())
}

// AcknowledgeCallback records the consumer's confirmation for queryID.
func (e *Engine) AcknowledgeCallback(queryID uint64) (common.CallbackRecord, error) {
	return e.callbacks.Acknowledge(queryID, e.clock.Now())
}
