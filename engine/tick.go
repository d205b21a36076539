package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/incentive"
	"github.com/rangesecurity/oracle/strategy"
)

// TickReport lists the queries that changed status during one tick.
type TickReport struct {
	RevealOpened []uint64 `json:"revealOpened"`
	Resolved     []uint64 `json:"resolved"`
	Expired      []uint64 `json:"expired"`
}

func (r TickReport) Empty() bool {
	return len(r.RevealOpened) == 0 && len(r.Resolved) == 0 && len(r.Expired) == 0
}

// AdvancePhases moves every open query whose deadline has passed to its next
// status. A failure on one query does not stop the others; all failures are returned together.
func (e *Engine) AdvancePhases(ctx context.Context) (TickReport, error) {
	start := time.Now()
	defer func() { e.metrics.TickDuration(time.Since(start)) }()

	now := e.clock.Now()
	var (
		report TickReport
		result error
	)
	for _, id := range e.queryIDs() {
		q := e.queries[id]
		if q.Status.IsTerminal() {
			continue
		}
		before := q.Status
		if err := e.advance(ctx, q, now); err != nil {
			result = multierror.Append(result, fmt.Errorf("query %d: %w", id, err))
			continue
		}
		if q.Status == before {
			continue
		}
		switch q.Status {
		case common.StatusRevealPhase:
			report.RevealOpened = append(report.RevealOpened, id)
		case common.StatusResolved:
			report.Resolved = append(report.Resolved, id)
		case common.StatusExpired:
			report.Expired = append(report.Expired, id)
		}
	}
	if !report.Empty() {
		e.logger.Info().
			Int("reveal_opened", len(report.RevealOpened)).
			Int("resolved", len(report.Resolved)).
			Int("expired", len(report.Expired)).
			Msg("advanced query phases")
	}
	return report, result
}

// CheckExpiredQueries expires only the queries that missed a deadline without
// enough votes. Queries able to progress are left for AdvancePhases.
func (e *Engine) CheckExpiredQueries(ctx context.Context) ([]uint64, error) {
	now := e.clock.Now()
	var (
		expired []uint64
		result  error
	)
	for _, id := range e.queryIDs() {
		q := e.queries[id]
		var phase string
		switch {
		case q.Status == common.StatusCommitPhase && !now.Before(q.CommitDeadline) && q.CommitCount < q.MinVotes:
			phase = "commit"
		case q.Status == common.StatusRevealPhase && !now.Before(q.RevealDeadline) && q.RevealCount < q.MinVotes:
			phase = "reveal"
		default:
			continue
		}
		if err := e.expire(q, now, phase); err != nil {
			result = multierror.Append(result, fmt.Errorf("query %d: %w", id, err))
			continue
		}
		expired = append(expired, id)
	}
	return expired, result
}

// advance applies at most one pending transition to q. The reveal window
// starts when the transition is applied.
func (e *Engine) advance(ctx context.Context, q *common.Query, now time.Time) error {
	switch q.Status {
	case common.StatusCommitPhase:
		if now.Before(q.CommitDeadline) {
			return nil
		}
		if q.CommitCount < q.MinVotes {
			return e.expire(q, now, "commit")
		}
		q.Status = common.StatusRevealPhase
		q.RevealDeadline = now.Add(q.RevealWindow)
		e.logger.Info().
			Uint64("query.id", q.ID).
			Int("commits", q.CommitCount).
			Time("reveal_deadline", q.RevealDeadline).
			Msg("reveal phase opened")
	case common.StatusRevealPhase:
		if now.Before(q.RevealDeadline) {
			return nil
		}
		if q.RevealCount < q.MinVotes {
			return e.expire(q, now, "reveal")
		}
		return e.resolve(q, now)
	}
	return nil
}

// resolve decides the final outcome and settles every vote. Nothing is
// written unless the whole settlement succeeds.
func (e *Engine) resolve(q *common.Query, now time.Time) error {
	votes := e.queryVotes(q.ID)
	ballots := make([]strategy.Ballot, 0, q.RevealCount)
	for _, v := range votes {
		if !v.Revealed {
			continue
		}
		voter, err := e.ledger.Get(v.VoterID)
		if err != nil {
			return err
		}
		ballots = append(ballots, strategy.Ballot{
			VoterID:      v.VoterID,
			OutcomeIndex: v.OutcomeIndex,
			StakeLocked:  v.StakeLocked,
			Reputation:   voter.Reputation,
			Confidence:   v.Confidence,
		})
	}
	winner, err := strategy.Resolve(q.Strategy, q.Outcomes, ballots)
	if err != nil {
		return fmt.Errorf("decide outcome: %w", err)
	}

	resolved := q.Clone()
	resolved.Status = common.StatusResolved
	resolved.FinalOutcome = &winner
	resolved.AggregateConfidence = strategy.AggregateConfidence(ballots, winner)
	resolved.ResolvedAt = now

	tx := e.ledger.Begin()
	s, err := e.incentives.SettleResolved(tx, resolved, votes)
	if err != nil {
		return err
	}
	regs, err := e.settledRegisters(q.RewardAmount, s)
	if err != nil {
		return err
	}
	regs.QueriesResolved++
	if err := tx.Commit(); err != nil {
		return err
	}
	*q = resolved
	e.regs = regs

	e.metrics.QueryResolved(string(q.Strategy))
	e.metrics.RewardsDistributed(s.Distributed.Float64())
	e.metrics.StakeSlashed(s.Slashed.Float64())
	e.reportBalances()
	e.logger.Info().
		Uint64("query.id", q.ID).
		Int("outcome", winner).
		Str("value", q.FinalValue()).
		Uint8("confidence", q.AggregateConfidence).
		Str("distributed", s.Distributed.String()).
		Str("slashed", s.Slashed.String()).
		Msg("query resolved")

	if q.IsExternal() {
		if _, err := e.callbacks.Enqueue(q.Clone(), now); err != nil {
			e.logger.Error().Err(err).Uint64("query.id", q.ID).Msg("failed to enqueue callback")
		}
	}
	return nil
}

// expire closes q without a decision and unlocks every vote.
func (e *Engine) expire(q *common.Query, now time.Time, phase string) error {
	tx := e.ledger.Begin()
	s, err := e.incentives.SettleExpired(tx, *q, e.queryVotes(q.ID))
	if err != nil {
		return err
	}
	regs, err := e.settledRegisters(q.RewardAmount, s)
	if err != nil {
		return err
	}
	regs.QueriesExpired++
	if err := tx.Commit(); err != nil {
		return err
	}
	q.Status = common.StatusExpired
	e.regs = regs

	e.metrics.QueryExpired(phase)
	e.reportBalances()
	e.logger.Warn().
		Uint64("query.id", q.ID).
		Str("phase", phase).
		Int("commits", q.CommitCount).
		Int("reveals", q.RevealCount).
		Int("min_votes", q.MinVotes).
		Time("at", now).
		Msg("query expired")
	return nil
}

// settledRegisters returns the registers after s is applied: fee, dust and
// slashed stake go to the treasury, everything but the retained part leaves the reward pool.
func (e *Engine) settledRegisters(reward common.Amount, s incentive.Settlement) (common.Registers, error) {
	regs := e.regs
	var err error
	if regs.Treasury, err = common.SumAmounts(regs.Treasury, s.Fee, s.Dust, s.Slashed); err != nil {
		return common.Registers{}, err
	}
	spent, err := reward.Sub(s.Retained)
	if err != nil {
		return common.Registers{}, err
	}
	if regs.RewardPool, err = regs.RewardPool.Sub(spent); err != nil {
		return common.Registers{}, err
	}
	if regs.RewardsDistributed, err = regs.RewardsDistributed.Add(s.Distributed); err != nil {
		return common.Registers{}, err
	}
	if regs.TotalSlashed, err = regs.TotalSlashed.Add(s.Slashed); err != nil {
		return common.Registers{}, err
	}
	return regs, nil
}
