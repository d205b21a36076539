package engine

import (
	"fmt"

	"github.com/rangesecurity/oracle/common"
)

// ActiveQueries returns the queries still in their commit or reveal phase, oldest first.
func (e *Engine) ActiveQueries() []common.Query {
	out := make([]common.Query, 0)
	for _, id := range e.queryIDs() {
		if q := e.queries[id]; !q.Status.IsTerminal() {
			out = append(out, q.Clone())
		}
	}
	return out
}

func (e *Engine) Query(id uint64) (common.Query, error) {
	q, err := e.getQuery(id)
	if err != nil {
		return common.Query{}, err
	}
	return q.Clone(), nil
}

// Votes returns the votes cast on a query. Salts are never exposed.
func (e *Engine) Votes(queryID uint64) ([]common.Vote, error) {
	if _, err := e.getQuery(queryID); err != nil {
		return nil, err
	}
	votes := e.queryVotes(queryID)
	for i := range votes {
		votes[i].Salt = ""
	}
	return votes, nil
}

func (e *Engine) Voter(address string) (common.Voter, error) {
	return e.ledger.Get(address)
}

func (e *Engine) Voters(limit, offset int, activeOnly bool) []common.Voter {
	return e.ledger.List(limit, offset, activeOnly)
}

func (e *Engine) PendingRewards(address string) (common.Amount, error) {
	v, err := e.ledger.Get(address)
	if err != nil {
		return common.Amount{}, err
	}
	return v.PendingRewards, nil
}

func (e *Engine) Callback(queryID uint64) (common.CallbackRecord, error) {
	return e.callbacks.Get(queryID)
}

func (e *Engine) Statistics() common.Statistics {
	regs := e.Registers()
	voters := e.ledger.All()
	pending, failed := e.callbacks.Counts()
	stats := common.Statistics{
		TotalVoters:        len(voters),
		TotalStake:         regs.TotalStake,
		LockedStake:        e.ledger.LockedStake(),
		TotalQueries:       regs.QueriesCreated,
		ActiveQueries:      len(e.ActiveQueries()),
		ResolvedQueries:    regs.QueriesResolved,
		ExpiredQueries:     regs.QueriesExpired,
		TotalVotes:         regs.VotesCommitted,
		Treasury:           regs.Treasury,
		RewardPool:         regs.RewardPool,
		RewardsDistributed: regs.RewardsDistributed,
		TotalSlashed:       regs.TotalSlashed,
		PendingCallbacks:   pending,
		FailedCallbacks:    failed,
		Paused:             regs.Paused,
	}
	var reputation uint64
	for _, v := range voters {
		if v.IsActive {
			stats.ActiveVoters++
		}
		reputation += uint64(v.Reputation)
	}
	if n := len(voters); n > 0 {
		stats.AverageReputation = float64(reputation) / float64(n)
		// n is non-zero so MulDiv cannot fail
		stats.AverageStake, _ = regs.TotalStake.MulDiv(common.AmountFromAtto(1), common.AmountFromAtto(uint64(n)))
	}
	if regs.QueriesCreated > 0 {
		stats.ResolutionRate = float64(regs.QueriesResolved) * 100 / float64(regs.QueriesCreated)
		stats.AverageVotesPerQuery = float64(regs.VotesCommitted) / float64(regs.QueriesCreated)
	}
	return stats
}

// Pause stops new queries, registrations and commitments. Reveals, claims
// and phase advancement continue so nobody is penalized for the pause.
func (e *Engine) Pause(caller string) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if !e.regs.Paused {
		e.regs.Paused = true
		e.logger.Warn().Str("admin", caller).Msg("protocol paused")
	}
	return nil
}

func (e *Engine) Unpause(caller string) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if e.regs.Paused {
		e.regs.Paused = false
		e.logger.Warn().Str("admin", caller).Msg("protocol unpaused")
	}
	return nil
}

func (e *Engine) authorize(caller string) error {
	if e.admin == "" || caller != e.admin {
		return fmt.Errorf("%w: %q", common.ErrUnauthorized, caller)
	}
	return nil
}
