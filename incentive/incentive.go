package incentive

import (
	"fmt"
	"sort"

	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/ledger"
	"github.com/rs/zerolog"
)

type Verdict string

const (
	VerdictCorrect    Verdict = "correct"
	VerdictIncorrect  Verdict = "incorrect"
	VerdictUnrevealed Verdict = "unrevealed"
	VerdictReleased   Verdict = "released"
)

// VoteResult records what settlement did to one vote.
type VoteResult struct {
	VoterID          string
	Verdict          Verdict
	Released         common.Amount
	Slashed          common.Amount
	Reward           common.Amount
	ReputationBefore uint32
	ReputationAfter  uint32
}

// Settlement is the accounting outcome of closing a query. The caller moves
// Fee, Dust and Slashed into the treasury and Distributed out of the reward pool.
type Settlement struct {
	QueryID     uint64
	Fee         common.Amount
	Distributed common.Amount
	Dust        common.Amount
	Slashed     common.Amount
	// Retained stays in the reward pool because nobody earned it.
	Retained common.Amount
	Results  []VoteResult
}

// Engine applies slashing, rewards and reputation changes through a ledger transaction.
type Engine struct {
	params   common.ProtocolParameters
	splitter RewardSplitter
	logger   zerolog.Logger
}

// New builds an engine. A nil splitter selects the one named by params.RewardSplit.
func New(params common.ProtocolParameters, splitter RewardSplitter, logger zerolog.Logger) (*Engine, error) {
	if splitter == nil {
		var err error
		if splitter, err = NewSplitter(params.RewardSplit); err != nil {
			return nil, err
		}
	}
	return &Engine{
		params:   params,
		splitter: splitter,
		logger:   logger.With().Str("component", "incentive").Logger(),
	}, nil
}

// SettleResolved settles every vote of a resolved query. votes may be in any order.
func (e *Engine) SettleResolved(tx *ledger.Tx, q common.Query, votes []common.Vote) (Settlement, error) {
	if q.FinalOutcome == nil {
		return Settlement{}, fmt.Errorf("%w: query %d has no final outcome", common.ErrInvariant, q.ID)
	}
	winner := *q.FinalOutcome
	votes = sortedVotes(votes)

	s := Settlement{QueryID: q.ID}
	s.Fee = q.RewardAmount.Percent(e.params.ProtocolFeePercentage)
	distributable, err := q.RewardAmount.Sub(s.Fee)
	if err != nil {
		return Settlement{}, err
	}

	var winners []Winner
	for _, v := range votes {
		if v.Revealed && v.OutcomeIndex == winner {
			winners = append(winners, Winner{VoterID: v.VoterID, StakeLocked: v.StakeLocked, Confidence: v.Confidence})
		}
	}
	shares := map[string]common.Amount{}
	if len(winners) == 0 {
		s.Retained = distributable
	} else {
		if shares, err = e.splitter.Split(distributable, winners); err != nil {
			return Settlement{}, err
		}
	}

	for _, v := range votes {
		var res VoteResult
		switch {
		case v.Revealed && v.OutcomeIndex == winner:
			res, err = e.rewardCorrect(tx, v, shares[v.VoterID])
			if err == nil {
				s.Distributed, err = s.Distributed.Add(res.Reward)
			}
		case v.Revealed:
			res, err = e.slashIncorrect(tx, v, e.params.ReputationDecrease)
		case e.params.NonRevealPolicy == common.NonRevealSlash:
			res, err = e.slashIncorrect(tx, v, e.params.ReputationDecrease)
			res.Verdict = VerdictUnrevealed
		default:
			res, err = e.releaseUnrevealed(tx, v)
		}
		if err != nil {
			return Settlement{}, fmt.Errorf("settle vote %s: %w", v.Key(), err)
		}
		if s.Slashed, err = s.Slashed.Add(res.Slashed); err != nil {
			return Settlement{}, err
		}
		s.Results = append(s.Results, res)
	}

	if len(winners) > 0 {
		if s.Distributed.Gt(distributable) {
			return Settlement{}, fmt.Errorf("%w: distributed %s exceeds pool %s", common.ErrInvariant, s.Distributed, distributable)
		}
		s.Dust = distributable.SaturatingSub(s.Distributed)
	}
	e.logger.Debug().
		Uint64("query.id", q.ID).
		Int("winners", len(winners)).
		Str("distributed", s.Distributed.String()).
		Str("slashed", s.Slashed.String()).
		Msg("settled resolved query")
	return s, nil
}

// SettleExpired unlocks every vote of an expired query without penalties or rewards.
func (e *Engine) SettleExpired(tx *ledger.Tx, q common.Query, votes []common.Vote) (Settlement, error) {
	s := Settlement{QueryID: q.ID, Retained: q.RewardAmount}
	for _, v := range sortedVotes(votes) {
		if err := tx.Release(v.VoterID, v.StakeLocked); err != nil {
			return Settlement{}, fmt.Errorf("release vote %s: %w", v.Key(), err)
		}
		voter, err := tx.Voter(v.VoterID)
		if err != nil {
			return Settlement{}, err
		}
		s.Results = append(s.Results, VoteResult{
			VoterID:          v.VoterID,
			Verdict:          VerdictReleased,
			Released:         v.StakeLocked,
			ReputationBefore: voter.Reputation,
			ReputationAfter:  voter.Reputation,
		})
	}
	return s, nil
}

func (e *Engine) rewardCorrect(tx *ledger.Tx, v common.Vote, reward common.Amount) (VoteResult, error) {
	if err := tx.Release(v.VoterID, v.StakeLocked); err != nil {
		return VoteResult{}, err
	}
	if err := tx.Credit(v.VoterID, reward); err != nil {
		return VoteResult{}, err
	}
	voter, err := tx.Voter(v.VoterID)
	if err != nil {
		return VoteResult{}, err
	}
	before := voter.Reputation
	voter.Reputation = e.IncreasedReputation(voter.Reputation, voter.CorrectStreak)
	voter.CorrectStreak++
	voter.TotalVotes++
	voter.CorrectVotes++
	return VoteResult{
		VoterID:          v.VoterID,
		Verdict:          VerdictCorrect,
		Released:         v.StakeLocked,
		Reward:           reward,
		ReputationBefore: before,
		ReputationAfter:  voter.Reputation,
	}, nil
}

func (e *Engine) slashIncorrect(tx *ledger.Tx, v common.Vote, penalty uint32) (VoteResult, error) {
	slashed := v.StakeLocked.Percent(e.params.SlashPercentage)
	if err := tx.Slash(v.VoterID, v.StakeLocked, slashed); err != nil {
		return VoteResult{}, err
	}
	voter, err := tx.Voter(v.VoterID)
	if err != nil {
		return VoteResult{}, err
	}
	before := voter.Reputation
	voter.Reputation = decreasedReputation(voter.Reputation, penalty)
	voter.CorrectStreak = 0
	voter.TotalVotes++
	return VoteResult{
		VoterID:          v.VoterID,
		Verdict:          VerdictIncorrect,
		Released:         v.StakeLocked.SaturatingSub(slashed),
		Slashed:          slashed,
		ReputationBefore: before,
		ReputationAfter:  voter.Reputation,
	}, nil
}

func (e *Engine) releaseUnrevealed(tx *ledger.Tx, v common.Vote) (VoteResult, error) {
	if err := tx.Release(v.VoterID, v.StakeLocked); err != nil {
		return VoteResult{}, err
	}
	voter, err := tx.Voter(v.VoterID)
	if err != nil {
		return VoteResult{}, err
	}
	before := voter.Reputation
	voter.Reputation = decreasedReputation(voter.Reputation, e.params.NonRevealPenalty)
	voter.CorrectStreak = 0
	voter.TotalVotes++
	return VoteResult{
		VoterID:          v.VoterID,
		Verdict:          VerdictUnrevealed,
		Released:         v.StakeLocked,
		ReputationBefore: before,
		ReputationAfter:  voter.Reputation,
	}, nil
}

// IncreasedReputation adds the base increase plus a bonus per consecutive correct vote, capped at 100.
func (e *Engine) IncreasedReputation(current uint32, streak uint64) uint32 {
	inc := uint64(e.params.ReputationIncrease)
	if e.params.StreakBonus > 0 && streak > 0 {
		// anything past the cap is irrelevant, so clamp before multiplying
		if streak > uint64(common.MaxReputation) {
			streak = uint64(common.MaxReputation)
		}
		inc += uint64(e.params.StreakBonus) * streak
	}
	next := uint64(current) + inc
	if next > uint64(common.MaxReputation) {
		return common.MaxReputation
	}
	return uint32(next)
}

func decreasedReputation(current, penalty uint32) uint32 {
	if penalty >= current {
		return 0
	}
	return current - penalty
}

func sortedVotes(votes []common.Vote) []common.Vote {
	out := append([]common.Vote(nil), votes...)
	sort.Slice(out, func(i, j int) bool { return out[i].VoterID < out[j].VoterID })
	return out
}
