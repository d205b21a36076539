package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/engine"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Random interleavings of commits, reveals, stake changes and ticks must never
// lock more than a voter's stake, move a query backwards, or trip an invariant.
func TestEngineInvariants(t *testing.T) {
	voters := []string{"alice", "bob", "carol", "dave"}
	outcomes := []string{"1", "2", "3"}
	strategies := []common.Strategy{
		common.StrategyMajority,
		common.StrategyMedian,
		common.StrategyWeightedByStake,
		common.StrategyWeightedByReputation,
	}

	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		clock := &fakeClock{now: start}
		params := common.DefaultParameters()
		params.NonRevealPolicy = rapid.SampledFrom([]common.NonRevealPolicy{common.NonRevealRelease, common.NonRevealSlash}).Draw(t, "policy")
		params.RewardSplit = rapid.SampledFrom([]common.RewardSplit{common.RewardSplitStake, common.RewardSplitStakeConfidence, common.RewardSplitEqual}).Draw(t, "split")
		e := newEngine(t, clock, nil, params)
		for _, v := range voters {
			_, err := e.RegisterVoter(v, common.NewAmount(rapid.Uint64Range(100, 2000).Draw(t, "stake")), "", "")
			require.NoError(t, err)
		}

		// values committed so far, keyed like votes
		committed := map[common.VoteKey]string{}
		ranks := map[uint64]int{}
		var nextID uint64 = 1

		checkErr := func(err error) {
			if err != nil {
				require.NotEqual(t, common.KindInternal, common.KindOf(err), err.Error())
				require.NotEqual(t, common.KindUnknown, common.KindOf(err), err.Error())
			}
		}

		steps := rapid.IntRange(1, 80).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 5).Draw(t, "op") {
			case 0:
				_, err := e.CreateQuery(ctx, engineRequest(
					outcomes,
					rapid.SampledFrom(strategies).Draw(t, "strategy"),
					rapid.IntRange(1, 3).Draw(t, "minVotes"),
					rapid.Uint64Range(1, 500).Draw(t, "reward"),
				))
				require.NoError(t, err)
				nextID++
			case 1:
				voter := rapid.SampledFrom(voters).Draw(t, "voter")
				id := rapid.Uint64Range(1, nextID).Draw(t, "query")
				value := rapid.SampledFrom(outcomes).Draw(t, "value")
				_, err := e.CommitVote(ctx, voter, id, common.CommitHash(value, "salt", voter))
				checkErr(err)
				if err == nil {
					committed[common.VoteKey{QueryID: id, VoterID: voter}] = value
				}
			case 2:
				voter := rapid.SampledFrom(voters).Draw(t, "voter")
				id := rapid.Uint64Range(1, nextID).Draw(t, "query")
				value, ok := committed[common.VoteKey{QueryID: id, VoterID: voter}]
				if !ok {
					value = rapid.SampledFrom(outcomes).Draw(t, "value")
				}
				_, err := e.RevealVote(ctx, voter, id, value, "salt", rapid.IntRange(0, 100).Draw(t, "confidence"))
				checkErr(err)
			case 3:
				clock.Advance(time.Duration(rapid.IntRange(1, 90).Draw(t, "minutes")) * time.Minute)
				_, err := e.AdvancePhases(ctx)
				require.NoError(t, err)
			case 4:
				voter := rapid.SampledFrom(voters).Draw(t, "voter")
				_, err := e.WithdrawStake(voter, common.NewAmount(rapid.Uint64Range(1, 500).Draw(t, "withdraw")))
				checkErr(err)
			case 5:
				voter := rapid.SampledFrom(voters).Draw(t, "voter")
				_, err := e.ClaimRewards(voter)
				checkErr(err)
			}

			total := common.ZeroAmount
			for _, v := range e.Voters(0, 0, false) {
				require.False(t, v.LockedStake.Gt(v.Stake), fmt.Sprintf("%s locked %s of %s", v.Address, v.LockedStake, v.Stake))
				require.LessOrEqual(t, v.Reputation, common.MaxReputation)
				var err error
				total, err = total.Add(v.Stake)
				require.NoError(t, err)
			}
			require.True(t, total.Equal(e.Registers().TotalStake))

			for id := uint64(1); id < nextID; id++ {
				q, err := e.Query(id)
				require.NoError(t, err)
				require.GreaterOrEqual(t, q.Status.Rank(), ranks[id], "query %d went back to %s", id, q.Status)
				ranks[id] = q.Status.Rank()
				require.LessOrEqual(t, q.RevealCount, q.CommitCount)
				if q.Status == common.StatusResolved {
					require.NotNil(t, q.FinalOutcome)
				}
			}
		}
	})
}

func engineRequest(outcomes []string, s common.Strategy, minVotes int, reward uint64) engine.CreateQueryRequest {
	req := yesNo(minVotes, reward)
	req.Outcomes = outcomes
	req.Strategy = s
	return req
}
