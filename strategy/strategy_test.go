package strategy_test

import (
	"testing"

	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/strategy"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func ballot(voter string, idx int, stake uint64, rep uint32) strategy.Ballot {
	return strategy.Ballot{VoterID: voter, OutcomeIndex: idx, StakeLocked: common.NewAmount(stake), Reputation: rep}
}

func TestResolve(t *testing.T) {
	yesNo := []string{"Yes", "No"}
	numeric := []string{"10", "20", "30", "40"}

	tests := []struct {
		name     string
		strategy common.Strategy
		outcomes []string
		ballots  []strategy.Ballot
		want     int
	}{
		{
			name:     "majority",
			strategy: common.StrategyMajority,
			outcomes: yesNo,
			ballots:  []strategy.Ballot{ballot("a", 0, 10, 50), ballot("b", 0, 10, 50), ballot("c", 1, 10, 50)},
			want:     0,
		},
		{
			name:     "majority tie goes to lowest index",
			strategy: common.StrategyMajority,
			outcomes: []string{"A", "B", "C"},
			ballots:  []strategy.Ballot{ballot("a", 2, 10, 50), ballot("b", 1, 10, 50)},
			want:     1,
		},
		{
			name:     "median odd",
			strategy: common.StrategyMedian,
			outcomes: numeric,
			ballots:  []strategy.Ballot{ballot("a", 3, 1, 1), ballot("b", 0, 1, 1), ballot("c", 1, 1, 1)},
			want:     1,
		},
		{
			name:     "median even takes lower middle",
			strategy: common.StrategyMedian,
			outcomes: numeric,
			ballots:  []strategy.Ballot{ballot("a", 3, 1, 1), ballot("b", 0, 1, 1), ballot("c", 1, 1, 1), ballot("d", 2, 1, 1)},
			want:     1,
		},
		{
			name:     "median sorts by value not index",
			strategy: common.StrategyMedian,
			outcomes: []string{"300", "1.5", "-2"},
			ballots:  []strategy.Ballot{ballot("a", 0, 1, 1), ballot("b", 1, 1, 1), ballot("c", 2, 1, 1)},
			want:     1,
		},
		{
			name:     "weighted by stake",
			strategy: common.StrategyWeightedByStake,
			outcomes: yesNo,
			ballots:  []strategy.Ballot{ballot("a", 0, 10, 50), ballot("b", 0, 10, 50), ballot("c", 1, 25, 50)},
			want:     1,
		},
		{
			name:     "weighted by stake tie",
			strategy: common.StrategyWeightedByStake,
			outcomes: yesNo,
			ballots:  []strategy.Ballot{ballot("a", 1, 20, 50), ballot("b", 0, 10, 50), ballot("c", 0, 10, 50)},
			want:     0,
		},
		{
			name:     "weighted by reputation",
			strategy: common.StrategyWeightedByReputation,
			outcomes: yesNo,
			ballots:  []strategy.Ballot{ballot("a", 0, 10, 30), ballot("b", 1, 10, 90)},
			want:     1,
		},
		{
			name:     "weighted by reputation tie broken by stake",
			strategy: common.StrategyWeightedByReputation,
			outcomes: yesNo,
			ballots:  []strategy.Ballot{ballot("a", 0, 10, 60), ballot("b", 1, 30, 60)},
			want:     1,
		},
		{
			name:     "weighted by reputation full tie",
			strategy: common.StrategyWeightedByReputation,
			outcomes: yesNo,
			ballots:  []strategy.Ballot{ballot("a", 1, 10, 60), ballot("b", 0, 10, 60)},
			want:     0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := strategy.Resolve(tt.strategy, tt.outcomes, tt.ballots)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResolveErrors(t *testing.T) {
	_, err := strategy.Resolve(common.StrategyMajority, []string{"Yes", "No"}, nil)
	require.ErrorIs(t, err, strategy.ErrNoBallots)

	_, err = strategy.Resolve(common.StrategyMajority, []string{"Yes", "No"}, []strategy.Ballot{ballot("a", 2, 1, 1)})
	require.ErrorIs(t, err, strategy.ErrOutcomeOutOfRange)

	_, err = strategy.Resolve(common.StrategyMedian, []string{"Yes", "No"}, []strategy.Ballot{ballot("a", 0, 1, 1)})
	require.ErrorIs(t, err, common.ErrNonNumericOutcomes)

	_, err = strategy.Resolve("coin_flip", []string{"Yes", "No"}, []strategy.Ballot{ballot("a", 0, 1, 1)})
	require.ErrorIs(t, err, common.ErrInvalidStrategy)
}

func TestAggregateConfidence(t *testing.T) {
	ballots := []strategy.Ballot{
		{VoterID: "a", OutcomeIndex: 0, Confidence: 90},
		{VoterID: "b", OutcomeIndex: 0, Confidence: 71},
		{VoterID: "c", OutcomeIndex: 1, Confidence: 10},
	}
	require.Equal(t, uint8(80), strategy.AggregateConfidence(ballots, 0))
	require.Equal(t, uint8(0), strategy.AggregateConfidence(ballots, 2))
}

// Resolution only depends on the multiset of ballots, never on their order.
func TestResolveDeterministic(t *testing.T) {
	strategies := []common.Strategy{
		common.StrategyMajority,
		common.StrategyMedian,
		common.StrategyWeightedByStake,
		common.StrategyWeightedByReputation,
	}
	outcomes := []string{"1", "2", "3", "4", "5"}
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.SampledFrom(strategies).Draw(t, "strategy")
		n := rapid.IntRange(1, 12).Draw(t, "n")
		ballots := make([]strategy.Ballot, n)
		for i := range ballots {
			ballots[i] = strategy.Ballot{
				VoterID:      rapid.StringMatching(`[a-z]{4}`).Draw(t, "voter"),
				OutcomeIndex: rapid.IntRange(0, len(outcomes)-1).Draw(t, "idx"),
				StakeLocked:  common.NewAmount(rapid.Uint64Range(1, 1000).Draw(t, "stake")),
				Reputation:   rapid.Uint32Range(0, 100).Draw(t, "rep"),
			}
		}
		first, err := strategy.Resolve(s, outcomes, ballots)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		perm := rapid.Permutation(ballots).Draw(t, "perm")
		second, err := strategy.Resolve(s, outcomes, perm)
		if err != nil {
			t.Fatalf("resolve permuted: %v", err)
		}
		if first != second {
			t.Fatalf("%s: %d != %d after permutation", s, first, second)
		}
		voted := false
		for _, b := range ballots {
			if b.OutcomeIndex == first {
				voted = true
			}
		}
		if !voted {
			t.Fatalf("%s picked outcome %d that nobody voted for", s, first)
		}
	})
}
