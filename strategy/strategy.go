// Package strategy aggregates revealed votes into a final outcome.
// Every function here is pure: identical inputs give identical outputs.
package strategy

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/rangesecurity/oracle/common"
)

var (
	ErrNoBallots         = errors.New("no revealed votes to resolve")
	ErrOutcomeOutOfRange = errors.New("ballot outcome index out of range")
)

// Ballot is a revealed vote together with the voter attributes the strategies weigh.
type Ballot struct {
	VoterID      string
	OutcomeIndex int
	StakeLocked  common.Amount
	Reputation   uint32
	Confidence   uint8
}

// Resolve returns the winning outcome index.
func Resolve(strategy common.Strategy, outcomes []string, ballots []Ballot) (int, error) {
	if len(ballots) == 0 {
		return 0, ErrNoBallots
	}
	for _, b := range ballots {
		if b.OutcomeIndex < 0 || b.OutcomeIndex >= len(outcomes) {
			return 0, fmt.Errorf("%w: %d", ErrOutcomeOutOfRange, b.OutcomeIndex)
		}
	}
	switch strategy {
	case common.StrategyMajority:
		return majority(len(outcomes), ballots), nil
	case common.StrategyMedian:
		return median(outcomes, ballots)
	case common.StrategyWeightedByStake:
		return weightedByStake(len(outcomes), ballots)
	case common.StrategyWeightedByReputation:
		return weightedByReputation(len(outcomes), ballots)
	}
	return 0, fmt.Errorf("%w: %q", common.ErrInvalidStrategy, strategy)
}

func majority(n int, ballots []Ballot) int {
	counts := make([]int, n)
	for _, b := range ballots {
		counts[b.OutcomeIndex]++
	}
	best := 0
	for i := 1; i < n; i++ {
		// strict comparison keeps the lowest index on ties
		if counts[i] > counts[best] {
			best = i
		}
	}
	return best
}

func median(outcomes []string, ballots []Ballot) (int, error) {
	values, err := NumericOutcomes(outcomes)
	if err != nil {
		return 0, err
	}
	idx := make([]int, len(ballots))
	for i, b := range ballots {
		idx[i] = b.OutcomeIndex
	}
	sort.SliceStable(idx, func(i, j int) bool {
		if c := values[idx[i]].Cmp(values[idx[j]]); c != 0 {
			return c < 0
		}
		return idx[i] < idx[j]
	})
	// odd: middle, even: lower middle
	return idx[(len(idx)-1)/2], nil
}

func weightedByStake(n int, ballots []Ballot) (int, error) {
	sums := make([]common.Amount, n)
	for _, b := range ballots {
		var err error
		if sums[b.OutcomeIndex], err = sums[b.OutcomeIndex].Add(b.StakeLocked); err != nil {
			return 0, err
		}
	}
	best := 0
	for i := 1; i < n; i++ {
		if sums[i].Gt(sums[best]) {
			best = i
		}
	}
	return best, nil
}

func weightedByReputation(n int, ballots []Ballot) (int, error) {
	reps := make([]uint64, n)
	stakes := make([]common.Amount, n)
	for _, b := range ballots {
		reps[b.OutcomeIndex] += uint64(b.Reputation)
		var err error
		if stakes[b.OutcomeIndex], err = stakes[b.OutcomeIndex].Add(b.StakeLocked); err != nil {
			return 0, err
		}
	}
	best := 0
	for i := 1; i < n; i++ {
		switch {
		case reps[i] > reps[best]:
			best = i
		case reps[i] == reps[best] && stakes[i].Gt(stakes[best]):
			best = i
		}
	}
	return best, nil
}

// NumericOutcomes parses every outcome as a decimal number.
func NumericOutcomes(outcomes []string) ([]*big.Rat, error) {
	values := make([]*big.Rat, len(outcomes))
	for i, o := range outcomes {
		r, ok := new(big.Rat).SetString(o)
		if !ok {
			return nil, fmt.Errorf("%w: %q", common.ErrNonNumericOutcomes, o)
		}
		values[i] = r
	}
	return values, nil
}

// AggregateConfidence is the mean confidence of the ballots that chose winner.
func AggregateConfidence(ballots []Ballot, winner int) uint8 {
	var sum, count uint64
	for _, b := range ballots {
		if b.OutcomeIndex == winner {
			sum += uint64(b.Confidence)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return uint8(sum / count)
}
