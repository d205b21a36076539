package incentive

import (
	"fmt"
	"sort"

	"github.com/rangesecurity/oracle/common"
)

// Winner is a correct voter competing for a share of the reward pool.
type Winner struct {
	VoterID     string
	StakeLocked common.Amount
	Confidence  uint8
}

// RewardSplitter divides pool between winners. Implementations round down,
// so the shares never sum to more than pool.
type RewardSplitter interface {
	Split(pool common.Amount, winners []Winner) (map[string]common.Amount, error)
}

func NewSplitter(kind common.RewardSplit) (RewardSplitter, error) {
	switch kind {
	case common.RewardSplitStake, "":
		return StakeProportional{}, nil
	case common.RewardSplitStakeConfidence:
		return StakeConfidenceWeighted{}, nil
	case common.RewardSplitEqual:
		return EqualSplit{}, nil
	}
	return nil, fmt.Errorf("%w: unknown reward split %q", common.ErrInvalidParameters, kind)
}

// StakeProportional pays each winner pool * stake / total stake.
type StakeProportional struct{}

func (StakeProportional) Split(pool common.Amount, winners []Winner) (map[string]common.Amount, error) {
	weights := make([]common.Amount, len(winners))
	for i, w := range winners {
		weights[i] = w.StakeLocked
	}
	return splitByWeight(pool, winners, weights)
}

// StakeConfidenceWeighted pays each winner in proportion to stake * confidence.
// When every winner reported zero confidence it degrades to StakeProportional.
type StakeConfidenceWeighted struct{}

func (StakeConfidenceWeighted) Split(pool common.Amount, winners []Winner) (map[string]common.Amount, error) {
	weights := make([]common.Amount, len(winners))
	for i, w := range winners {
		var err error
		if weights[i], err = w.StakeLocked.MulUint64(uint64(w.Confidence)); err != nil {
			return nil, err
		}
	}
	return splitByWeight(pool, winners, weights)
}

type EqualSplit struct{}

func (EqualSplit) Split(pool common.Amount, winners []Winner) (map[string]common.Amount, error) {
	weights := make([]common.Amount, len(winners))
	for i := range winners {
		weights[i] = common.AmountFromAtto(1)
	}
	return splitByWeight(pool, winners, weights)
}

func splitByWeight(pool common.Amount, winners []Winner, weights []common.Amount) (map[string]common.Amount, error) {
	shares := make(map[string]common.Amount, len(winners))
	if len(winners) == 0 || pool.IsZero() {
		return shares, nil
	}
	total, err := common.SumAmounts(weights...)
	if err != nil {
		return nil, err
	}
	if total.IsZero() {
		for i := range weights {
			weights[i] = winners[i].StakeLocked
		}
		if total, err = common.SumAmounts(weights...); err != nil {
			return nil, err
		}
		if total.IsZero() {
			return EqualSplit{}.Split(pool, winners)
		}
	}

	order := make([]int, len(winners))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return winners[order[a]].VoterID < winners[order[b]].VoterID })

	paid := common.ZeroAmount
	for _, i := range order {
		share, err := pool.MulDiv(weights[i], total)
		if err != nil {
			return nil, err
		}
		if paid, err = paid.Add(share); err != nil {
			return nil, err
		}
		shares[winners[i].VoterID] = share
	}
	if paid.Gt(pool) {
		return nil, fmt.Errorf("%w: shares %s exceed pool %s", common.ErrInvariant, paid, pool)
	}
	return shares, nil
}
