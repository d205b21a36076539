package ledger

import (
	"fmt"
	"sort"

	"github.com/rangesecurity/oracle/common"
)

// Tx stages voter changes and applies them together. Nothing is written
// unless Commit succeeds, which keeps multi-voter settlements all-or-nothing.
type Tx struct {
	l      *Ledger
	staged map[string]*common.Voter
}

func (l *Ledger) Begin() *Tx {
	return &Tx{l: l, staged: make(map[string]*common.Voter)}
}

// Voter returns a staged copy of the voter for mutation.
func (tx *Tx) Voter(address string) (*common.Voter, error) {
	if v, ok := tx.staged[address]; ok {
		return v, nil
	}
	orig, ok := tx.l.voters[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrVoterNotFound, address)
	}
	cp := *orig
	tx.staged[address] = &cp
	return &cp, nil
}

// Lock moves amount of free stake into locked stake.
func (tx *Tx) Lock(address string, amount common.Amount) error {
	v, err := tx.Voter(address)
	if err != nil {
		return err
	}
	if v.FreeStake().Lt(amount) {
		return fmt.Errorf("%w: free %s < %s", common.ErrInsufficientStake, v.FreeStake(), amount)
	}
	v.LockedStake, err = v.LockedStake.Add(amount)
	return err
}

// Release unlocks amount without touching stake.
func (tx *Tx) Release(address string, amount common.Amount) error {
	v, err := tx.Voter(address)
	if err != nil {
		return err
	}
	v.LockedStake, err = v.LockedStake.Sub(amount)
	return err
}

// Slash unlocks locked and burns penalty out of the voter's stake. penalty must not exceed locked.
// Voters left below the minimum stake are deactivated.
func (tx *Tx) Slash(address string, locked, penalty common.Amount) error {
	if penalty.Gt(locked) {
		return fmt.Errorf("%w: slash %s exceeds locked %s", common.ErrInvariant, penalty, locked)
	}
	v, err := tx.Voter(address)
	if err != nil {
		return err
	}
	if v.LockedStake, err = v.LockedStake.Sub(locked); err != nil {
		return err
	}
	if v.Stake, err = v.Stake.Sub(penalty); err != nil {
		return err
	}
	if v.IsActive && v.Stake.Lt(tx.l.params.MinStake) {
		v.IsActive = false
		tx.l.logger.Warn().Str("voter", address).Str("stake", v.Stake.String()).Msg("voter deactivated below minimum stake")
	}
	return nil
}

// Credit adds to the voter's pending rewards.
func (tx *Tx) Credit(address string, amount common.Amount) error {
	v, err := tx.Voter(address)
	if err != nil {
		return err
	}
	v.PendingRewards, err = v.PendingRewards.Add(amount)
	return err
}

// Commit validates every staged voter and writes them back.
func (tx *Tx) Commit() error {
	addresses := make([]string, 0, len(tx.staged))
	for a := range tx.staged {
		addresses = append(addresses, a)
	}
	sort.Strings(addresses)

	total := tx.l.totalStake
	for _, a := range addresses {
		v := tx.staged[a]
		if err := checkInvariants(v); err != nil {
			return err
		}
		var err error
		if total, err = total.Sub(tx.l.voters[a].Stake); err != nil {
			return err
		}
		if total, err = total.Add(v.Stake); err != nil {
			return err
		}
	}
	for _, a := range addresses {
		*tx.l.voters[a] = *tx.staged[a]
	}
	tx.l.totalStake = total
	tx.staged = nil
	return nil
}
