package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rangesecurity/oracle/common"
	"github.com/rs/zerolog"
)

// Ledger owns voter records: stake, locked stake, reputation and activity.
// It is not safe for concurrent use.
type Ledger struct {
	params     common.ProtocolParameters
	voters     map[string]*common.Voter
	totalStake common.Amount
	logger     zerolog.Logger
}

func New(params common.ProtocolParameters, logger zerolog.Logger) *Ledger {
	return &Ledger{
		params: params,
		voters: make(map[string]*common.Voter),
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// Load replaces the ledger contents, recomputing the total stake.
func (l *Ledger) Load(voters []common.Voter) error {
	next := make(map[string]*common.Voter, len(voters))
	total := common.ZeroAmount
	for i := range voters {
		v := voters[i]
		if err := checkInvariants(&v); err != nil {
			return err
		}
		var err error
		if total, err = total.Add(v.Stake); err != nil {
			return err
		}
		next[v.Address] = &v
	}
	l.voters = next
	l.totalStake = total
	return nil
}

func (l *Ledger) TotalStake() common.Amount { return l.totalStake }

// LockedStake sums locked stake across all voters.
func (l *Ledger) LockedStake() common.Amount {
	total := common.ZeroAmount
	for _, v := range l.voters {
		// cannot overflow: every locked amount is bounded by a stake counted in totalStake
		total, _ = total.Add(v.LockedStake)
	}
	return total
}

func (l *Ledger) Len() int { return len(l.voters) }

func (l *Ledger) Get(address string) (common.Voter, error) {
	v, ok := l.voters[address]
	if !ok {
		return common.Voter{}, fmt.Errorf("%w: %s", common.ErrVoterNotFound, address)
	}
	return *v, nil
}

// All returns every voter ordered by address.
func (l *Ledger) All() []common.Voter {
	out := make([]common.Voter, 0, len(l.voters))
	for _, address := range l.addresses() {
		out = append(out, *l.voters[address])
	}
	return out
}

// List pages through voters ordered by address.
func (l *Ledger) List(limit, offset int, activeOnly bool) []common.Voter {
	out := make([]common.Voter, 0)
	skipped := 0
	for _, address := range l.addresses() {
		v := l.voters[address]
		if activeOnly && !v.IsActive {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, *v)
	}
	return out
}

func (l *Ledger) addresses() []string {
	keys := make([]string, 0, len(l.voters))
	for k := range l.voters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StakeAtRisk is the amount locked when v commits a vote.
func (l *Ledger) StakeAtRisk(v common.Voter) common.Amount {
	return common.MaxAmount(l.params.VoteStake, v.FreeStake().Percent(l.params.StakeLockPercentage))
}

func (l *Ledger) Register(address string, stake common.Amount, name, metadataURL string, now time.Time) (common.Voter, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return common.Voter{}, common.ErrInvalidAddress
	}
	if stake.Lt(l.params.MinStake) {
		return common.Voter{}, fmt.Errorf("%w: %s < %s", common.ErrStakeBelowMinimum, stake, l.params.MinStake)
	}
	if _, exists := l.voters[address]; exists {
		return common.Voter{}, fmt.Errorf("%w: %s", common.ErrVoterExists, address)
	}
	total, err := l.totalStake.Add(stake)
	if err != nil {
		return common.Voter{}, err
	}
	v := &common.Voter{
		Address:      address,
		Name:         name,
		MetadataURL:  metadataURL,
		Stake:        stake,
		Reputation:   l.params.InitialReputation,
		IsActive:     true,
		RegisteredAt: now,
		LastActive:   now,
	}
	l.voters[address] = v
	l.totalStake = total
	l.logger.Info().Str("voter", address).Str("stake", stake.String()).Msg("registered voter")
	return *v, nil
}

// AddStake increases free stake. A voter deactivated by slashing is reactivated
// once its stake is back above the minimum.
func (l *Ledger) AddStake(address string, amount common.Amount, now time.Time) (common.Voter, error) {
	if amount.IsZero() {
		return common.Voter{}, fmt.Errorf("%w: additional stake must be positive", common.ErrInvalidAmount)
	}
	tx := l.Begin()
	v, err := tx.Voter(address)
	if err != nil {
		return common.Voter{}, err
	}
	if v.Stake, err = v.Stake.Add(amount); err != nil {
		return common.Voter{}, err
	}
	if !v.IsActive && v.Stake.Gte(l.params.MinStake) {
		v.IsActive = true
	}
	v.LastActive = now
	if err := tx.Commit(); err != nil {
		return common.Voter{}, err
	}
	return l.Get(address)
}

// Withdraw removes free stake. The remaining stake must be zero or at least the minimum.
func (l *Ledger) Withdraw(address string, amount common.Amount, now time.Time) (common.Voter, error) {
	if amount.IsZero() {
		return common.Voter{}, fmt.Errorf("%w: withdrawal must be positive", common.ErrInvalidAmount)
	}
	tx := l.Begin()
	v, err := tx.Voter(address)
	if err != nil {
		return common.Voter{}, err
	}
	if v.FreeStake().Lt(amount) {
		return common.Voter{}, fmt.Errorf("%w: free %s < %s", common.ErrInsufficientStake, v.FreeStake(), amount)
	}
	remaining := v.Stake.SaturatingSub(amount)
	if !remaining.IsZero() && remaining.Lt(l.params.MinStake) {
		return common.Voter{}, fmt.Errorf("%w: remaining %s", common.ErrStakeBelowMinimum, remaining)
	}
	v.Stake = remaining
	if remaining.IsZero() {
		v.IsActive = false
	}
	v.LastActive = now
	if err := tx.Commit(); err != nil {
		return common.Voter{}, err
	}
	return l.Get(address)
}

// Deregister removes a voter with no locked stake and no unclaimed rewards.
func (l *Ledger) Deregister(address string) (common.Voter, error) {
	v, ok := l.voters[address]
	if !ok {
		return common.Voter{}, fmt.Errorf("%w: %s", common.ErrVoterNotFound, address)
	}
	if !v.LockedStake.IsZero() {
		return common.Voter{}, fmt.Errorf("%w: %s locked", common.ErrStakeLocked, v.LockedStake)
	}
	if !v.PendingRewards.IsZero() {
		return common.Voter{}, fmt.Errorf("%w: %s", common.ErrPendingRewards, v.PendingRewards)
	}
	total, err := l.totalStake.Sub(v.Stake)
	if err != nil {
		return common.Voter{}, err
	}
	delete(l.voters, address)
	l.totalStake = total
	l.logger.Info().Str("voter", address).Msg("deregistered voter")
	return *v, nil
}

// Claim moves pending rewards into free stake and returns the amount moved.
func (l *Ledger) Claim(address string, now time.Time) (common.Amount, error) {
	tx := l.Begin()
	v, err := tx.Voter(address)
	if err != nil {
		return common.ZeroAmount, err
	}
	if v.PendingRewards.IsZero() {
		return common.ZeroAmount, common.ErrNoRewardsAvailable
	}
	claimed := v.PendingRewards
	if v.Stake, err = v.Stake.Add(claimed); err != nil {
		return common.ZeroAmount, err
	}
	v.PendingRewards = common.ZeroAmount
	v.LastActive = now
	if err := tx.Commit(); err != nil {
		return common.ZeroAmount, err
	}
	return claimed, nil
}

func checkInvariants(v *common.Voter) error {
	if v.LockedStake.Gt(v.Stake) {
		return fmt.Errorf("%w: voter %s locked %s exceeds stake %s", common.ErrInvariant, v.Address, v.LockedStake, v.Stake)
	}
	if v.Reputation > common.MaxReputation {
		return fmt.Errorf("%w: voter %s reputation %d out of bounds", common.ErrInvariant, v.Address, v.Reputation)
	}
	return nil
}
