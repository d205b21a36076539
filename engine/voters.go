package engine

import (
	"github.com/rangesecurity/oracle/common"
)

func (e *Engine) RegisterVoter(address string, stake common.Amount, name, metadataURL string) (common.Voter, error) {
	if err := e.checkNotPaused(); err != nil {
		return common.Voter{}, err
	}
	v, err := e.ledger.Register(address, stake, name, metadataURL, e.clock.Now())
	if err != nil {
		return common.Voter{}, err
	}
	e.reportBalances()
	return v, nil
}

// UpdateStake adds stake to an existing voter.
func (e *Engine) UpdateStake(address string, additional common.Amount) (common.Voter, error) {
	v, err := e.ledger.AddStake(address, additional, e.clock.Now())
	if err != nil {
		return common.Voter{}, err
	}
	e.reportBalances()
	e.logger.Info().Str("voter", address).Str("added", additional.String()).Str("stake", v.Stake.String()).Msg("stake increased")
	return v, nil
}

func (e *Engine) WithdrawStake(address string, amount common.Amount) (common.Voter, error) {
	v, err := e.ledger.Withdraw(address, amount, e.clock.Now())
	if err != nil {
		return common.Voter{}, err
	}
	e.reportBalances()
	e.logger.Info().Str("voter", address).Str("withdrawn", amount.String()).Str("stake", v.Stake.String()).Msg("stake withdrawn")
	return v, nil
}

func (e *Engine) DeregisterVoter(address string) (common.Voter, error) {
	v, err := e.ledger.Deregister(address)
	if err != nil {
		return common.Voter{}, err
	}
	e.reportBalances()
	return v, nil
}

// ClaimRewards moves the voter's pending rewards into its free stake.
func (e *Engine) ClaimRewards(address string) (common.Amount, error) {
	claimed, err := e.ledger.Claim(address, e.clock.Now())
	if err != nil {
		return common.Amount{}, err
	}
	e.reportBalances()
	e.logger.Info().Str("voter", address).Str("claimed", claimed.String()).Msg("rewards claimed")
	return claimed, nil
}
