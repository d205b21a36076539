package engine

import (
	"context"
	"fmt"

	"github.com/rangesecurity/oracle/common"
)

// CommitVote records a sealed commitment and locks the voter's stake at risk.
// Deadlines are evaluated first, so a commit arriving after the commit
// deadline finds the query already moved on.
func (e *Engine) CommitVote(ctx context.Context, voterID string, queryID uint64, commitHash string) (common.Vote, error) {
	if err := e.checkNotPaused(); err != nil {
		return common.Vote{}, err
	}
	hash, err := common.NormalizeCommitHash(commitHash)
	if err != nil {
		return common.Vote{}, err
	}
	q, err := e.getQuery(queryID)
	if err != nil {
		return common.Vote{}, err
	}
	now := e.clock.Now()
	if err := e.advance(ctx, q, now); err != nil {
		return common.Vote{}, err
	}
	voter, stake, err := e.checkCanVote(q, voterID)
	if err != nil {
		return common.Vote{}, err
	}

	tx := e.ledger.Begin()
	if err := tx.Lock(voterID, stake); err != nil {
		return common.Vote{}, err
	}
	staged, err := tx.Voter(voterID)
	if err != nil {
		return common.Vote{}, err
	}
	staged.LastActive = now
	if err := tx.Commit(); err != nil {
		return common.Vote{}, err
	}

	v := &common.Vote{
		QueryID:      queryID,
		VoterID:      voterID,
		CommitHash:   hash,
		OutcomeIndex: -1,
		StakeLocked:  stake,
		CommittedAt:  now,
	}
	e.votes[queryID][voterID] = v
	q.CommitCount++
	e.regs.VotesCommitted++
	e.metrics.VoteCommitted()
	e.logger.Info().
		Uint64("query.id", queryID).
		Str("voter", voter.Address).
		Str("stake_locked", stake.String()).
		Msg("vote committed")
	return *v, nil
}

// RevealVote opens a commitment. The value must hash, together with salt and
// the voter id, to the committed hash and must name one of the query outcomes.
func (e *Engine) RevealVote(ctx context.Context, voterID string, queryID uint64, value, salt string, confidence int) (common.Vote, error) {
	if confidence < 0 || confidence > 100 {
		return common.Vote{}, fmt.Errorf("%w: %d", common.ErrInvalidConfidence, confidence)
	}
	q, err := e.getQuery(queryID)
	if err != nil {
		return common.Vote{}, err
	}
	now := e.clock.Now()
	if err := e.advance(ctx, q, now); err != nil {
		return common.Vote{}, err
	}
	switch {
	case q.Status == common.StatusCommitPhase:
		return common.Vote{}, fmt.Errorf("%w: query %d opens reveals at %s", common.ErrRevealNotOpen, queryID, q.CommitDeadline)
	case q.Status.IsTerminal():
		return common.Vote{}, fmt.Errorf("%w: query %d is %s", common.ErrQueryClosed, queryID, q.Status)
	case !now.Before(q.RevealDeadline):
		return common.Vote{}, fmt.Errorf("%w: reveal deadline %s", common.ErrPhaseClosed, q.RevealDeadline)
	}
	v, ok := e.votes[queryID][voterID]
	if !ok {
		return common.Vote{}, fmt.Errorf("%w: voter %s on query %d", common.ErrNoCommitment, voterID, queryID)
	}
	if v.Revealed {
		return common.Vote{}, fmt.Errorf("%w: voter %s on query %d", common.ErrAlreadyRevealed, voterID, queryID)
	}
	if !common.VerifyReveal(v.CommitHash, value, salt, voterID) {
		e.metrics.RevealRejected(common.ErrInvalidReveal.Code)
		e.logger.Warn().Uint64("query.id", queryID).Str("voter", voterID).Msg("reveal does not match commitment")
		return common.Vote{}, common.ErrInvalidReveal
	}
	idx, ok := q.OutcomeIndex(value)
	if !ok {
		e.metrics.RevealRejected(common.ErrInvalidOutcome.Code)
		return common.Vote{}, fmt.Errorf("%w: %q", common.ErrInvalidOutcome, value)
	}

	v.Revealed = true
	v.Value = value
	v.Salt = salt
	v.OutcomeIndex = idx
	v.Confidence = uint8(confidence)
	v.RevealedAt = now
	q.RevealCount++
	e.regs.VotesRevealed++
	e.metrics.VoteRevealed()
	e.logger.Info().
		Uint64("query.id", queryID).
		Str("voter", voterID).
		Int("outcome", idx).
		Int("confidence", confidence).
		Msg("vote revealed")
	return *v, nil
}

// SubmitDirectVote records an already revealed vote without a commitment.
// It exists for deployments that trust their transport and is off by default.
func (e *Engine) SubmitDirectVote(ctx context.Context, voterID string, queryID uint64, value string, confidence int) (common.Vote, error) {
	if !e.params.AllowDirectVotes {
		return common.Vote{}, common.ErrDirectVotesDisabled
	}
	if err := e.checkNotPaused(); err != nil {
		return common.Vote{}, err
	}
	if confidence < 0 || confidence > 100 {
		return common.Vote{}, fmt.Errorf("%w: %d", common.ErrInvalidConfidence, confidence)
	}
	q, err := e.getQuery(queryID)
	if err != nil {
		return common.Vote{}, err
	}
	now := e.clock.Now()
	if err := e.advance(ctx, q, now); err != nil {
		return common.Vote{}, err
	}
	_, stake, err := e.checkCanVote(q, voterID)
	if err != nil {
		return common.Vote{}, err
	}
	idx, ok := q.OutcomeIndex(value)
	if !ok {
		return common.Vote{}, fmt.Errorf("%w: %q", common.ErrInvalidOutcome, value)
	}

	tx := e.ledger.Begin()
	if err := tx.Lock(voterID, stake); err != nil {
		return common.Vote{}, err
	}
	staged, err := tx.Voter(voterID)
	if err != nil {
		return common.Vote{}, err
	}
	staged.LastActive = now
	if err := tx.Commit(); err != nil {
		return common.Vote{}, err
	}

	v := &common.Vote{
		QueryID:      queryID,
		VoterID:      voterID,
		CommitHash:   common.CommitHash(value, "", voterID),
		Revealed:     true,
		Value:        value,
		OutcomeIndex: idx,
		Confidence:   uint8(confidence),
		StakeLocked:  stake,
		CommittedAt:  now,
		RevealedAt:   now,
		Direct:       true,
	}
	e.votes[queryID][voterID] = v
	q.CommitCount++
	q.RevealCount++
	e.regs.VotesCommitted++
	e.regs.VotesRevealed++
	e.metrics.VoteCommitted()
	e.metrics.VoteRevealed()
	e.logger.Info().Uint64("query.id", queryID).Str("voter", voterID).Int("outcome", idx).Msg("direct vote recorded")
	return *v, nil
}

// checkCanVote applies the commit phase admission rules and returns the stake to lock.
func (e *Engine) checkCanVote(q *common.Query, voterID string) (common.Voter, common.Amount, error) {
	voter, err := e.ledger.Get(voterID)
	if err != nil {
		return common.Voter{}, common.Amount{}, err
	}
	if !voter.IsActive {
		return common.Voter{}, common.Amount{}, fmt.Errorf("%w: %s", common.ErrVoterInactive, voterID)
	}
	switch {
	case q.Status.IsTerminal():
		return common.Voter{}, common.Amount{}, fmt.Errorf("%w: query %d is %s", common.ErrQueryClosed, q.ID, q.Status)
	case q.Status != common.StatusCommitPhase:
		return common.Voter{}, common.Amount{}, fmt.Errorf("%w: commit deadline %s", common.ErrPhaseClosed, q.CommitDeadline)
	}
	if _, ok := e.votes[q.ID][voterID]; ok {
		return common.Voter{}, common.Amount{}, fmt.Errorf("%w: voter %s on query %d", common.ErrAlreadyCommitted, voterID, q.ID)
	}
	if voter.Reputation < e.params.MinReputation {
		return common.Voter{}, common.Amount{}, fmt.Errorf("%w: %d < %d", common.ErrReputationTooLow, voter.Reputation, e.params.MinReputation)
	}
	stake := e.ledger.StakeAtRisk(voter)
	if voter.FreeStake().Lt(stake) {
		return common.Voter{}, common.Amount{}, fmt.Errorf("%w: free %s < %s", common.ErrInsufficientStake, voter.FreeStake(), stake)
	}
	if q.CommitCount >= e.params.MaxVotersPerQuery {
		return common.Voter{}, common.Amount{}, fmt.Errorf("%w: %d voters", common.ErrQueryFull, q.CommitCount)
	}
	return voter, stake, nil
}
