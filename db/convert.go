package db

import (
	"fmt"
	"time"

	"github.com/rangesecurity/oracle/common"
)

type snapshotRecords struct {
	registers RegistersRecord
	voters    []VoterRecord
	queries   []QueryRecord
	votes     []VoteRecord
	callbacks []CallbackRecord
}

func recordsFromSnapshot(snap common.Snapshot, savedAt time.Time) snapshotRecords {
	r := snapshotRecords{
		registers: RegistersRecord{
			ID:                 1,
			Params:             snap.Params,
			NextQueryID:        int64(snap.Registers.NextQueryID),
			Treasury:           snap.Registers.Treasury.String(),
			RewardPool:         snap.Registers.RewardPool.String(),
			RewardsDistributed: snap.Registers.RewardsDistributed.String(),
			TotalSlashed:       snap.Registers.TotalSlashed.String(),
			QueriesCreated:     int64(snap.Registers.QueriesCreated),
			QueriesResolved:    int64(snap.Registers.QueriesResolved),
			QueriesExpired:     int64(snap.Registers.QueriesExpired),
			VotesCommitted:     int64(snap.Registers.VotesCommitted),
			VotesRevealed:      int64(snap.Registers.VotesRevealed),
			Paused:             snap.Registers.Paused,
			SavedAt:            savedAt,
		},
	}
	for _, v := range snap.Voters {
		r.voters = append(r.voters, VoterRecord{
			Address:        v.Address,
			Name:           v.Name,
			MetadataURL:    v.MetadataURL,
			Stake:          v.Stake.String(),
			LockedStake:    v.LockedStake.String(),
			Reputation:     int64(v.Reputation),
			TotalVotes:     int64(v.TotalVotes),
			CorrectVotes:   int64(v.CorrectVotes),
			CorrectStreak:  int64(v.CorrectStreak),
			IsActive:       v.IsActive,
			RegisteredAt:   v.RegisteredAt,
			LastActive:     v.LastActive,
			PendingRewards: v.PendingRewards.String(),
		})
	}
	for _, q := range snap.Queries {
		rec := QueryRecord{
			ID:                  int64(q.ID),
			Creator:             q.Creator,
			Description:         q.Description,
			Outcomes:            q.Outcomes,
			Strategy:            string(q.Strategy),
			MinVotes:            int64(q.MinVotes),
			RewardAmount:        q.RewardAmount.String(),
			SourceKind:          string(q.Source.Kind),
			Callback:            q.Source.Callback,
			Fee:                 q.Source.Fee.String(),
			Status:              string(q.Status),
			CreatedAt:           q.CreatedAt,
			CommitDeadline:      q.CommitDeadline,
			RevealWindow:        int64(q.RevealWindow),
			RevealDeadline:      q.RevealDeadline,
			CommitCount:         int64(q.CommitCount),
			RevealCount:         int64(q.RevealCount),
			AggregateConfidence: int64(q.AggregateConfidence),
			ResolvedAt:          q.ResolvedAt,
		}
		if q.FinalOutcome != nil {
			idx := int64(*q.FinalOutcome)
			rec.FinalOutcome = &idx
		}
		r.queries = append(r.queries, rec)
	}
	for _, v := range snap.Votes {
		r.votes = append(r.votes, VoteRecord{
			QueryID:      int64(v.QueryID),
			VoterID:      v.VoterID,
			CommitHash:   v.CommitHash,
			Revealed:     v.Revealed,
			Value:        v.Value,
			OutcomeIndex: int64(v.OutcomeIndex),
			Salt:         v.Salt,
			Confidence:   int64(v.Confidence),
			StakeLocked:  v.StakeLocked.String(),
			CommittedAt:  v.CommittedAt,
			RevealedAt:   v.RevealedAt,
			Direct:       v.Direct,
		})
	}
	for _, c := range snap.Callbacks {
		r.callbacks = append(r.callbacks, CallbackRecord{
			QueryID:         int64(c.QueryID),
			Target:          c.Target,
			Payload:         c.Payload,
			Attempts:        int64(c.Attempts),
			NextRetryAt:     c.NextRetryAt,
			BackoffExponent: int64(c.BackoffExponent),
			Status:          string(c.Status),
			LastError:       c.LastError,
			CreatedAt:       c.CreatedAt,
			DeliveredAt:     c.DeliveredAt,
		})
	}
	return r
}

func (r snapshotRecords) snapshot() (common.Snapshot, error) {
	snap := common.Snapshot{
		Params: r.registers.Params,
		Registers: common.Registers{
			NextQueryID:     uint64(r.registers.NextQueryID),
			QueriesCreated:  uint64(r.registers.QueriesCreated),
			QueriesResolved: uint64(r.registers.QueriesResolved),
			QueriesExpired:  uint64(r.registers.QueriesExpired),
			VotesCommitted:  uint64(r.registers.VotesCommitted),
			VotesRevealed:   uint64(r.registers.VotesRevealed),
			Paused:          r.registers.Paused,
		},
	}
	var err error
	amounts := []struct {
		dst *common.Amount
		src string
	}{
		{&snap.Registers.Treasury, r.registers.Treasury},
		{&snap.Registers.RewardPool, r.registers.RewardPool},
		{&snap.Registers.RewardsDistributed, r.registers.RewardsDistributed},
		{&snap.Registers.TotalSlashed, r.registers.TotalSlashed},
	}
	for _, a := range amounts {
		if *a.dst, err = parseAmount(a.src); err != nil {
			return common.Snapshot{}, err
		}
	}

	for _, rec := range r.voters {
		v := common.Voter{
			Address:       rec.Address,
			Name:          rec.Name,
			MetadataURL:   rec.MetadataURL,
			Reputation:    uint32(rec.Reputation),
			TotalVotes:    uint64(rec.TotalVotes),
			CorrectVotes:  uint64(rec.CorrectVotes),
			CorrectStreak: uint64(rec.CorrectStreak),
			IsActive:      rec.IsActive,
			RegisteredAt:  rec.RegisteredAt.UTC(),
			LastActive:    rec.LastActive.UTC(),
		}
		if v.Stake, err = parseAmount(rec.Stake); err != nil {
			return common.Snapshot{}, err
		}
		if v.LockedStake, err = parseAmount(rec.LockedStake); err != nil {
			return common.Snapshot{}, err
		}
		if v.PendingRewards, err = parseAmount(rec.PendingRewards); err != nil {
			return common.Snapshot{}, err
		}
		snap.Voters = append(snap.Voters, v)
	}

	for _, rec := range r.queries {
		q := common.Query{
			ID:                  uint64(rec.ID),
			Creator:             rec.Creator,
			Description:         rec.Description,
			Outcomes:            rec.Outcomes,
			Strategy:            common.Strategy(rec.Strategy),
			MinVotes:            int(rec.MinVotes),
			Source:              common.Source{Kind: common.SourceKind(rec.SourceKind), Callback: rec.Callback},
			Status:              common.QueryStatus(rec.Status),
			CreatedAt:           rec.CreatedAt.UTC(),
			CommitDeadline:      rec.CommitDeadline.UTC(),
			RevealWindow:        time.Duration(rec.RevealWindow),
			RevealDeadline:      rec.RevealDeadline.UTC(),
			CommitCount:         int(rec.CommitCount),
			RevealCount:         int(rec.RevealCount),
			AggregateConfidence: uint8(rec.AggregateConfidence),
			ResolvedAt:          rec.ResolvedAt.UTC(),
		}
		if q.RewardAmount, err = parseAmount(rec.RewardAmount); err != nil {
			return common.Snapshot{}, err
		}
		if q.Source.Fee, err = parseAmount(rec.Fee); err != nil {
			return common.Snapshot{}, err
		}
		if rec.FinalOutcome != nil {
			idx := int(*rec.FinalOutcome)
			q.FinalOutcome = &idx
		}
		snap.Queries = append(snap.Queries, q)
	}

	for _, rec := range r.votes {
		v := common.Vote{
			QueryID:      uint64(rec.QueryID),
			VoterID:      rec.VoterID,
			CommitHash:   rec.CommitHash,
			Revealed:     rec.Revealed,
			Value:        rec.Value,
			OutcomeIndex: int(rec.OutcomeIndex),
			Salt:         rec.Salt,
			Confidence:   uint8(rec.Confidence),
			CommittedAt:  rec.CommittedAt.UTC(),
			RevealedAt:   rec.RevealedAt.UTC(),
			Direct:       rec.Direct,
		}
		if v.StakeLocked, err = parseAmount(rec.StakeLocked); err != nil {
			return common.Snapshot{}, err
		}
		snap.Votes = append(snap.Votes, v)
	}

	for _, rec := range r.callbacks {
		payload := rec.Payload
		payload.ResolvedAt = payload.ResolvedAt.UTC()
		snap.Callbacks = append(snap.Callbacks, common.CallbackRecord{
			QueryID:         uint64(rec.QueryID),
			Target:          rec.Target,
			Payload:         payload,
			Attempts:        int(rec.Attempts),
			NextRetryAt:     rec.NextRetryAt.UTC(),
			BackoffExponent: int(rec.BackoffExponent),
			Status:          common.CallbackStatus(rec.Status),
			LastError:       rec.LastError,
			CreatedAt:       rec.CreatedAt.UTC(),
			DeliveredAt:     rec.DeliveredAt.UTC(),
		})
	}
	return snap, nil
}

func parseAmount(s string) (common.Amount, error) {
	if s == "" {
		return common.ZeroAmount, nil
	}
	a, err := common.ParseAmount(s)
	if err != nil {
		return common.Amount{}, fmt.Errorf("stored amount %q: %w", s, err)
	}
	return a, nil
}
