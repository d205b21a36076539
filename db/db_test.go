package db_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/db"
	"github.com/stretchr/testify/require"
)

func testDatabase(t *testing.T) *db.Database {
	url := os.Getenv("ORACLE_TEST_DB_URL")
	if url == "" {
		t.Skip("ORACLE_TEST_DB_URL not set")
	}
	database, err := db.New(url)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func sampleSnapshot() common.Snapshot {
	at := time.Date(2024, 10, 18, 12, 0, 0, 0, time.UTC)
	outcome := 1
	return common.Snapshot{
		Params: common.DefaultParameters(),
		Registers: common.Registers{
			NextQueryID:     3,
			Treasury:        common.MustParseAmount("40"),
			RewardPool:      common.MustParseAmount("250.5"),
			QueriesCreated:  2,
			QueriesResolved: 1,
			VotesCommitted:  2,
			VotesRevealed:   1,
		},
		Voters: []common.Voter{{
			Address:        "alice",
			Name:           "Alice",
			Stake:          common.NewAmount(1000),
			LockedStake:    common.NewAmount(100),
			Reputation:     55,
			TotalVotes:     1,
			CorrectVotes:   1,
			CorrectStreak:  1,
			IsActive:       true,
			RegisteredAt:   at,
			LastActive:     at,
			PendingRewards: common.MustParseAmount("135"),
		}},
		Queries: []common.Query{
			{
				ID:             1,
				Creator:        "market",
				Description:    "Will it rain?",
				Outcomes:       []string{"yes", "no"},
				Strategy:       common.StrategyMajority,
				MinVotes:       1,
				RewardAmount:   common.NewAmount(150),
				Source:         common.Source{Kind: common.SourceExternal, Callback: &common.CallbackTarget{Kind: common.TargetHTTP, Address: "http://market/resolve"}, Fee: common.NewAmount(150)},
				Status:         common.StatusResolved,
				CreatedAt:      at,
				CommitDeadline: at.Add(time.Hour),
				RevealWindow:   time.Hour,
				RevealDeadline: at.Add(2 * time.Hour),
				CommitCount:    1,
				RevealCount:    1,
				FinalOutcome:   &outcome,
				ResolvedAt:     at.Add(2 * time.Hour),
			},
			{
				ID:             2,
				Creator:        "alice",
				Description:    "ETH price bucket",
				Outcomes:       []string{"1", "2", "3"},
				Strategy:       common.StrategyMedian,
				MinVotes:       1,
				RewardAmount:   common.NewAmount(100),
				Source:         common.Source{Kind: common.SourceInternal},
				Status:         common.StatusCommitPhase,
				CreatedAt:      at,
				CommitDeadline: at.Add(time.Hour),
				RevealWindow:   time.Hour,
				CommitCount:    1,
			},
		},
		Votes: []common.Vote{
			{QueryID: 1, VoterID: "alice", CommitHash: common.CommitHash("no", "s1", "alice"), Revealed: true, Value: "no", OutcomeIndex: 1, Salt: "s1", Confidence: 80, StakeLocked: common.NewAmount(100), CommittedAt: at, RevealedAt: at.Add(90 * time.Minute)},
			{QueryID: 2, VoterID: "alice", CommitHash: common.CommitHash("2", "s2", "alice"), StakeLocked: common.NewAmount(100), CommittedAt: at},
		},
		Callbacks: []common.CallbackRecord{{
			QueryID: 1,
			Target:  common.CallbackTarget{Kind: common.TargetHTTP, Address: "http://market/resolve"},
			Payload: common.Notification{QueryID: 1, FinalOutcome: 1, OutcomeValue: "no", AggregateConfidence: 80, ResolvedAt: at.Add(2 * time.Hour)},
			Attempts:        2,
			NextRetryAt:     at.Add(3 * time.Hour),
			BackoffExponent: 2,
			Status:          common.CallbackPending,
			LastError:       "connection refused",
			CreatedAt:       at.Add(2 * time.Hour),
		}},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	database := testDatabase(t)

	want := sampleSnapshot()
	require.NoError(t, database.SaveSnapshot(ctx, want))
	// a second save replaces rather than appends
	require.NoError(t, database.SaveSnapshot(ctx, want))

	got, found, err := database.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want, got)

	resolved, err := database.GetQueriesByStatus(ctx, common.StatusResolved)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.EqualValues(t, 1, resolved[0].ID)

	votes, err := database.GetVotesForQuery(ctx, 2)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	require.False(t, votes[0].Revealed)
}
