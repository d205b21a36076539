package db

import (
	"testing"
	"time"

	"github.com/rangesecurity/oracle/common"
	"github.com/stretchr/testify/require"
)

func TestRecordsKeepUnresolvedOutcomeNil(t *testing.T) {
	at := time.Date(2024, 10, 18, 12, 0, 0, 0, time.UTC)
	snap := common.Snapshot{
		Params:    common.DefaultParameters(),
		Registers: common.Registers{NextQueryID: 2, RewardPool: common.MustParseAmount("0.000000000000000001")},
		Queries: []common.Query{{
			ID:             1,
			Outcomes:       []string{"yes", "no"},
			Strategy:       common.StrategyMajority,
			RewardAmount:   common.MustParseAmount("0.000000000000000001"),
			Source:         common.Source{Kind: common.SourceInternal},
			Status:         common.StatusRevealPhase,
			CreatedAt:      at,
			CommitDeadline: at,
			RevealWindow:   90 * time.Minute,
			RevealDeadline: at.Add(90 * time.Minute),
		}},
	}
	records := recordsFromSnapshot(snap, at)
	require.Nil(t, records.queries[0].FinalOutcome)
	require.Equal(t, "0.000000000000000001", records.queries[0].RewardAmount)
	require.EqualValues(t, 90*time.Minute, records.queries[0].RevealWindow)

	got, err := records.snapshot()
	require.NoError(t, err)
	require.Equal(t, snap, got)
}

func TestParseStoredAmount(t *testing.T) {
	a, err := parseAmount("")
	require.NoError(t, err)
	require.True(t, a.IsZero())

	_, err = parseAmount("not a number")
	require.Error(t, err)
}
