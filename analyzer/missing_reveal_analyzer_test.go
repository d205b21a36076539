package analyzer_test

import (
	"testing"

	"github.com/rangesecurity/oracle/analyzer"
	"github.com/rangesecurity/oracle/db"
	"github.com/stretchr/testify/require"
)

func TestMissingReveals(t *testing.T) {
	votes := []db.VoteRecord{
		{QueryID: 1, VoterID: "alice", Revealed: true},
		{QueryID: 1, VoterID: "bob"},
		{QueryID: 1, VoterID: "carol", Revealed: true, Direct: true},
		{QueryID: 1, VoterID: "dave"},
	}
	require.Equal(t, []string{"bob", "dave"}, analyzer.MissingReveals(votes))
	require.Empty(t, analyzer.MissingReveals(nil))
}
