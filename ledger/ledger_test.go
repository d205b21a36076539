package ledger_test

import (
	"testing"
	"time"

	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/ledger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	return ledger.New(common.DefaultParameters(), zerolog.Nop())
}

func TestRegister(t *testing.T) {
	l := newLedger(t)

	_, err := l.Register("alice", common.NewAmount(99), "", "", now)
	require.ErrorIs(t, err, common.ErrStakeBelowMinimum)
	_, err = l.Register("  ", common.NewAmount(100), "", "", now)
	require.ErrorIs(t, err, common.ErrInvalidAddress)

	v, err := l.Register("alice", common.NewAmount(100), "Alice", "https://alice.example", now)
	require.NoError(t, err)
	require.Equal(t, uint32(50), v.Reputation)
	require.True(t, v.IsActive)
	require.Equal(t, "100", l.TotalStake().String())

	_, err = l.Register("alice", common.NewAmount(100), "", "", now)
	require.ErrorIs(t, err, common.ErrVoterExists)
}

func TestLockReleaseSlash(t *testing.T) {
	l := newLedger(t)
	_, err := l.Register("alice", common.NewAmount(100), "", "", now)
	require.NoError(t, err)

	tx := l.Begin()
	require.NoError(t, tx.Lock("alice", common.NewAmount(60)))
	require.ErrorIs(t, tx.Lock("alice", common.NewAmount(50)), common.ErrInsufficientStake)
	require.NoError(t, tx.Commit())

	v, err := l.Get("alice")
	require.NoError(t, err)
	require.Equal(t, "60", v.LockedStake.String())
	require.Equal(t, "40", v.FreeStake().String())

	tx = l.Begin()
	require.NoError(t, tx.Slash("alice", common.NewAmount(60), common.NewAmount(6)))
	require.NoError(t, tx.Commit())

	v, err = l.Get("alice")
	require.NoError(t, err)
	require.Equal(t, "94", v.Stake.String())
	require.True(t, v.LockedStake.IsZero())
	require.False(t, v.IsActive, "stake below minimum deactivates")
	require.Equal(t, "94", l.TotalStake().String())

	v, err = l.AddStake("alice", common.NewAmount(6), now)
	require.NoError(t, err)
	require.True(t, v.IsActive)
}

func TestSlashCannotExceedLocked(t *testing.T) {
	l := newLedger(t)
	_, err := l.Register("alice", common.NewAmount(100), "", "", now)
	require.NoError(t, err)

	tx := l.Begin()
	require.ErrorIs(t, tx.Slash("alice", common.NewAmount(1), common.NewAmount(2)), common.ErrInvariant)
}

func TestUncommittedTxLeavesLedgerUntouched(t *testing.T) {
	l := newLedger(t)
	_, err := l.Register("alice", common.NewAmount(100), "", "", now)
	require.NoError(t, err)
	_, err = l.Register("bob", common.NewAmount(100), "", "", now)
	require.NoError(t, err)

	tx := l.Begin()
	require.NoError(t, tx.Lock("alice", common.NewAmount(10)))
	// releasing stake that was never locked fails the whole batch
	require.Error(t, tx.Release("bob", common.NewAmount(1)))

	v, err := l.Get("alice")
	require.NoError(t, err)
	require.True(t, v.LockedStake.IsZero())
}

func TestStakeAtRisk(t *testing.T) {
	l := newLedger(t)
	v, err := l.Register("alice", common.NewAmount(100), "", "", now)
	require.NoError(t, err)
	require.Equal(t, "10", l.StakeAtRisk(v).String())

	v, err = l.AddStake("alice", common.NewAmount(900), now)
	require.NoError(t, err)
	require.Equal(t, "100", l.StakeAtRisk(v).String())
}

func TestClaimWithdrawDeregister(t *testing.T) {
	l := newLedger(t)
	_, err := l.Register("alice", common.NewAmount(200), "", "", now)
	require.NoError(t, err)

	_, err = l.Claim("alice", now)
	require.ErrorIs(t, err, common.ErrNoRewardsAvailable)

	tx := l.Begin()
	require.NoError(t, tx.Credit("alice", common.NewAmount(5)))
	require.NoError(t, tx.Commit())

	_, err = l.Deregister("alice")
	require.ErrorIs(t, err, common.ErrPendingRewards)

	claimed, err := l.Claim("alice", now)
	require.NoError(t, err)
	require.Equal(t, "5", claimed.String())
	require.Equal(t, "205", l.TotalStake().String())

	_, err = l.Withdraw("alice", common.NewAmount(150), now)
	require.ErrorIs(t, err, common.ErrStakeBelowMinimum)

	v, err := l.Withdraw("alice", common.NewAmount(105), now)
	require.NoError(t, err)
	require.Equal(t, "100", v.Stake.String())

	removed, err := l.Deregister("alice")
	require.NoError(t, err)
	require.Equal(t, "alice", removed.Address)
	require.True(t, l.TotalStake().IsZero())
	require.Zero(t, l.Len())
}

func TestList(t *testing.T) {
	l := newLedger(t)
	for _, a := range []string{"carol", "alice", "bob"} {
		_, err := l.Register(a, common.NewAmount(100), "", "", now)
		require.NoError(t, err)
	}
	_, err := l.Withdraw("bob", common.NewAmount(100), now)
	require.NoError(t, err)

	all := l.List(0, 0, false)
	require.Equal(t, []string{"alice", "bob", "carol"}, addresses(all))
	require.Equal(t, []string{"alice", "carol"}, addresses(l.List(0, 0, true)))
	require.Equal(t, []string{"carol"}, addresses(l.List(1, 1, true)))
}

func addresses(vs []common.Voter) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Address)
	}
	return out
}
