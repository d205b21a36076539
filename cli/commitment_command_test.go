package cli_test

import (
	"bytes"
	"testing"

	"github.com/rangesecurity/oracle/cli"
	"github.com/rangesecurity/oracle/common"
	"github.com/stretchr/testify/require"
)

func TestCommitmentCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := cli.RootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"commitment", "--voter", "alice", "--value", "Yes", "--salt", "s1"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "salt: s1\ncommit_hash: "+common.CommitHash("Yes", "s1", "alice")+"\n", out.String())
}

func TestCommitmentRequiresVoter(t *testing.T) {
	cmd := cli.RootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"commitment", "--value", "Yes"})
	require.Error(t, cmd.Execute())
}
