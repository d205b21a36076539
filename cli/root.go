package cli

import (
	"github.com/spf13/cobra"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "oracle resolves queries by commit-reveal voting of staked voters",
	}
	cmd.AddCommand(ServeCmd(), CommitmentCmd())
	return cmd
}
