package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rangesecurity/oracle/common"
	"github.com/spf13/cobra"
)

// CommitmentCmd prints the commit hash a voter submits for a value.
func CommitmentCmd() *cobra.Command {
	var (
		voter string
		value string
		salt  string
	)
	cmd := &cobra.Command{
		Use:   "commitment",
		Short: "compute the commit hash for a vote",
		RunE: func(cmd *cobra.Command, args []string) error {
			if voter == "" || value == "" {
				return fmt.Errorf("--voter and --value are required")
			}
			if salt == "" {
				salt = uuid.NewString()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "salt: %s\ncommit_hash: %s\n", salt, common.CommitHash(value, salt, voter))
			return nil
		},
	}
	cmd.Flags().StringVar(&voter, "voter", "", "voter address")
	cmd.Flags().StringVar(&value, "value", "", "outcome to vote for")
	cmd.Flags().StringVar(&salt, "salt", "", "salt, a random one is generated when empty")
	return cmd
}
