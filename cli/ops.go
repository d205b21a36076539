package cli

import (
	"time"

	"github.com/rangesecurity/oracle/db/migrations"
	"github.com/urfave/cli/v2"
)

const defaultPollFrequency = 30 * time.Second

// OpsApp is the operator tool: migrations, analysis and manual stream publishing.
func OpsApp() *cli.App {
	return &cli.App{
		Name:  "oracle-ops",
		Usage: "operate an oracle deployment",
		Commands: []*cli.Command{
			DBCommand(migrations.Migrations),
			AnalyzerCommand(),
			PublishCommand(),
		},
	}
}
