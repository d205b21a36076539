package main

import (
	"os"

	"github.com/rangesecurity/oracle/cli"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := cli.OpsApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("oracle-ops failed")
	}
}
