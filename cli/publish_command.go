package cli

import (
	"context"
	"fmt"

	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/stream"
	"github.com/urfave/cli/v2"
)

// PublishCommand appends voter and market messages to the oracle's redis streams.
func PublishCommand() *cli.Command {
	withClient := func(c *cli.Context, fn func(ctx context.Context, sc *stream.Client) (string, error)) error {
		sc, err := stream.New(c.Context, c.String("redis.url"), c.String("namespace"), false)
		if err != nil {
			return err
		}
		defer sc.Close()
		id, err := fn(c.Context, sc)
		if err != nil {
			return err
		}
		fmt.Printf("published message %s\n", id)
		return nil
	}
	return &cli.Command{
		Name:  "publish",
		Usage: "publish commitments, reveals and callback acks to the inbox",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "redis.url",
				Usage:   "address of redis server",
				Value:   "localhost:6379",
				EnvVars: []string{"ORACLE_REDIS_URL"},
			},
			&cli.StringFlag{
				Name:    "namespace",
				Value:   "oracle",
				EnvVars: []string{"ORACLE_STREAM_NAMESPACE"},
			},
			&cli.Uint64Flag{
				Name:     "query",
				Required: true,
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:  "commit",
				Usage: "commit to a value, hashing it locally",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "voter", Required: true},
					&cli.StringFlag{Name: "value", Required: true},
					&cli.StringFlag{Name: "salt", Required: true},
				},
				Action: func(c *cli.Context) error {
					return withClient(c, func(ctx context.Context, sc *stream.Client) (string, error) {
						voter := c.String("voter")
						hash := common.CommitHash(c.String("value"), c.String("salt"), voter)
						return sc.PublishCommit(ctx, c.Uint64("query"), voter, hash)
					})
				},
			},
			{
				Name:  "reveal",
				Usage: "reveal a committed value",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "voter", Required: true},
					&cli.StringFlag{Name: "value", Required: true},
					&cli.StringFlag{Name: "salt", Required: true},
					&cli.IntFlag{Name: "confidence", Value: 100},
				},
				Action: func(c *cli.Context) error {
					return withClient(c, func(ctx context.Context, sc *stream.Client) (string, error) {
						return sc.PublishReveal(ctx, c.Uint64("query"), c.String("voter"), c.String("value"), c.String("salt"), c.Int("confidence"))
					})
				},
			},
			{
				Name:  "ack",
				Usage: "acknowledge a resolution callback",
				Action: func(c *cli.Context) error {
					return withClient(c, func(ctx context.Context, sc *stream.Client) (string, error) {
						return sc.PublishAck(ctx, c.Uint64("query"))
					})
				},
			},
		},
	}
}
