// Package stream carries oracle traffic over redis streams: voters publish
// commitments and reveals to an inbox, markets acknowledge callbacks, and
// resolutions are appended to per market callback streams.
package stream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rangesecurity/oracle/common"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	unsafe    bool
	namespace string
	rdb       *redis.Client
}

// create a new Client, if unsafe is true allows running the flushall command
func New(ctx context.Context, url, namespace string, unsafe bool) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: url,
	})
	scripts := [4]*redis.Script{CommitScript, RevealScript, AckScript, CallbackScript}
	for _, script := range scripts {
		res := script.Load(ctx, rdb)
		if err := res.Err(); err != nil {
			return nil, fmt.Errorf("failed to load script %s", err)
		}
	}
	return &Client{
		unsafe:    unsafe,
		namespace: namespace,
		rdb:       rdb,
	}, nil
}

func (c *Client) InboxKey() string { return c.namespace + ":inbox" }

func (c *Client) AcksKey() string { return c.namespace + ":acks" }

// CallbacksKey is the stream a TargetStream callback with the given address is appended to.
func CallbacksKey(address string) string { return address + ":callbacks" }

// PublishCommit appends a commitment to the inbox and returns its message id.
func (c *Client) PublishCommit(ctx context.Context, queryID uint64, voter, commitHash string) (string, error) {
	id := uuid.NewString()
	return id, CommitScript.Run(
		ctx,
		c.rdb,
		nil,
		[]interface{}{
			c.namespace,
			id,
			queryID,
			voter,
			commitHash,
		},
	).Err()
}

func (c *Client) PublishReveal(ctx context.Context, queryID uint64, voter, value, salt string, confidence int) (string, error) {
	id := uuid.NewString()
	return id, RevealScript.Run(
		ctx,
		c.rdb,
		nil,
		[]interface{}{
			c.namespace,
			id,
			queryID,
			voter,
			value,
			salt,
			confidence,
		},
	).Err()
}

func (c *Client) PublishAck(ctx context.Context, queryID uint64) (string, error) {
	id := uuid.NewString()
	return id, AckScript.Run(
		ctx,
		c.rdb,
		nil,
		[]interface{}{
			c.namespace,
			id,
			queryID,
		},
	).Err()
}

// Deliver appends the notification to the stream named by target.Address.
// It implements callback.Deliverer for common.TargetStream.
func (c *Client) Deliver(ctx context.Context, target common.CallbackTarget, n common.Notification) error {
	return CallbackScript.Run(
		ctx,
		c.rdb,
		nil,
		[]interface{}{
			target.Address,
			n.QueryID,
			n.FinalOutcome,
			n.OutcomeValue,
			n.AggregateConfidence,
			n.ResolvedAt.Format(time.RFC3339Nano),
			n.CallbackData,
		},
	).Err()
}

// CallbackAttempts returns how often a notification for queryID was appended to the target stream.
func (c *Client) CallbackAttempts(ctx context.Context, address string, queryID uint64) (int64, error) {
	n, err := c.rdb.HGet(ctx, address+":callback_attempts", strconv.FormatUint(queryID, 10)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (c *Client) FlushAll(ctx context.Context) error {
	if c.unsafe {
		return c.rdb.FlushAll(ctx).Err()
	} else {
		return nil
	}
}

func (c *Client) Redis() *redis.Client { return c.rdb }

func (c *Client) Close() error { return c.rdb.Close() }
