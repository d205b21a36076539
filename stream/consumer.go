package stream

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Consume reads the stream at key, starting after lastID, and sends every
// parsed entry on outCh until ctx is done. Unparseable entries are logged and skipped.
func (c *Client) Consume(ctx context.Context, key, lastID string, outCh chan<- *Message) {
	if lastID == "" {
		lastID = "0"
	}
	for {
		entries, err := c.rdb.XRead(
			ctx,
			&redis.XReadArgs{
				Streams: []string{key, lastID},
				Block:   time.Second,
			},
		).Result()
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			log.Err(err).Str("stream", key).Msg("failed to read redis stream")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, stream := range entries {
			for _, message := range stream.Messages {
				lastID = message.ID
				msg, err := ParseMessage(message.ID, message.Values)
				if err != nil {
					log.Error().Err(err).Str("stream", key).Str("id", message.ID).Msg("failed to parse redis value to message")
					continue
				}
				select {
				case outCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
