package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/stream"
	"github.com/rs/zerolog/log"
)

// ErrDuplicateMessage is returned for a message id that was already handled.
var ErrDuplicateMessage = errors.New("duplicate message")

// HandleMessage applies one stream message to the engine. Reveals that arrive
// before their query entered the reveal phase are parked and retried on every tick.
//
// A message id is remembered once handled, unless the engine rejected it while
// paused: a republished copy with the same id is then applied. Consumers do not
// re-read the stream by themselves, so a rejected message is only seen again
// after a restart replays the stream.
func (s *Service) HandleMessage(ctx context.Context, msg *stream.Message) error {
	if msg.MessageID != "" {
		if seen, _ := s.seen.ContainsOrAdd(msg.MessageID, struct{}{}); seen {
			return ErrDuplicateMessage
		}
	}
	s.Lock()
	defer s.Unlock()
	err := s.apply(ctx, msg)
	if msg.MessageID != "" && errors.Is(err, common.ErrProtocolPaused) {
		s.seen.Remove(msg.MessageID)
	}
	return err
}

func (s *Service) apply(ctx context.Context, msg *stream.Message) error {
	switch msg.Type {
	case stream.MessageCommit:
		_, err := s.engine.CommitVote(ctx, msg.Voter, msg.QueryID, msg.CommitHash)
		return err
	case stream.MessageReveal:
		_, err := s.engine.RevealVote(ctx, msg.Voter, msg.QueryID, msg.Value, msg.Salt, msg.Confidence)
		if errors.Is(err, common.ErrRevealNotOpen) {
			key := common.VoteKey{QueryID: msg.QueryID, VoterID: msg.Voter}
			s.parked[key] = msg
			log.Debug().Str("vote", key.String()).Msg("parked early reveal")
			return nil
		}
		return err
	case stream.MessageAck:
		_, err := s.engine.AcknowledgeCallback(msg.QueryID)
		return err
	}
	return fmt.Errorf("unsupported message type %q", msg.Type)
}

// applyParked retries parked reveals. A reveal stays parked only while its
// query is still in the commit phase.
func (s *Service) applyParked(ctx context.Context) int {
	revealed := 0
	for key, msg := range s.parked {
		_, err := s.engine.RevealVote(ctx, msg.Voter, msg.QueryID, msg.Value, msg.Salt, msg.Confidence)
		if errors.Is(err, common.ErrRevealNotOpen) {
			continue
		}
		delete(s.parked, key)
		if err != nil {
			log.Warn().Err(err).Str("vote", key.String()).Msg("dropped parked reveal")
			continue
		}
		revealed++
	}
	return revealed
}

// Parked returns the number of reveals waiting for their reveal phase.
func (s *Service) Parked() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.parked)
}
