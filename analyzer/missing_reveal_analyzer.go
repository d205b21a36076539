package analyzer

import (
	"context"
	"time"

	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/db"
	"github.com/rs/zerolog/log"
)

// MissingRevealAnalyzer warns about voters that committed on a query in its
// reveal phase but have not revealed yet. It reads the persisted snapshot so it
// can run next to the oracle service without touching the engine.
type MissingRevealAnalyzer struct {
	db     *db.Database
	ctx    context.Context
	cancel context.CancelFunc
}

func NewMissingRevealAnalyzer(
	ctx context.Context,
	db *db.Database,
) *MissingRevealAnalyzer {
	ctx, cancel := context.WithCancel(ctx)
	return &MissingRevealAnalyzer{
		db,
		ctx,
		cancel,
	}
}

func (mra *MissingRevealAnalyzer) Start(pollFrequency time.Duration) {
	ticker := time.NewTicker(pollFrequency)
	defer ticker.Stop()
	for {
		select {
		case <-mra.ctx.Done():
			return
		case <-ticker.C:
			if _, err := mra.Check(mra.ctx, time.Now().UTC()); err != nil {
				log.Error().Err(err).Msg("failed to check reveals")
			}
		}
	}
}

// Check logs every missing reveal and returns how many were found.
func (mra *MissingRevealAnalyzer) Check(ctx context.Context, now time.Time) (int, error) {
	queries, err := mra.db.GetQueriesByStatus(ctx, common.StatusRevealPhase)
	if err != nil {
		return 0, err
	}
	missing := 0
	for _, q := range queries {
		votes, err := mra.db.GetVotesForQuery(ctx, uint64(q.ID))
		if err != nil {
			log.Error().Err(err).Int64("query.id", q.ID).Msg("failed to query db for votes")
			continue
		}
		pending := MissingReveals(votes)
		for _, voter := range pending {
			log.Warn().
				Int64("query.id", q.ID).
				Str("voter", voter).
				Dur("remaining", q.RevealDeadline.Sub(now)).
				Msg("missing reveal")
		}
		missing += len(pending)
		log.Info().
			Int64("query.id", q.ID).
			Int64("num.revealed", q.RevealCount).
			Int64("num.committed", q.CommitCount).
			Int64("min_votes", q.MinVotes).
			Msg("checked reveals")
	}
	return missing, nil
}

func (mra *MissingRevealAnalyzer) Stop() {
	mra.cancel()
}

// MissingReveals returns the voters whose commitment is still unrevealed.
func MissingReveals(votes []db.VoteRecord) []string {
	var out []string
	for _, v := range votes {
		if !v.Revealed && !v.Direct {
			out = append(out, v.VoterID)
		}
	}
	return out
}
