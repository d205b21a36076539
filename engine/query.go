package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/strategy"
)

type CreateQueryRequest struct {
	Creator      string          `json:"creator"`
	Description  string          `json:"description"`
	Outcomes     []string        `json:"outcomes"`
	Strategy     common.Strategy `json:"strategy"`
	MinVotes     int             `json:"minVotes"`
	RewardAmount common.Amount   `json:"rewardAmount"`
	// Deadline, when set, replaces the default phase durations: the time until
	// the deadline is split evenly between the commit and reveal phases.
	Deadline *time.Time `json:"deadline,omitempty"`
}

// ExternalMarketRequest registers a query on behalf of a market that is notified on resolution.
type ExternalMarketRequest struct {
	Requester   string                `json:"requester"`
	Description string                `json:"description"`
	Outcomes    []string              `json:"outcomes"`
	Deadline    *time.Time            `json:"deadline,omitempty"`
	Callback    common.CallbackTarget `json:"callback"`
	Fee         common.Amount         `json:"fee"`
}

// CreateQuery validates req and opens a query in its commit phase.
// The reward is added to the reward pool.
func (e *Engine) CreateQuery(ctx context.Context, req CreateQueryRequest) (common.Query, error) {
	if err := e.checkNotPaused(); err != nil {
		return common.Query{}, err
	}
	strat, err := common.ParseStrategy(string(req.Strategy))
	if err != nil {
		return common.Query{}, err
	}
	if err := e.validateQuery(req.Description, req.Outcomes, strat); err != nil {
		return common.Query{}, err
	}
	if req.MinVotes < 1 || req.MinVotes > e.params.MaxVotersPerQuery {
		return common.Query{}, fmt.Errorf("%w: %d not in [1, %d]", common.ErrInvalidMinVotes, req.MinVotes, e.params.MaxVotersPerQuery)
	}
	if req.RewardAmount.IsZero() {
		return common.Query{}, common.ErrZeroReward
	}
	q := &common.Query{
		Creator:      req.Creator,
		Description:  req.Description,
		Outcomes:     append([]string(nil), req.Outcomes...),
		Strategy:     strat,
		MinVotes:     req.MinVotes,
		RewardAmount: req.RewardAmount,
		Source:       common.Source{Kind: common.SourceInternal},
	}
	if err := e.open(q, req.Deadline); err != nil {
		return common.Query{}, err
	}
	return q.Clone(), nil
}

// RegisterExternalMarket opens a majority query paid for by fee. The whole fee
// becomes the query reward, so the protocol share is taken once at settlement.
func (e *Engine) RegisterExternalMarket(ctx context.Context, req ExternalMarketRequest) (common.Query, error) {
	if err := e.checkNotPaused(); err != nil {
		return common.Query{}, err
	}
	if err := e.validateQuery(req.Description, req.Outcomes, common.StrategyMajority); err != nil {
		return common.Query{}, err
	}
	if err := req.Callback.Validate(); err != nil {
		return common.Query{}, err
	}
	if !e.callbacks.Supports(req.Callback.Kind) {
		return common.Query{}, fmt.Errorf("%w: no deliverer for %s targets", common.ErrInvalidCallbackTarget, req.Callback.Kind)
	}
	if req.Fee.Lt(e.params.BaseFee) || req.Fee.IsZero() {
		return common.Query{}, fmt.Errorf("%w: %s < %s", common.ErrInsufficientFee, req.Fee, e.params.BaseFee)
	}
	target := req.Callback
	q := &common.Query{
		Creator:      req.Requester,
		Description:  req.Description,
		Outcomes:     append([]string(nil), req.Outcomes...),
		Strategy:     common.StrategyMajority,
		MinVotes:     e.params.MinVotersPerQuery,
		RewardAmount: req.Fee,
		Source:       common.Source{Kind: common.SourceExternal, Callback: &target, Fee: req.Fee},
	}
	if err := e.open(q, req.Deadline); err != nil {
		return common.Query{}, err
	}
	return q.Clone(), nil
}

// open assigns the id and deadlines of a validated query and stores it.
func (e *Engine) open(q *common.Query, deadline *time.Time) error {
	now := e.clock.Now()
	commit, reveal := e.params.CommitPhaseDuration, e.params.RevealPhaseDuration
	if deadline != nil {
		window := deadline.Sub(now)
		if window < 2 {
			return fmt.Errorf("%w: %s", common.ErrInvalidDeadline, deadline.Format(time.RFC3339))
		}
		if window > e.params.MaxQueryDuration {
			return fmt.Errorf("%w: more than %s away", common.ErrInvalidDeadline, e.params.MaxQueryDuration)
		}
		commit = window / 2
		reveal = window - commit
	}
	pool, err := e.regs.RewardPool.Add(q.RewardAmount)
	if err != nil {
		return err
	}

	q.ID = e.regs.NextQueryID
	q.Status = common.StatusCommitPhase
	q.CreatedAt = now
	q.CommitDeadline = now.Add(commit)
	q.RevealWindow = reveal

	e.queries[q.ID] = q
	e.votes[q.ID] = make(map[string]*common.Vote)
	e.regs.NextQueryID++
	e.regs.QueriesCreated++
	e.regs.RewardPool = pool

	e.metrics.QueryCreated(string(q.Source.Kind))
	e.reportBalances()
	e.logger.Info().
		Uint64("query.id", q.ID).
		Str("source", string(q.Source.Kind)).
		Str("strategy", string(q.Strategy)).
		Str("reward", q.RewardAmount.String()).
		Time("commit_deadline", q.CommitDeadline).
		Msg("query created")
	return nil
}

func (e *Engine) validateQuery(description string, outcomes []string, strat common.Strategy) error {
	if strings.TrimSpace(description) == "" {
		return common.ErrEmptyDescription
	}
	if utf8.RuneCountInString(description) > e.params.MaxDescriptionLength {
		return fmt.Errorf("%w: limit %d", common.ErrDescriptionTooLong, e.params.MaxDescriptionLength)
	}
	if len(outcomes) < 2 {
		return common.ErrTooFewOutcomes
	}
	if len(outcomes) > e.params.MaxOutcomes {
		return fmt.Errorf("%w: limit %d", common.ErrTooManyOutcomes, e.params.MaxOutcomes)
	}
	seen := make(map[string]struct{}, len(outcomes))
	for _, o := range outcomes {
		if strings.TrimSpace(o) == "" {
			return common.ErrEmptyOutcome
		}
		if utf8.RuneCountInString(o) > e.params.MaxOutcomeLength {
			return fmt.Errorf("%w: %q", common.ErrOutcomeTooLong, o)
		}
		if _, dup := seen[o]; dup {
			return fmt.Errorf("%w: %q", common.ErrDuplicateOutcome, o)
		}
		seen[o] = struct{}{}
	}
	if strat == common.StrategyMedian {
		if _, err := strategy.NumericOutcomes(outcomes); err != nil {
			return err
		}
	}
	return nil
}
