package common

import (
	"fmt"
	"time"
)

// NonRevealPolicy decides what happens to a commitment that is never revealed.
type NonRevealPolicy string

const (
	// NonRevealRelease unlocks the stake and applies the milder reputation penalty.
	NonRevealRelease NonRevealPolicy = "release"
	// NonRevealSlash treats the missing reveal like an incorrect one for stake purposes.
	NonRevealSlash NonRevealPolicy = "slash"
)

// RewardSplit selects how a query reward is shared between correct voters.
type RewardSplit string

const (
	RewardSplitStake           RewardSplit = "stake"
	RewardSplitStakeConfidence RewardSplit = "stake_confidence"
	RewardSplitEqual           RewardSplit = "equal"
)

// ProtocolParameters are fixed for the lifetime of a registry.
type ProtocolParameters struct {
	MinStake              Amount        `json:"minStake" env:"MIN_STAKE" envDefault:"100"`
	MinVotersPerQuery     int           `json:"minVotersPerQuery" env:"MIN_VOTERS_PER_QUERY" envDefault:"3"`
	MaxVotersPerQuery     int           `json:"maxVotersPerQuery" env:"MAX_VOTERS_PER_QUERY" envDefault:"50"`
	CommitPhaseDuration   time.Duration `json:"commitPhaseDuration" env:"COMMIT_PHASE_DURATION" envDefault:"1h"`
	RevealPhaseDuration   time.Duration `json:"revealPhaseDuration" env:"REVEAL_PHASE_DURATION" envDefault:"1h"`
	BaseFee               Amount        `json:"baseFee" env:"BASE_FEE" envDefault:"10"`
	ProtocolFeePercentage uint8         `json:"protocolFeePercentage" env:"PROTOCOL_FEE_PERCENTAGE" envDefault:"10"`
	SlashPercentage       uint8         `json:"slashPercentage" env:"SLASH_PERCENTAGE" envDefault:"10"`
	MinReputation         uint32        `json:"minReputation" env:"MIN_REPUTATION" envDefault:"20"`

	// stake put at risk per commit: max(VoteStake, free stake * StakeLockPercentage / 100)
	VoteStake           Amount `json:"voteStake" env:"VOTE_STAKE" envDefault:"10"`
	StakeLockPercentage uint8  `json:"stakeLockPercentage" env:"STAKE_LOCK_PERCENTAGE" envDefault:"10"`

	InitialReputation  uint32 `json:"initialReputation" env:"INITIAL_REPUTATION" envDefault:"50"`
	ReputationIncrease uint32 `json:"reputationIncrease" env:"REPUTATION_INCREASE" envDefault:"10"`
	StreakBonus        uint32 `json:"streakBonus" env:"STREAK_BONUS" envDefault:"2"`
	ReputationDecrease uint32 `json:"reputationDecrease" env:"REPUTATION_DECREASE" envDefault:"5"`
	NonRevealPenalty   uint32 `json:"nonRevealPenalty" env:"NON_REVEAL_PENALTY" envDefault:"2"`

	MaxOutcomes          int           `json:"maxOutcomes" env:"MAX_OUTCOMES" envDefault:"10"`
	MaxDescriptionLength int           `json:"maxDescriptionLength" env:"MAX_DESCRIPTION_LENGTH" envDefault:"1000"`
	MaxOutcomeLength     int           `json:"maxOutcomeLength" env:"MAX_OUTCOME_LENGTH" envDefault:"200"`
	MaxQueryDuration     time.Duration `json:"maxQueryDuration" env:"MAX_QUERY_DURATION" envDefault:"8760h"`

	NonRevealPolicy  NonRevealPolicy `json:"nonRevealPolicy" env:"NON_REVEAL_POLICY" envDefault:"release"`
	RewardSplit      RewardSplit     `json:"rewardSplit" env:"REWARD_SPLIT" envDefault:"stake"`
	AllowDirectVotes bool            `json:"allowDirectVotes" env:"ALLOW_DIRECT_VOTES" envDefault:"false"`
}

// DefaultParameters mirrors the envDefault tags above.
func DefaultParameters() ProtocolParameters {
	return ProtocolParameters{
		MinStake:              NewAmount(100),
		MinVotersPerQuery:     3,
		MaxVotersPerQuery:     50,
		CommitPhaseDuration:   time.Hour,
		RevealPhaseDuration:   time.Hour,
		BaseFee:               NewAmount(10),
		ProtocolFeePercentage: 10,
		SlashPercentage:       10,
		MinReputation:         20,
		VoteStake:             NewAmount(10),
		StakeLockPercentage:   10,
		InitialReputation:     50,
		ReputationIncrease:    10,
		StreakBonus:           2,
		ReputationDecrease:    5,
		NonRevealPenalty:      2,
		MaxOutcomes:           10,
		MaxDescriptionLength:  1000,
		MaxOutcomeLength:      200,
		MaxQueryDuration:      365 * 24 * time.Hour,
		NonRevealPolicy:       NonRevealRelease,
		RewardSplit:           RewardSplitStake,
	}
}

func (p ProtocolParameters) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrInvalidParameters}, args...)...)
	}
	switch {
	case p.MinStake.IsZero():
		return invalid("min stake must be positive")
	case p.MinVotersPerQuery < 1:
		return invalid("min voters per query must be at least 1")
	case p.MaxVotersPerQuery < p.MinVotersPerQuery:
		return invalid("max voters per query %d below min %d", p.MaxVotersPerQuery, p.MinVotersPerQuery)
	case p.CommitPhaseDuration <= 0 || p.RevealPhaseDuration <= 0:
		return invalid("phase durations must be positive")
	case p.ProtocolFeePercentage > 50:
		return invalid("protocol fee %d%% exceeds 50%%", p.ProtocolFeePercentage)
	case p.SlashPercentage > 50:
		return invalid("slash percentage %d%% exceeds 50%%", p.SlashPercentage)
	case p.MinReputation > MaxReputation || p.InitialReputation > MaxReputation:
		return invalid("reputation thresholds exceed %d", MaxReputation)
	case p.InitialReputation < p.MinReputation:
		return invalid("initial reputation %d below min reputation %d", p.InitialReputation, p.MinReputation)
	case p.VoteStake.IsZero():
		return invalid("vote stake must be positive")
	case p.VoteStake.Gt(p.MinStake):
		return invalid("vote stake %s exceeds min stake %s", p.VoteStake, p.MinStake)
	case p.StakeLockPercentage > 100:
		return invalid("stake lock percentage exceeds 100")
	case p.NonRevealPenalty > p.ReputationDecrease,
		p.ReputationDecrease > 0 && p.NonRevealPenalty == p.ReputationDecrease:
		return invalid("non reveal penalty %d must be below the incorrect vote penalty %d", p.NonRevealPenalty, p.ReputationDecrease)
	case p.MaxOutcomes < 2:
		return invalid("max outcomes must be at least 2")
	case p.MaxDescriptionLength < 1 || p.MaxOutcomeLength < 1:
		return invalid("length limits must be positive")
	case p.MaxQueryDuration < p.CommitPhaseDuration+p.RevealPhaseDuration:
		return invalid("max query duration shorter than both phases")
	}
	switch p.NonRevealPolicy {
	case NonRevealRelease, NonRevealSlash:
	default:
		return invalid("unknown non reveal policy %q", p.NonRevealPolicy)
	}
	switch p.RewardSplit {
	case RewardSplitStake, RewardSplitStakeConfidence, RewardSplitEqual:
	default:
		return invalid("unknown reward split %q", p.RewardSplit)
	}
	return nil
}

// Clock abstracts wall time so ticks are reproducible.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
