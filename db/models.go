package db

import (
	"time"

	"github.com/rangesecurity/oracle/common"
)

// Amounts are stored as decimal token strings so no precision is lost.

type VoterRecord struct {
	// tableName is an optional field that specifies custom table name and alias.
	// By default go-pg generates table name and alias from struct name.
	//lint:ignore U1000 Ignore
	tableName struct{} `pg:"voters"`

	Address        string `pg:",pk"`
	Name           string
	MetadataURL    string `pg:"metadata_url"`
	Stake          string
	LockedStake    string `pg:"locked_stake"`
	Reputation     int64  `pg:",use_zero"`
	TotalVotes     int64  `pg:"total_votes,use_zero"`
	CorrectVotes   int64  `pg:"correct_votes,use_zero"`
	CorrectStreak  int64  `pg:"correct_streak,use_zero"`
	IsActive       bool   `pg:"is_active,use_zero"`
	RegisteredAt   time.Time
	LastActive     time.Time
	PendingRewards string `pg:"pending_rewards"`
}

type QueryRecord struct {
	//lint:ignore U1000 Ignore
	tableName struct{} `pg:"queries"`

	ID             int64 `pg:",pk"`
	Creator        string
	Description    string
	Outcomes       []string `pg:",array"`
	Strategy       string
	MinVotes       int64  `pg:"min_votes,use_zero"`
	RewardAmount   string `pg:"reward_amount"`
	SourceKind     string `pg:"source_kind"`
	Callback       *common.CallbackTarget
	Fee            string
	Status         string
	CreatedAt      time.Time
	CommitDeadline time.Time `pg:"commit_deadline"`
	// nanoseconds
	RevealWindow        int64     `pg:"reveal_window,use_zero"`
	RevealDeadline      time.Time `pg:"reveal_deadline"`
	CommitCount         int64     `pg:"commit_count,use_zero"`
	RevealCount         int64     `pg:"reveal_count,use_zero"`
	FinalOutcome        *int64    `pg:"final_outcome"`
	AggregateConfidence int64     `pg:"aggregate_confidence,use_zero"`
	ResolvedAt          time.Time `pg:"resolved_at"`
}

type VoteRecord struct {
	//lint:ignore U1000 Ignore
	tableName struct{} `pg:"votes"`

	QueryID      int64  `pg:",pk"`
	VoterID      string `pg:",pk"`
	CommitHash   string `pg:"commit_hash"`
	Revealed     bool   `pg:",use_zero"`
	Value        string
	OutcomeIndex int64 `pg:"outcome_index,use_zero"`
	Salt         string
	Confidence   int64  `pg:",use_zero"`
	StakeLocked  string `pg:"stake_locked"`
	CommittedAt  time.Time
	RevealedAt   time.Time
	Direct       bool `pg:",use_zero"`
}

type CallbackRecord struct {
	//lint:ignore U1000 Ignore
	tableName struct{} `pg:"callbacks"`

	QueryID         int64 `pg:",pk"`
	Target          common.CallbackTarget
	Payload         common.Notification
	Attempts        int64 `pg:",use_zero"`
	NextRetryAt     time.Time
	BackoffExponent int64 `pg:"backoff_exponent,use_zero"`
	Status          string
	LastError       string `pg:"last_error"`
	CreatedAt       time.Time
	DeliveredAt     time.Time
}

// RegistersRecord is the single row holding scalar registry state.
type RegistersRecord struct {
	//lint:ignore U1000 Ignore
	tableName struct{} `pg:"registers"`

	ID                 int64 `pg:",pk"`
	Params             common.ProtocolParameters
	NextQueryID        int64 `pg:"next_query_id,use_zero"`
	Treasury           string
	RewardPool         string `pg:"reward_pool"`
	RewardsDistributed string `pg:"rewards_distributed"`
	TotalSlashed       string `pg:"total_slashed"`
	QueriesCreated     int64  `pg:"queries_created,use_zero"`
	QueriesResolved    int64  `pg:"queries_resolved,use_zero"`
	QueriesExpired     int64  `pg:"queries_expired,use_zero"`
	VotesCommitted     int64  `pg:"votes_committed,use_zero"`
	VotesRevealed      int64  `pg:"votes_revealed,use_zero"`
	Paused             bool   `pg:",use_zero"`
	SavedAt            time.Time
}
