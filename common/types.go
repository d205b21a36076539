package common

import (
	"fmt"
	"time"
)

type Strategy string

const (
	StrategyMajority             Strategy = "majority"
	StrategyMedian               Strategy = "median"
	StrategyWeightedByStake      Strategy = "weighted_by_stake"
	StrategyWeightedByReputation Strategy = "weighted_by_reputation"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyMajority, StrategyMedian, StrategyWeightedByStake, StrategyWeightedByReputation:
		return Strategy(s), nil
	case "":
		return StrategyMajority, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
}

type QueryStatus string

const (
	StatusCommitPhase QueryStatus = "commit_phase"
	StatusRevealPhase QueryStatus = "reveal_phase"
	StatusResolved    QueryStatus = "resolved"
	StatusExpired     QueryStatus = "expired"
)

// Rank orders statuses along the lifecycle. A query's rank never decreases.
func (s QueryStatus) Rank() int {
	switch s {
	case StatusCommitPhase:
		return 0
	case StatusRevealPhase:
		return 1
	case StatusResolved, StatusExpired:
		return 2
	}
	return -1
}

func (s QueryStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusExpired
}

type SourceKind string

const (
	SourceInternal SourceKind = "internal"
	SourceExternal SourceKind = "external"
)

type TargetKind string

const (
	// TargetHTTP posts the notification as JSON to Address.
	TargetHTTP TargetKind = "http"
	// TargetChain broadcasts the notification as a transaction through the chain RPC at Address.
	TargetChain TargetKind = "chain"
	// TargetStream appends the notification to the redis stream named by Address.
	TargetStream TargetKind = "stream"
)

// CallbackTarget identifies where an external market expects its resolution.
type CallbackTarget struct {
	Kind    TargetKind `json:"kind"`
	Address string     `json:"address"`
	Method  string     `json:"method,omitempty"`
	// Data is opaque to the oracle and echoed back in the notification.
	Data string `json:"data,omitempty"`
}

func (t CallbackTarget) Validate() error {
	switch t.Kind {
	case TargetHTTP, TargetChain, TargetStream:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCallbackTarget, t.Kind)
	}
	if t.Address == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidCallbackTarget)
	}
	return nil
}

type Source struct {
	Kind     SourceKind      `json:"kind"`
	Callback *CallbackTarget `json:"callback,omitempty"`
	Fee      Amount          `json:"fee"`
}

type Query struct {
	ID           uint64   `json:"id"`
	Creator      string   `json:"creator"`
	Description  string   `json:"description"`
	Outcomes     []string `json:"outcomes"`
	Strategy     Strategy `json:"strategy"`
	MinVotes     int      `json:"minVotes"`
	RewardAmount Amount   `json:"rewardAmount"`
	Source       Source   `json:"source"`

	Status         QueryStatus   `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	CommitDeadline time.Time     `json:"commitDeadline"`
	RevealWindow   time.Duration `json:"revealWindow"`
	// RevealDeadline is set when the query enters the reveal phase.
	RevealDeadline time.Time `json:"revealDeadline"`
	CommitCount    int       `json:"commitCount"`
	RevealCount    int       `json:"revealCount"`

	FinalOutcome        *int      `json:"finalOutcome,omitempty"`
	AggregateConfidence uint8     `json:"aggregateConfidence"`
	ResolvedAt          time.Time `json:"resolvedAt"`
}

func (q Query) IsExternal() bool { return q.Source.Kind == SourceExternal }

// FinalValue returns the resolved outcome label, or "" while unresolved.
func (q Query) FinalValue() string {
	if q.FinalOutcome == nil || *q.FinalOutcome < 0 || *q.FinalOutcome >= len(q.Outcomes) {
		return ""
	}
	return q.Outcomes[*q.FinalOutcome]
}

// OutcomeIndex returns the index of value in the outcome list.
func (q Query) OutcomeIndex(value string) (int, bool) {
	for i, o := range q.Outcomes {
		if o == value {
			return i, true
		}
	}
	return -1, false
}

// Clone returns a deep copy safe to hand out of the engine.
func (q Query) Clone() Query {
	out := q
	out.Outcomes = append([]string(nil), q.Outcomes...)
	if q.Source.Callback != nil {
		cb := *q.Source.Callback
		out.Source.Callback = &cb
	}
	if q.FinalOutcome != nil {
		idx := *q.FinalOutcome
		out.FinalOutcome = &idx
	}
	return out
}

// VoteKey is the idempotency key for vote application.
type VoteKey struct {
	QueryID uint64
	VoterID string
}

func (k VoteKey) String() string { return fmt.Sprintf("%d/%s", k.QueryID, k.VoterID) }

type Vote struct {
	QueryID      uint64    `json:"queryId"`
	VoterID      string    `json:"voterId"`
	CommitHash   string    `json:"commitHash"`
	Revealed     bool      `json:"revealed"`
	Value        string    `json:"value,omitempty"`
	OutcomeIndex int       `json:"outcomeIndex"`
	Salt         string    `json:"-"`
	Confidence   uint8     `json:"confidence"`
	StakeLocked  Amount    `json:"stakeLocked"`
	CommittedAt  time.Time `json:"committedAt"`
	RevealedAt   time.Time `json:"revealedAt"`
	// Direct marks a vote submitted without a commitment.
	Direct bool `json:"direct,omitempty"`
}

func (v Vote) Key() VoteKey { return VoteKey{QueryID: v.QueryID, VoterID: v.VoterID} }

type ReputationTier string

const (
	TierNovice       ReputationTier = "novice"
	TierIntermediate ReputationTier = "intermediate"
	TierExpert       ReputationTier = "expert"
	TierMaster       ReputationTier = "master"
)

const MaxReputation uint32 = 100

type Voter struct {
	Address        string    `json:"address"`
	Name           string    `json:"name,omitempty"`
	MetadataURL    string    `json:"metadataUrl,omitempty"`
	Stake          Amount    `json:"stake"`
	LockedStake    Amount    `json:"lockedStake"`
	Reputation     uint32    `json:"reputation"`
	TotalVotes     uint64    `json:"totalVotes"`
	CorrectVotes   uint64    `json:"correctVotes"`
	CorrectStreak  uint64    `json:"correctStreak"`
	IsActive       bool      `json:"isActive"`
	RegisteredAt   time.Time `json:"registeredAt"`
	LastActive     time.Time `json:"lastActive"`
	PendingRewards Amount    `json:"pendingRewards"`
}

func (v Voter) FreeStake() Amount { return v.Stake.SaturatingSub(v.LockedStake) }

func (v Voter) Tier() ReputationTier {
	switch {
	case v.Reputation > 90:
		return TierMaster
	case v.Reputation > 70:
		return TierExpert
	case v.Reputation > 40:
		return TierIntermediate
	default:
		return TierNovice
	}
}

// Accuracy is the percentage of settled votes that matched the final outcome.
func (v Voter) Accuracy() float64 {
	if v.TotalVotes == 0 {
		return 0
	}
	return float64(v.CorrectVotes) * 100 / float64(v.TotalVotes)
}

type CallbackStatus string

const (
	CallbackPending   CallbackStatus = "pending"
	CallbackDelivered CallbackStatus = "delivered"
	CallbackFailed    CallbackStatus = "failed"
)

// Notification is the resolution payload delivered to an external market.
type Notification struct {
	QueryID             uint64    `json:"queryId"`
	FinalOutcome        int       `json:"finalOutcome"`
	OutcomeValue        string    `json:"outcomeValue"`
	AggregateConfidence uint8     `json:"aggregateConfidence"`
	ResolvedAt          time.Time `json:"resolvedAt"`
	CallbackData        string    `json:"callbackData,omitempty"`
}

type CallbackRecord struct {
	QueryID         uint64         `json:"queryId"`
	Target          CallbackTarget `json:"target"`
	Payload         Notification   `json:"payload"`
	Attempts        int            `json:"attempts"`
	NextRetryAt     time.Time      `json:"nextRetryAt"`
	BackoffExponent int            `json:"backoffExponent"`
	Status          CallbackStatus `json:"status"`
	LastError       string         `json:"lastError,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	DeliveredAt     time.Time      `json:"deliveredAt"`
}

// Registers are the scalar balances and counters kept next to the keyed maps.
type Registers struct {
	NextQueryID        uint64 `json:"nextQueryId"`
	TotalStake         Amount `json:"totalStake"`
	Treasury           Amount `json:"treasury"`
	RewardPool         Amount `json:"rewardPool"`
	RewardsDistributed Amount `json:"rewardsDistributed"`
	TotalSlashed       Amount `json:"totalSlashed"`
	QueriesCreated     uint64 `json:"queriesCreated"`
	QueriesResolved    uint64 `json:"queriesResolved"`
	QueriesExpired     uint64 `json:"queriesExpired"`
	VotesCommitted     uint64 `json:"votesCommitted"`
	VotesRevealed      uint64 `json:"votesRevealed"`
	Paused             bool   `json:"paused"`
}

type Statistics struct {
	TotalVoters          int     `json:"totalVoters"`
	ActiveVoters         int     `json:"activeVoters"`
	TotalStake           Amount  `json:"totalStake"`
	LockedStake          Amount  `json:"lockedStake"`
	AverageStake         Amount  `json:"averageStake"`
	AverageReputation    float64 `json:"averageReputation"`
	TotalQueries         uint64  `json:"totalQueries"`
	ActiveQueries        int     `json:"activeQueries"`
	ResolvedQueries      uint64  `json:"resolvedQueries"`
	ExpiredQueries       uint64  `json:"expiredQueries"`
	ResolutionRate       float64 `json:"resolutionRate"`
	TotalVotes           uint64  `json:"totalVotes"`
	AverageVotesPerQuery float64 `json:"averageVotesPerQuery"`
	Treasury             Amount  `json:"treasury"`
	RewardPool           Amount  `json:"rewardPool"`
	RewardsDistributed   Amount  `json:"rewardsDistributed"`
	TotalSlashed         Amount  `json:"totalSlashed"`
	PendingCallbacks     int     `json:"pendingCallbacks"`
	FailedCallbacks      int     `json:"failedCallbacks"`
	Paused               bool    `json:"paused"`
}

// Snapshot is the full persisted state of the registry.
type Snapshot struct {
	Params    ProtocolParameters
	Registers Registers
	Voters    []Voter
	Queries   []Query
	Votes     []Vote
	Callbacks []CallbackRecord
}
