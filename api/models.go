package api

import (
	"time"

	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/engine"
)

// Deadlines and timestamps cross the API as microseconds since the unix epoch.

type createQueryRequest struct {
	Creator      string        `json:"creator"`
	Description  string        `json:"description"`
	Outcomes     []string      `json:"outcomes"`
	Strategy     string        `json:"strategy"`
	MinVotes     int           `json:"minVotes"`
	RewardAmount common.Amount `json:"rewardAmount"`
	Deadline     *int64        `json:"deadline,omitempty"`
}

func (r createQueryRequest) toEngine() engine.CreateQueryRequest {
	return engine.CreateQueryRequest{
		Creator:      r.Creator,
		Description:  r.Description,
		Outcomes:     r.Outcomes,
		Strategy:     common.Strategy(r.Strategy),
		MinVotes:     r.MinVotes,
		RewardAmount: r.RewardAmount,
		Deadline:     fromMicros(r.Deadline),
	}
}

type marketRequest struct {
	Requester   string                `json:"requester"`
	Description string                `json:"description"`
	Outcomes    []string              `json:"outcomes"`
	Deadline    *int64                `json:"deadline,omitempty"`
	Callback    common.CallbackTarget `json:"callback"`
	Fee         common.Amount         `json:"fee"`
}

func (r marketRequest) toEngine() engine.ExternalMarketRequest {
	return engine.ExternalMarketRequest{
		Requester:   r.Requester,
		Description: r.Description,
		Outcomes:    r.Outcomes,
		Deadline:    fromMicros(r.Deadline),
		Callback:    r.Callback,
		Fee:         r.Fee,
	}
}

type registerVoterRequest struct {
	Address     string        `json:"address"`
	Stake       common.Amount `json:"stake"`
	Name        string        `json:"name,omitempty"`
	MetadataURL string        `json:"metadataUrl,omitempty"`
}

type amountRequest struct {
	Amount common.Amount `json:"amount"`
}

type commitRequest struct {
	Voter      string `json:"voter"`
	CommitHash string `json:"commitHash"`
}

type revealRequest struct {
	Voter      string `json:"voter"`
	Value      string `json:"value"`
	Salt       string `json:"salt"`
	Confidence int    `json:"confidence"`
}

type directVoteRequest struct {
	Voter      string `json:"voter"`
	Value      string `json:"value"`
	Confidence int    `json:"confidence"`
}

type adminRequest struct {
	Caller string `json:"caller"`
}

type queryResponse struct {
	common.Query
	CreatedAt      int64  `json:"createdAt"`
	CommitDeadline int64  `json:"commitDeadline"`
	RevealDeadline int64  `json:"revealDeadline,omitempty"`
	ResolvedAt     int64  `json:"resolvedAt,omitempty"`
	FinalValue     string `json:"finalValue,omitempty"`
}

func toQuery(q common.Query) queryResponse {
	return queryResponse{
		Query:          q,
		CreatedAt:      micros(q.CreatedAt),
		CommitDeadline: micros(q.CommitDeadline),
		RevealDeadline: micros(q.RevealDeadline),
		ResolvedAt:     micros(q.ResolvedAt),
		FinalValue:     q.FinalValue(),
	}
}

type voterResponse struct {
	common.Voter
	FreeStake    common.Amount         `json:"freeStake"`
	Tier         common.ReputationTier `json:"tier"`
	Accuracy     float64               `json:"accuracy"`
	RegisteredAt int64                 `json:"registeredAt"`
	LastActive   int64                 `json:"lastActive"`
}

func toVoter(v common.Voter) voterResponse {
	return voterResponse{
		Voter:        v,
		FreeStake:    v.FreeStake(),
		Tier:         v.Tier(),
		Accuracy:     v.Accuracy(),
		RegisteredAt: micros(v.RegisteredAt),
		LastActive:   micros(v.LastActive),
	}
}

type rewardsResponse struct {
	Address        string        `json:"address"`
	PendingRewards common.Amount `json:"pendingRewards"`
}

type claimResponse struct {
	Address string        `json:"address"`
	Claimed common.Amount `json:"claimed"`
}

type expireResponse struct {
	Expired []uint64 `json:"expired"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func micros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(us *int64) *time.Time {
	if us == nil {
		return nil
	}
	t := time.UnixMicro(*us).UTC()
	return &t
}
