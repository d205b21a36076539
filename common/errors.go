package common

import "errors"

// Kind classifies an Error so transports can map it without knowing every sentinel.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is a malformed request, rejected before any state is read.
	KindValidation
	// KindState is a request that is well formed but not allowed in the current state.
	KindState
	KindNotFound
	KindUnauthorized
	// KindInternal marks a broken invariant. Never expected at runtime.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a sentinel carrying a stable code. Wrap it with fmt.Errorf("%w: ...") for detail.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the first *Error in err's chain, or "INTERNAL".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// input validation
var (
	ErrEmptyDescription      = newError(KindValidation, "EMPTY_DESCRIPTION", "description must not be empty")
	ErrDescriptionTooLong    = newError(KindValidation, "DESCRIPTION_TOO_LONG", "description is too long")
	ErrTooFewOutcomes        = newError(KindValidation, "TOO_FEW_OUTCOMES", "at least two outcomes are required")
	ErrTooManyOutcomes       = newError(KindValidation, "TOO_MANY_OUTCOMES", "too many outcomes")
	ErrEmptyOutcome          = newError(KindValidation, "EMPTY_OUTCOME", "outcomes must not be empty")
	ErrOutcomeTooLong        = newError(KindValidation, "OUTCOME_TOO_LONG", "outcome is too long")
	ErrDuplicateOutcome      = newError(KindValidation, "DUPLICATE_OUTCOME", "outcomes must be unique")
	ErrNonNumericOutcomes    = newError(KindValidation, "NON_NUMERIC_OUTCOMES", "median strategy requires numeric outcomes")
	ErrInvalidStrategy       = newError(KindValidation, "INVALID_STRATEGY", "unknown decision strategy")
	ErrInvalidMinVotes       = newError(KindValidation, "INVALID_MIN_VOTES", "minimum votes out of range")
	ErrZeroReward            = newError(KindValidation, "ZERO_REWARD", "reward amount must be greater than zero")
	ErrInvalidDeadline       = newError(KindValidation, "INVALID_DEADLINE", "deadline must be in the future")
	ErrInvalidAmount         = newError(KindValidation, "INVALID_AMOUNT", "invalid amount")
	ErrStakeBelowMinimum     = newError(KindValidation, "STAKE_BELOW_MINIMUM", "stake is below the protocol minimum")
	ErrInvalidConfidence     = newError(KindValidation, "INVALID_CONFIDENCE", "confidence must be between 0 and 100")
	ErrInvalidCommitHash     = newError(KindValidation, "INVALID_COMMIT_HASH", "commit hash must be 32 hex encoded bytes")
	ErrInvalidOutcome        = newError(KindValidation, "INVALID_OUTCOME", "value is not one of the query outcomes")
	ErrInvalidAddress        = newError(KindValidation, "INVALID_ADDRESS", "voter address must not be empty")
	ErrInsufficientFee       = newError(KindValidation, "INSUFFICIENT_FEE", "fee is below the base fee")
	ErrInvalidCallbackTarget = newError(KindValidation, "INVALID_CALLBACK_TARGET", "invalid callback target")
	ErrInvalidParameters     = newError(KindValidation, "INVALID_PARAMETERS", "invalid protocol parameters")
)

// protocol state
var (
	ErrQueryNotFound       = newError(KindNotFound, "QUERY_NOT_FOUND", "query not found")
	ErrVoterNotFound       = newError(KindNotFound, "VOTER_NOT_FOUND", "voter not found")
	ErrCallbackNotFound    = newError(KindNotFound, "CALLBACK_NOT_FOUND", "callback record not found")
	ErrVoterExists         = newError(KindState, "VOTER_EXISTS", "voter is already registered")
	ErrVoterInactive       = newError(KindState, "VOTER_INACTIVE", "voter is not active")
	ErrQueryClosed         = newError(KindState, "QUERY_CLOSED", "query is already resolved or expired")
	ErrPhaseClosed         = newError(KindState, "PHASE_CLOSED", "voting phase has closed")
	ErrRevealNotOpen       = newError(KindState, "REVEAL_NOT_OPEN", "reveal phase has not started")
	ErrAlreadyCommitted    = newError(KindState, "ALREADY_COMMITTED", "voter already committed on this query")
	ErrAlreadyRevealed     = newError(KindState, "ALREADY_REVEALED", "voter already revealed on this query")
	ErrNoCommitment        = newError(KindState, "NO_COMMITMENT", "no commitment found for voter")
	ErrInvalidReveal       = newError(KindState, "INVALID_REVEAL", "revealed value does not match commitment")
	ErrReputationTooLow    = newError(KindState, "REPUTATION_TOO_LOW", "voter reputation is below the minimum")
	ErrInsufficientStake   = newError(KindState, "INSUFFICIENT_STAKE", "insufficient free stake")
	ErrQueryFull           = newError(KindState, "QUERY_FULL", "query reached the maximum number of voters")
	ErrNoRewardsAvailable  = newError(KindState, "NO_REWARDS_AVAILABLE", "no rewards available")
	ErrStakeLocked         = newError(KindState, "STAKE_LOCKED", "voter has stake locked in active votes")
	ErrPendingRewards      = newError(KindState, "PENDING_REWARDS", "voter has unclaimed rewards")
	ErrProtocolPaused      = newError(KindState, "PROTOCOL_PAUSED", "protocol is paused")
	ErrDirectVotesDisabled = newError(KindState, "DIRECT_VOTES_DISABLED", "direct votes are disabled")
	ErrUnauthorized        = newError(KindUnauthorized, "UNAUTHORIZED", "caller is not authorized")
)

// ErrInvariant is returned when checked arithmetic or a bookkeeping invariant fails.
var ErrInvariant = newError(KindInternal, "INVARIANT_VIOLATION", "invariant violation")
