package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/engine"
	"github.com/rangesecurity/oracle/service"
	"github.com/rs/zerolog"
)

// Handler implements every API route on top of a service.Service.
type Handler struct {
	service *service.Service
	logger  zerolog.Logger
}

func NewHandler(s *service.Service, logger zerolog.Logger) *Handler {
	return &Handler{service: s, logger: logger.With().Str("component", "api").Logger()}
}

var errBadRequest = errors.New("bad request")

func (h *Handler) ActiveQueries(w http.ResponseWriter, r *http.Request) {
	var out []queryResponse
	_ = h.service.View(func(e *engine.Engine) error {
		for _, q := range e.ActiveQueries() {
			out = append(out, toQuery(q))
		}
		return nil
	})
	if out == nil {
		out = []queryResponse{}
	}
	h.jsonResponse(w, r, http.StatusOK, out)
}

func (h *Handler) QueryGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var q common.Query
	if err := h.service.View(func(e *engine.Engine) (err error) {
		q, err = e.Query(id)
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusOK, toQuery(q))
}

func (h *Handler) QueryVotes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var votes []common.Vote
	if err := h.service.View(func(e *engine.Engine) (err error) {
		votes, err = e.Votes(id)
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusOK, votes)
}

func (h *Handler) QueryCreate(w http.ResponseWriter, r *http.Request) {
	var req createQueryRequest
	if err := decode(r, &req); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var q common.Query
	if err := h.service.Do(func(e *engine.Engine) (err error) {
		q, err = e.CreateQuery(r.Context(), req.toEngine())
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusCreated, toQuery(q))
}

func (h *Handler) MarketRegister(w http.ResponseWriter, r *http.Request) {
	var req marketRequest
	if err := decode(r, &req); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var q common.Query
	if err := h.service.Do(func(e *engine.Engine) (err error) {
		q, err = e.RegisterExternalMarket(r.Context(), req.toEngine())
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusCreated, toQuery(q))
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var req commitRequest
	if err := decode(r, &req); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var vote common.Vote
	if err := h.service.Do(func(e *engine.Engine) (err error) {
		vote, err = e.CommitVote(r.Context(), req.Voter, id, req.CommitHash)
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusOK, vote)
}

func (h *Handler) Reveal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var req revealRequest
	if err := decode(r, &req); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var vote common.Vote
	if err := h.service.Do(func(e *engine.Engine) (err error) {
		vote, err = e.RevealVote(r.Context(), req.Voter, id, req.Value, req.Salt, req.Confidence)
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	vote.Salt = ""
	h.jsonResponse(w, r, http.StatusOK, vote)
}

func (h *Handler) DirectVote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var req directVoteRequest
	if err := decode(r, &req); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var vote common.Vote
	if err := h.service.Do(func(e *engine.Engine) (err error) {
		vote, err = e.SubmitDirectVote(r.Context(), req.Voter, id, req.Value, req.Confidence)
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusOK, vote)
}

func (h *Handler) Voters(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	limit, err := intParam(params.Get("limit"))
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	offset, err := intParam(params.Get("offset"))
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	activeOnly := false
	if s := params.Get("activeOnly"); s != "" {
		if activeOnly, err = strconv.ParseBool(s); err != nil {
			h.errorResponse(w, r, fmt.Errorf("%w: activeOnly %q", errBadRequest, s))
			return
		}
	}
	out := []voterResponse{}
	_ = h.service.View(func(e *engine.Engine) error {
		for _, v := range e.Voters(limit, offset, activeOnly) {
			out = append(out, toVoter(v))
		}
		return nil
	})
	h.jsonResponse(w, r, http.StatusOK, out)
}

func (h *Handler) VoterGet(w http.ResponseWriter, r *http.Request) {
	var v common.Voter
	if err := h.service.View(func(e *engine.Engine) (err error) {
		v, err = e.Voter(mux.Vars(r)["address"])
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusOK, toVoter(v))
}

func (h *Handler) VoterRewards(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	var pending common.Amount
	if err := h.service.View(func(e *engine.Engine) (err error) {
		pending, err = e.PendingRewards(address)
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusOK, rewardsResponse{Address: address, PendingRewards: pending})
}

func (h *Handler) VoterRegister(w http.ResponseWriter, r *http.Request) {
	var req registerVoterRequest
	if err := decode(r, &req); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var v common.Voter
	if err := h.service.Do(func(e *engine.Engine) (err error) {
		v, err = e.RegisterVoter(req.Address, req.Stake, req.Name, req.MetadataURL)
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusCreated, toVoter(v))
}

func (h *Handler) VoterStake(w http.ResponseWriter, r *http.Request) {
	h.stakeChange(w, r, (*engine.Engine).UpdateStake)
}

func (h *Handler) VoterWithdraw(w http.ResponseWriter, r *http.Request) {
	h.stakeChange(w, r, (*engine.Engine).WithdrawStake)
}

func (h *Handler) stakeChange(w http.ResponseWriter, r *http.Request, op func(*engine.Engine, string, common.Amount) (common.Voter, error)) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var v common.Voter
	if err := h.service.Do(func(e *engine.Engine) (err error) {
		v, err = op(e, mux.Vars(r)["address"], req.Amount)
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusOK, toVoter(v))
}

func (h *Handler) VoterClaim(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	var claimed common.Amount
	if err := h.service.Do(func(e *engine.Engine) (err error) {
		claimed, err = e.ClaimRewards(address)
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusOK, claimResponse{Address: address, Claimed: claimed})
}

func (h *Handler) VoterDeregister(w http.ResponseWriter, r *http.Request) {
	var v common.Voter
	if err := h.service.Do(func(e *engine.Engine) (err error) {
		v, err = e.DeregisterVoter(mux.Vars(r)["address"])
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusOK, toVoter(v))
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	var stats common.Statistics
	_ = h.service.View(func(e *engine.Engine) error {
		stats = e.Statistics()
		return nil
	})
	h.jsonResponse(w, r, http.StatusOK, stats)
}

func (h *Handler) Parameters(w http.ResponseWriter, r *http.Request) {
	var params common.ProtocolParameters
	_ = h.service.View(func(e *engine.Engine) error {
		params = e.Params()
		return nil
	})
	h.jsonResponse(w, r, http.StatusOK, params)
}

func (h *Handler) CallbackGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var rec common.CallbackRecord
	if err := h.service.View(func(e *engine.Engine) (err error) {
		rec, err = e.Callback(id)
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusOK, rec)
}

func (h *Handler) CallbackAck(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var rec common.CallbackRecord
	if err := h.service.Do(func(e *engine.Engine) (err error) {
		rec, err = e.AcknowledgeCallback(id)
		return
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusOK, rec)
}

// TickAdvance applies every due phase transition. Per query failures are
// logged and the transitions that succeeded are still reported.
func (h *Handler) TickAdvance(w http.ResponseWriter, r *http.Request) {
	var report engine.TickReport
	_ = h.service.Do(func(e *engine.Engine) error {
		var err error
		if report, err = e.AdvancePhases(r.Context()); err != nil {
			h.logger.Error().Err(err).Msg("failed to advance some queries")
		}
		return nil
	})
	h.jsonResponse(w, r, http.StatusOK, report)
}

func (h *Handler) TickExpire(w http.ResponseWriter, r *http.Request) {
	var expired []uint64
	_ = h.service.Do(func(e *engine.Engine) error {
		var err error
		if expired, err = e.CheckExpiredQueries(r.Context()); err != nil {
			h.logger.Error().Err(err).Msg("failed to expire some queries")
		}
		return nil
	})
	if expired == nil {
		expired = []uint64{}
	}
	h.jsonResponse(w, r, http.StatusOK, expireResponse{Expired: expired})
}

func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.admin(w, r, (*engine.Engine).Pause)
}

func (h *Handler) Unpause(w http.ResponseWriter, r *http.Request) {
	h.admin(w, r, (*engine.Engine).Unpause)
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request, op func(*engine.Engine, string) error) {
	var req adminRequest
	if err := decode(r, &req); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	var stats common.Statistics
	if err := h.service.Do(func(e *engine.Engine) error {
		if err := op(e, req.Caller); err != nil {
			return err
		}
		stats = e.Statistics()
		return nil
	}); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.jsonResponse(w, r, http.StatusOK, stats)
}

func (h *Handler) jsonResponse(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error().Err(err).Str("request_url", r.URL.String()).Msg("failed to encode response")
		h.errorResponse(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		h.logger.Error().Err(err).Str("request_url", r.URL.String()).Msg("failed to write response")
	}
}

func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	code := common.CodeOf(err)
	if errors.Is(err, errBadRequest) {
		code = "BAD_REQUEST"
	}
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("request_url", r.URL.String()).Msg("request failed")
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	body, _ := json.Marshal(errorResponse{Code: status, Error: code, Message: err.Error()})
	if _, err := w.Write(body); err != nil {
		h.logger.Error().Err(err).Msg("failed to send error response")
	}
}

// StatusOf maps an error to its HTTP status by kind.
func StatusOf(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	switch common.KindOf(err) {
	case common.KindValidation:
		return http.StatusBadRequest
	case common.KindState:
		return http.StatusConflict
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindUnauthorized:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if common.KindOf(err) == common.KindValidation {
			return err
		}
		return fmt.Errorf("%w: %s", errBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request) (uint64, error) {
	s := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: query id %q", errBadRequest, s)
	}
	return id, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q is not a non-negative integer", errBadRequest, s)
	}
	return n, nil
}
