// Package api exposes the oracle over a JSON HTTP API.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type route struct {
	name    string
	method  string
	pattern string
	handler http.HandlerFunc
}

// NewRouter returns the API routes plus /metrics served from gatherer.
// A nil gatherer leaves /metrics out.
func NewRouter(h *Handler, gatherer prometheus.Gatherer, logger zerolog.Logger) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.Use(loggingMiddleware(logger))
	for _, r := range h.routes() {
		router.Methods(r.method).Path(r.pattern).Name(r.name).Handler(r.handler)
	}
	if gatherer != nil {
		router.Methods(http.MethodGet).Path("/metrics").Handler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return router
}

func NewServer(h *Handler, gatherer prometheus.Gatherer, listenAddress string, logger zerolog.Logger) *http.Server {
	return &http.Server{
		Addr:         listenAddress,
		Handler:      NewRouter(h, gatherer, logger),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
	}
}

func (h *Handler) routes() []route {
	return []route{
		{"ActiveQueries", http.MethodGet, "/queries/active", h.ActiveQueries},
		{"QueryGet", http.MethodGet, "/queries/{id:[0-9]+}", h.QueryGet},
		{"QueryVotes", http.MethodGet, "/queries/{id:[0-9]+}/votes", h.QueryVotes},
		{"QueryCreate", http.MethodPost, "/queries", h.QueryCreate},
		{"MarketRegister", http.MethodPost, "/markets", h.MarketRegister},
		{"Commit", http.MethodPost, "/queries/{id:[0-9]+}/commit", h.Commit},
		{"Reveal", http.MethodPost, "/queries/{id:[0-9]+}/reveal", h.Reveal},
		{"DirectVote", http.MethodPost, "/queries/{id:[0-9]+}/vote", h.DirectVote},

		{"Voters", http.MethodGet, "/voters", h.Voters},
		{"VoterGet", http.MethodGet, "/voters/{address}", h.VoterGet},
		{"VoterRewards", http.MethodGet, "/voters/{address}/rewards", h.VoterRewards},
		{"VoterRegister", http.MethodPost, "/voters", h.VoterRegister},
		{"VoterStake", http.MethodPost, "/voters/{address}/stake", h.VoterStake},
		{"VoterWithdraw", http.MethodPost, "/voters/{address}/withdraw", h.VoterWithdraw},
		{"VoterClaim", http.MethodPost, "/voters/{address}/claim", h.VoterClaim},
		{"VoterDeregister", http.MethodDelete, "/voters/{address}", h.VoterDeregister},

		{"Statistics", http.MethodGet, "/statistics", h.Statistics},
		{"Parameters", http.MethodGet, "/parameters", h.Parameters},
		{"CallbackGet", http.MethodGet, "/callbacks/{id:[0-9]+}", h.CallbackGet},
		{"CallbackAck", http.MethodPost, "/callbacks/{id:[0-9]+}/ack", h.CallbackAck},

		{"TickAdvance", http.MethodPost, "/ticks/advance", h.TickAdvance},
		{"TickExpire", http.MethodPost, "/ticks/expire", h.TickExpire},
		{"Pause", http.MethodPost, "/admin/pause", h.Pause},
		{"Unpause", http.MethodPost, "/admin/unpause", h.Unpause},
	}
}

// loggingMiddleware logs method, uri, duration and response code of every request.
func loggingMiddleware(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			respWriter := newResponseWriter(w)
			handler.ServeHTTP(respWriter, req)
			event := logger.Debug()
			if respWriter.statusCode >= http.StatusInternalServerError {
				event = logger.Error()
			}
			event.Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("client_ip", req.RemoteAddr).
				Dur("duration", time.Since(start)).
				Int("response_code", respWriter.statusCode).
				Msg("api")
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
