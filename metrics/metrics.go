package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespaceOracle = "oracle"

// Collector receives engine and dispatcher events.
type Collector interface {
	QueryCreated(source string)
	QueryResolved(strategy string)
	QueryExpired(phase string)
	VoteCommitted()
	VoteRevealed()
	RevealRejected(code string)
	StakeSlashed(amount float64)
	RewardsDistributed(amount float64)
	CallbackAttempt(target string, success bool)
	CallbackFailed(target string)
	TickDuration(d time.Duration)
	RegistryBalances(totalStake, treasury, rewardPool float64)
}

// OracleCollector implements Collector on top of prometheus.
type OracleCollector struct {
	queriesCreated     *prometheus.CounterVec
	queriesResolved    *prometheus.CounterVec
	queriesExpired     *prometheus.CounterVec
	votesCommitted     prometheus.Counter
	votesRevealed      prometheus.Counter
	revealsRejected    *prometheus.CounterVec
	stakeSlashed       prometheus.Counter
	rewardsDistributed prometheus.Counter
	callbackAttempts   *prometheus.CounterVec
	callbacksFailed    *prometheus.CounterVec
	tickDuration       prometheus.Histogram
	totalStake         prometheus.Gauge
	treasury           prometheus.Gauge
	rewardPool         prometheus.Gauge
}

func NewOracleCollector(registerer prometheus.Registerer) *OracleCollector {
	c := &OracleCollector{
		queriesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "queries_created_total",
			Help:      "number of queries created, by source",
		}, []string{"source"}),
		queriesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "queries_resolved_total",
			Help:      "number of queries resolved, by decision strategy",
		}, []string{"strategy"}),
		queriesExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "queries_expired_total",
			Help:      "number of queries expired, by the phase they expired in",
		}, []string{"phase"}),
		votesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "votes_committed_total",
			Help:      "number of accepted vote commitments",
		}),
		votesRevealed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "votes_revealed_total",
			Help:      "number of accepted vote reveals",
		}),
		revealsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "reveals_rejected_total",
			Help:      "number of rejected reveals, by error code",
		}, []string{"code"}),
		stakeSlashed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "stake_slashed_tokens_total",
			Help:      "tokens moved from voter stake into the treasury by slashing",
		}),
		rewardsDistributed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "rewards_distributed_tokens_total",
			Help:      "tokens credited to voters as pending rewards",
		}),
		callbackAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "callback_attempts_total",
			Help:      "callback delivery attempts, by target kind and result",
		}, []string{"target", "result"}),
		callbacksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "callbacks_failed_total",
			Help:      "callbacks that exhausted their attempts",
		}, []string{"target"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceOracle,
			Name:      "tick_duration_seconds",
			Help:      "time spent advancing phases and sweeping callbacks",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		totalStake: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceOracle,
			Name:      "total_stake_tokens",
			Help:      "stake held by all registered voters",
		}),
		treasury: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceOracle,
			Name:      "treasury_tokens",
			Help:      "protocol treasury balance",
		}),
		rewardPool: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceOracle,
			Name:      "reward_pool_tokens",
			Help:      "rewards funded but not yet distributed",
		}),
	}
	registerer.MustRegister(
		c.queriesCreated,
		c.queriesResolved,
		c.queriesExpired,
		c.votesCommitted,
		c.votesRevealed,
		c.revealsRejected,
		c.stakeSlashed,
		c.rewardsDistributed,
		c.callbackAttempts,
		c.callbacksFailed,
		c.tickDuration,
		c.totalStake,
		c.treasury,
		c.rewardPool,
	)
	return c
}

func (c *OracleCollector) QueryCreated(source string)    { c.queriesCreated.WithLabelValues(source).Inc() }
func (c *OracleCollector) QueryResolved(strategy string) { c.queriesResolved.WithLabelValues(strategy).Inc() }
func (c *OracleCollector) QueryExpired(phase string)     { c.queriesExpired.WithLabelValues(phase).Inc() }
func (c *OracleCollector) VoteCommitted()                { c.votesCommitted.Inc() }
func (c *OracleCollector) VoteRevealed()                 { c.votesRevealed.Inc() }
func (c *OracleCollector) RevealRejected(code string)    { c.revealsRejected.WithLabelValues(code).Inc() }
func (c *OracleCollector) StakeSlashed(amount float64)   { c.stakeSlashed.Add(amount) }

func (c *OracleCollector) RewardsDistributed(amount float64) { c.rewardsDistributed.Add(amount) }

func (c *OracleCollector) CallbackAttempt(target string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.callbackAttempts.WithLabelValues(target, result).Inc()
}

func (c *OracleCollector) CallbackFailed(target string) { c.callbacksFailed.WithLabelValues(target).Inc() }

func (c *OracleCollector) TickDuration(d time.Duration) { c.tickDuration.Observe(d.Seconds()) }

func (c *OracleCollector) RegistryBalances(totalStake, treasury, rewardPool float64) {
	c.totalStake.Set(totalStake)
	c.treasury.Set(treasury)
	c.rewardPool.Set(rewardPool)
}
