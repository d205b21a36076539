package metrics

import "time"

type NoopCollector struct{}

func NewNoopCollector() *NoopCollector { return &NoopCollector{} }

func (nc *NoopCollector) QueryCreated(string)                        {}
func (nc *NoopCollector) QueryResolved(string)                       {}
func (nc *NoopCollector) QueryExpired(string)                        {}
func (nc *NoopCollector) VoteCommitted()                             {}
func (nc *NoopCollector) VoteRevealed()                              {}
func (nc *NoopCollector) RevealRejected(string)                      {}
func (nc *NoopCollector) StakeSlashed(float64)                       {}
func (nc *NoopCollector) RewardsDistributed(float64)                 {}
func (nc *NoopCollector) CallbackAttempt(string, bool)               {}
func (nc *NoopCollector) CallbackFailed(string)                      {}
func (nc *NoopCollector) TickDuration(time.Duration)                 {}
func (nc *NoopCollector) RegistryBalances(float64, float64, float64) {}
