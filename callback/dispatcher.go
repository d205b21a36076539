package callback

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/metrics"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

type Config struct {
	// MaxAttempts is the number of deliveries tried before a record is marked failed.
	MaxAttempts int           `env:"CALLBACK_MAX_ATTEMPTS" envDefault:"5"`
	BaseBackoff time.Duration `env:"CALLBACK_BASE_BACKOFF" envDefault:"30s"`
	MaxBackoff  time.Duration `env:"CALLBACK_MAX_BACKOFF" envDefault:"1h"`
	Timeout     time.Duration `env:"CALLBACK_TIMEOUT" envDefault:"10s"`
	Workers     int           `env:"CALLBACK_WORKERS" envDefault:"8"`
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BaseBackoff: 30 * time.Second,
		MaxBackoff:  time.Hour,
		Timeout:     10 * time.Second,
		Workers:     8,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: callback max attempts must be at least 1", common.ErrInvalidParameters)
	case c.BaseBackoff <= 0:
		return fmt.Errorf("%w: callback base backoff must be positive", common.ErrInvalidParameters)
	case c.MaxBackoff < c.BaseBackoff:
		return fmt.Errorf("%w: callback max backoff below base backoff", common.ErrInvalidParameters)
	case c.Workers < 1:
		return fmt.Errorf("%w: callback workers must be at least 1", common.ErrInvalidParameters)
	}
	return nil
}

// SweepReport summarizes one retry sweep.
type SweepReport struct {
	Attempted int
	Delivered int
	Failed    int
}

// Dispatcher owns callback records for external queries and drives their delivery.
// Records are only mutated by the owner of the dispatcher. Deliver touches no
// record, so the owner can release its lock between Due and Apply.
type Dispatcher struct {
	cfg       Config
	deliverer Deliverer
	records   map[uint64]*common.CallbackRecord
	inFlight  map[uint64]struct{}
	metrics   metrics.Collector
	logger    zerolog.Logger
}

func NewDispatcher(cfg Config, deliverer Deliverer, collector metrics.Collector, logger zerolog.Logger) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}
	return &Dispatcher{
		cfg:       cfg,
		deliverer: deliverer,
		records:   make(map[uint64]*common.CallbackRecord),
		inFlight:  make(map[uint64]struct{}),
		metrics:   collector,
		logger:    logger.With().Str("component", "callback_dispatcher").Logger(),
	}, nil
}

// Supports reports whether targets of kind can be delivered. A deliverer that
// does not route by kind is taken to handle every kind.
func (d *Dispatcher) Supports(kind common.TargetKind) bool {
	switch dl := d.deliverer.(type) {
	case nil:
		return false
	case interface{ Supports(common.TargetKind) bool }:
		return dl.Supports(kind)
	}
	return true
}

// Load replaces all records, used when restoring a snapshot.
func (d *Dispatcher) Load(records []common.CallbackRecord) {
	d.records = make(map[uint64]*common.CallbackRecord, len(records))
	d.inFlight = make(map[uint64]struct{})
	for i := range records {
		r := records[i]
		d.records[r.QueryID] = &r
	}
}

// Enqueue creates the pending callback record for a resolved external query,
// due at now. Delivery is left to the next sweep. Enqueueing the same query
// twice returns the existing record.
func (d *Dispatcher) Enqueue(q common.Query, now time.Time) (common.CallbackRecord, error) {
	if existing, ok := d.records[q.ID]; ok {
		return *existing, nil
	}
	if !q.IsExternal() || q.Source.Callback == nil {
		return common.CallbackRecord{}, fmt.Errorf("%w: query %d has no callback target", common.ErrInvalidCallbackTarget, q.ID)
	}
	if q.Status != common.StatusResolved || q.FinalOutcome == nil {
		return common.CallbackRecord{}, fmt.Errorf("%w: query %d is not resolved", common.ErrInvariant, q.ID)
	}
	rec := &common.CallbackRecord{
		QueryID: q.ID,
		Target:  *q.Source.Callback,
		Payload: common.Notification{
			QueryID:             q.ID,
			FinalOutcome:        *q.FinalOutcome,
			OutcomeValue:        q.FinalValue(),
			AggregateConfidence: q.AggregateConfidence,
			ResolvedAt:          q.ResolvedAt,
			CallbackData:        q.Source.Callback.Data,
		},
		Status:      common.CallbackPending,
		NextRetryAt: now,
		CreatedAt:   now,
	}
	d.records[q.ID] = rec
	d.logger.Debug().Uint64("query.id", q.ID).Str("target", rec.Target.Address).Msg("callback queued")
	return *rec, nil
}

// Sweep runs Due, Deliver and Apply in one call.
func (d *Dispatcher) Sweep(ctx context.Context, now time.Time) SweepReport {
	due := d.Due(now)
	if len(due) == 0 {
		return SweepReport{}
	}
	return d.Apply(due, d.Deliver(ctx, due), now)
}

// Due returns copies of the pending records whose retry time has come and
// marks them in flight until Apply. Records already in flight are skipped.
func (d *Dispatcher) Due(now time.Time) []common.CallbackRecord {
	var out []common.CallbackRecord
	for _, id := range d.ids() {
		r := d.records[id]
		if r.Status != common.CallbackPending || now.Before(r.NextRetryAt) {
			continue
		}
		if _, busy := d.inFlight[id]; busy {
			continue
		}
		d.inFlight[id] = struct{}{}
		out = append(out, *r)
	}
	return out
}

// Deliver sends every record in due on the worker pool and returns one result
// per record. It does not read or write dispatcher state.
func (d *Dispatcher) Deliver(ctx context.Context, due []common.CallbackRecord) []error {
	if len(due) == 0 {
		return nil
	}
	results := make([]error, len(due))
	wp := workerpool.New(d.cfg.Workers)
	for i := range due {
		i := i
		wp.Submit(func() {
			results[i] = d.deliver(ctx, &due[i])
		})
	}
	wp.StopWait()
	return results
}

// Apply records the results of a Deliver call for the records returned by Due.
func (d *Dispatcher) Apply(due []common.CallbackRecord, results []error, now time.Time) SweepReport {
	var report SweepReport
	for i := range due {
		id := due[i].QueryID
		delete(d.inFlight, id)
		rec, ok := d.records[id]
		if !ok || !d.apply(rec, results[i], now) {
			continue
		}
		report.Attempted++
		switch rec.Status {
		case common.CallbackDelivered:
			report.Delivered++
		case common.CallbackFailed:
			report.Failed++
		}
	}
	return report
}

// Acknowledge marks a record delivered on the consumer's confirmation.
// Acknowledging a delivered or failed record changes nothing.
func (d *Dispatcher) Acknowledge(queryID uint64, now time.Time) (common.CallbackRecord, error) {
	rec, ok := d.records[queryID]
	if !ok {
		return common.CallbackRecord{}, fmt.Errorf("%w: %d", common.ErrCallbackNotFound, queryID)
	}
	if rec.Status == common.CallbackPending {
		rec.Status = common.CallbackDelivered
		rec.DeliveredAt = now
		rec.NextRetryAt = time.Time{}
		d.logger.Info().Uint64("query.id", queryID).Msg("callback acknowledged")
	}
	return *rec, nil
}

func (d *Dispatcher) Get(queryID uint64) (common.CallbackRecord, error) {
	rec, ok := d.records[queryID]
	if !ok {
		return common.CallbackRecord{}, fmt.Errorf("%w: %d", common.ErrCallbackNotFound, queryID)
	}
	return *rec, nil
}

// All returns every record ordered by query id.
func (d *Dispatcher) All() []common.CallbackRecord {
	out := make([]common.CallbackRecord, 0, len(d.records))
	for _, id := range d.ids() {
		out = append(out, *d.records[id])
	}
	return out
}

func (d *Dispatcher) Counts() (pending, failed int) {
	for _, r := range d.records {
		switch r.Status {
		case common.CallbackPending:
			pending++
		case common.CallbackFailed:
			failed++
		}
	}
	return pending, failed
}

// RetryDelay is the wait after the given number of failed attempts: base * 2^(attempts-1), capped.
func (d *Dispatcher) RetryDelay(attempts int) time.Duration {
	b := retry.WithCappedDuration(d.cfg.MaxBackoff, retry.NewExponential(d.cfg.BaseBackoff))
	var delay time.Duration
	for i := 0; i < attempts; i++ {
		delay, _ = b.Next()
	}
	return delay
}

func (d *Dispatcher) ids() []uint64 {
	ids := make([]uint64, 0, len(d.records))
	for id := range d.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (d *Dispatcher) deliver(ctx context.Context, rec *common.CallbackRecord) error {
	if d.deliverer == nil {
		return ErrNoDeliverer
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	return d.deliverer.Deliver(ctx, rec.Target, rec.Payload)
}

// apply reports whether the attempt was recorded.
func (d *Dispatcher) apply(rec *common.CallbackRecord, err error, now time.Time) bool {
	if rec.Status != common.CallbackPending {
		// acknowledged while the attempt was in flight
		return false
	}
	rec.Attempts++
	d.metrics.CallbackAttempt(string(rec.Target.Kind), err == nil)
	if err == nil {
		rec.Status = common.CallbackDelivered
		rec.DeliveredAt = now
		rec.NextRetryAt = time.Time{}
		rec.LastError = ""
		d.logger.Info().Uint64("query.id", rec.QueryID).Int("attempts", rec.Attempts).Msg("callback delivered")
		return true
	}
	rec.LastError = err.Error()
	if rec.Attempts >= d.cfg.MaxAttempts {
		rec.Status = common.CallbackFailed
		rec.NextRetryAt = time.Time{}
		d.metrics.CallbackFailed(string(rec.Target.Kind))
		d.logger.Error().Err(err).
			Uint64("query.id", rec.QueryID).
			Str("target", rec.Target.Address).
			Int("attempts", rec.Attempts).
			Msg("callback failed permanently")
		return true
	}
	rec.BackoffExponent = rec.Attempts - 1
	rec.NextRetryAt = now.Add(d.RetryDelay(rec.Attempts))
	d.logger.Warn().Err(err).
		Uint64("query.id", rec.QueryID).
		Int("attempts", rec.Attempts).
		Time("next_retry_at", rec.NextRetryAt).
		Msg("callback delivery failed")
	return true
}
