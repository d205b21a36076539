// Package service runs an engine as a long lived process: it feeds the inbox
// stream into the engine, ticks phase transitions and callback retries, and
// persists a snapshot after every tick.
package service

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/hashicorp/go-multierror"
	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/engine"
	"github.com/rangesecurity/oracle/stream"
	"github.com/rs/zerolog/log"
)

// Inbox is the message source consumed by the service, see stream.Client.
type Inbox interface {
	InboxKey() string
	AcksKey() string
	Consume(ctx context.Context, key, lastID string, outCh chan<- *stream.Message)
}

// Store persists registry snapshots, see db.Database.
type Store interface {
	SaveSnapshot(ctx context.Context, snap common.Snapshot) error
}

const seenMessages = 4096

// Service serializes every engine access behind its lock.
type Service struct {
	engine *engine.Engine
	inbox  Inbox
	store  Store

	seen   *lru.Cache
	parked map[common.VoteKey]*stream.Message

	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup

	sync.RWMutex
}

// NewService wraps eng. inbox and store may be nil, in which case the service
// neither consumes streams nor persists snapshots.
func NewService(
	ctx context.Context,
	eng *engine.Engine,
	inbox Inbox,
	store Store,
) (*Service, error) {
	seen, err := lru.New(seenMessages)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		engine: eng,
		inbox:  inbox,
		store:  store,
		seen:   seen,
		parked: make(map[common.VoteKey]*stream.Message),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Do runs fn with exclusive access to the engine.
func (s *Service) Do(fn func(e *engine.Engine) error) error {
	s.Lock()
	defer s.Unlock()
	return fn(s.engine)
}

// View runs fn with shared access to the engine. fn must only call read methods.
func (s *Service) View(fn func(e *engine.Engine) error) error {
	s.RLock()
	defer s.RUnlock()
	return fn(s.engine)
}

// Start launches the tick loop and, when an inbox is configured, the stream consumers.
func (s *Service) Start(tickInterval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Tick(s.ctx); err != nil {
					log.Error().Err(err).Msg("tick failed")
				}
			}
		}
	}()
	if s.inbox == nil {
		return
	}
	for _, key := range []string{s.inbox.InboxKey(), s.inbox.AcksKey()} {
		outCh := make(chan *stream.Message, 256)
		s.wg.Add(2)
		go func(key string) {
			defer s.wg.Done()
			s.inbox.Consume(s.ctx, key, "0", outCh)
		}(key)
		go func(key string) {
			defer s.wg.Done()
			for {
				select {
				case <-s.ctx.Done():
					return
				case msg := <-outCh:
					if err := s.HandleMessage(s.ctx, msg); err != nil {
						log.Debug().Err(err).Str("stream", key).Str("message.id", msg.MessageID).Msg("message rejected")
					}
				}
			}
		}(key)
	}
}

// TickResult summarizes one tick.
type TickResult struct {
	engine.TickReport
	Revealed  int `json:"revealed"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Tick advances phases, applies parked reveals, delivers due callbacks and
// saves a snapshot. Errors from individual steps are collected, later steps
// still run. Callbacks are delivered without holding the lock.
func (s *Service) Tick(ctx context.Context) (TickResult, error) {
	var (
		result TickResult
		errs   error
		err    error
	)
	s.Lock()
	if result.TickReport, err = s.engine.AdvancePhases(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	expired, err := s.engine.CheckExpiredQueries(ctx)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	result.Expired = append(result.Expired, expired...)
	result.Revealed = s.applyParked(ctx)
	due := s.engine.DueCallbacks()
	s.Unlock()

	results := s.engine.DeliverCallbacks(ctx, due)

	s.Lock()
	defer s.Unlock()
	sweep := s.engine.ApplyCallbackResults(due, results)
	result.Delivered, result.Failed = sweep.Delivered, sweep.Failed

	if s.store != nil {
		if err := s.store.SaveSnapshot(ctx, s.engine.Snapshot()); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return result, errs
}

// Close stops the loops and waits for them to return.
func (s *Service) Close() {
	s.cancel()
	// wait for shutdown to complete
	s.wg.Wait()
}
