package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hazz-dev/upnotif/internal/checker"
	"github.com/hazz-dev/upnotif/internal/notify"
	"github.com/hazz-dev/upnotif/internal/tracker"
)

// Store records check history. It is optional.
type Store interface {
	InsertCheck(ctx context.Context, r checker.CheckResult) error
	InsertTransition(ctx context.Context, t tracker.Transition, deliveryErr error) error
}

// Options tunes the monitor loop. Zero values fall back to defaults.
type Options struct {
	Interval    time.Duration
	Timeout     time.Duration
	Concurrency int
	Clock       Clock
}

// Scheduler probes every target once per interval, feeds the results to the
// tracker and sends a notification for each transition.
type Scheduler struct {
	targets  []checker.Target
	checker  checker.Checker
	tracker  *tracker.Tracker
	notifier notify.Notifier
	store    Store
	opts     Options
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// New creates a new Scheduler. store may be nil. Pass nil logger to discard logs.
func New(
	targets []checker.Target,
	c checker.Checker,
	tr *tracker.Tracker,
	n notify.Notifier,
	store Store,
	opts Options,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	return &Scheduler{
		targets:  targets,
		checker:  c,
		tracker:  tr,
		notifier: n,
		store:    store,
		opts:     opts,
		logger:   logger,
	}
}

// Start runs the loop in a goroutine: one tick immediately, then one per
// interval until ctx is cancelled. It is non-blocking.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Wait blocks until the loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	// Created before the first tick so the interval is measured from tick start.
	ticker := s.opts.Clock.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C():
			s.Tick(ctx)
		}
	}
}

// Tick probes all targets, updates the tracker and notifies every transition.
// It returns the transitions in target order.
func (s *Scheduler) Tick(ctx context.Context) []tracker.Transition {
	log := s.logger.With(zap.String("tick_id", uuid.NewString()))
	start := s.opts.Clock.Now()

	results := s.probeAll(ctx)

	// Probes cut short by shutdown would all read as down.
	if ctx.Err() != nil {
		log.Info("tick aborted", zap.Error(ctx.Err()))
		return nil
	}

	var transitions []tracker.Transition
	for i, r := range results {
		// results[i] belongs to s.targets[i] whatever the checker reported.
		r.Target = s.targets[i]
		log.Debug("check result",
			zap.String("url", r.Target.URL),
			zap.String("status", string(r.Status)),
			zap.Int("status_code", r.StatusCode),
			zap.Duration("response_time", r.ResponseTime),
			zap.String("error", r.Error),
		)
		if s.store != nil {
			if err := s.store.InsertCheck(ctx, r); err != nil {
				log.Error("storing check result", zap.String("url", r.Target.URL), zap.Error(err))
			}
		}

		tr := s.tracker.Update(r.Target, r.Status, s.opts.Clock.Now())
		if tr == nil {
			continue
		}
		transitions = append(transitions, *tr)
		s.deliver(ctx, log, *tr)
	}

	log.Info("tick complete",
		zap.Int("targets", len(results)),
		zap.Int("transitions", len(transitions)),
		zap.Duration("elapsed", s.opts.Clock.Now().Sub(start)),
	)
	return transitions
}

func (s *Scheduler) probeAll(ctx context.Context) []checker.CheckResult {
	results := make([]checker.CheckResult, len(s.targets))
	sem := make(chan struct{}, s.opts.Concurrency)
	var wg sync.WaitGroup

	for i, target := range s.targets {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
			defer cancel()
			// Each goroutine owns results[i].
			results[i] = s.checker.Check(cctx, target)
		}()
	}

	wg.Wait()
	return results
}

func (s *Scheduler) deliver(ctx context.Context, log *zap.Logger, tr tracker.Transition) {
	prev := "unknown"
	if tr.Previous != nil {
		prev = string(*tr.Previous)
	}
	log.Info("status change",
		zap.String("transition_id", tr.ID),
		zap.String("url", tr.Target.URL),
		zap.String("previous_status", prev),
		zap.String("status", string(tr.Current)),
	)

	err := s.notifier.Send(ctx, FormatTransition(tr))
	if err != nil {
		log.Error("sending notification",
			zap.String("transition_id", tr.ID),
			zap.String("url", tr.Target.URL),
			zap.Error(err),
		)
	}

	if s.store != nil {
		if serr := s.store.InsertTransition(ctx, tr, err); serr != nil {
			log.Error("storing transition", zap.String("transition_id", tr.ID), zap.Error(serr))
		}
	}
}
