package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// SweepScheduler periodically runs retention sweeps across every known
// relationship, gated by a cron expression. It is the background analog of
// calling RunRetentionSweep by hand; sweeps inherit the scheduler's context
// and therefore stop cooperatively (and resumably) on Close.
type SweepScheduler struct {
	engine *Engine
	policy RetentionPolicy
	expr   string
	tick   time.Duration
	gron   *gronx.Gronx

	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewSweepScheduler validates the policy and cron expression and starts the
// scheduler loop. tick controls how often the cron gate is evaluated;
// zero means once a minute.
func NewSweepScheduler(engine *Engine, policy RetentionPolicy, cronExpr string, tick time.Duration) (*SweepScheduler, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	gron := gronx.New()
	if !gron.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid sweep cron expression %q", cronExpr)
	}
	if tick <= 0 {
		tick = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &SweepScheduler{
		engine: engine,
		policy: policy,
		expr:   cronExpr,
		tick:   tick,
		gron:   gron,
		cancel: cancel,
		stopCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

func (s *SweepScheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case at := <-ticker.C:
			due, err := s.gron.IsDue(s.expr, at)
			if err != nil {
				s.engine.log.Warn("sweep cron evaluation failed", "expr", s.expr, "error", err)
				continue
			}
			if due {
				s.sweepAll(ctx, at)
			}
		}
	}
}

func (s *SweepScheduler) sweepAll(ctx context.Context, now time.Time) {
	keys, err := s.engine.RelationshipKeys(ctx)
	if err != nil {
		s.engine.log.Warn("sweep scheduler could not list relationships", "error", err)
		return
	}
	for _, key := range keys {
		if ctx.Err() != nil {
			return
		}
		report, err := s.engine.RunRetentionSweep(ctx, key, now, s.policy)
		if err != nil {
			s.engine.log.Warn("scheduled sweep failed", "relationship_key", key, "error", err)
			continue
		}
		if report.Interrupted {
			// Scheduler is shutting down; remaining keys wait for the
			// next due tick.
			return
		}
	}
}

// Close stops the scheduler, interrupting any in-flight sweep cooperatively.
func (s *SweepScheduler) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.stopCh)
		s.wg.Wait()
	})
}
