package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// PassFunc runs one evaluation pass.
type PassFunc func(ctx context.Context)

// Scheduler runs evaluation passes on a cron schedule. A pass still running
// when the next one is due causes that tick to be skipped.
type Scheduler struct {
	cron   *cron.Cron
	run    PassFunc
	ctx    context.Context
	logger *slog.Logger

	mu       sync.Mutex
	entry    cron.EntryID
	schedule string
}

// New creates a scheduler for schedule (standard five-field cron or a
// descriptor such as "@every 5m"). Passes receive ctx.
func New(ctx context.Context, schedule string, run PassFunc, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		run:    run,
		ctx:    ctx,
		logger: logger.With("component", "scheduler"),
	}
	if err := s.Reschedule(schedule); err != nil {
		return nil, err
	}
	return s, nil
}

// Reschedule replaces the pass schedule. An invalid schedule leaves the
// current one in place.
func (s *Scheduler) Reschedule(schedule string) error {
	schedule = strings.TrimSpace(schedule)
	spec, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry != 0 && schedule == s.schedule {
		return nil
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = s.cron.Schedule(spec, cron.FuncJob(func() {
		if s.ctx.Err() != nil {
			return
		}
		s.run(s.ctx)
	}))
	s.schedule = schedule
	s.logger.Info("pass schedule set", "schedule", schedule)
	return nil
}

// Schedule returns the active schedule expression.
func (s *Scheduler) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

// Start begins firing passes in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops firing passes and waits for a running pass to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
