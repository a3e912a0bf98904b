// Package scheduler runs the periodic billing sweeps (rent reminders and
// payment reconciliation) on robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// jobTimeout bounds a single run of a scheduled job.
const jobTimeout = 10 * time.Minute

// JobFunc is a scheduled unit of work.
type JobFunc func(ctx context.Context) error

// Scheduler owns a cron instance and the context handed to its jobs.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	logger  *zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// New creates a scheduler evaluating cron specs in loc. Overlapping runs of
// the same job are skipped and panics are recovered and logged.
func New(loc *time.Location, logger *zerolog.Logger) *Scheduler {
	cl := cronLogger{logger: logger.With().Str("component", "scheduler").Logger()}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		entries: make(map[string]cron.EntryID),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers fn under name on the given cron spec.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("job %q already scheduled", name)
	}

	id, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", spec, name, err)
	}
	s.entries[name] = id

	s.logger.Info().Str("job", name).Str("schedule", spec).Msg("job scheduled")
	return nil
}

// Start begins firing jobs. It does not block.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true

	for name, id := range s.entries {
		s.logger.Info().
			Str("job", name).
			Time("next_run", s.cron.Entry(id).Next).
			Msg("scheduler started")
	}
}

// Stop cancels running jobs and waits for them to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if !s.running {
		return nil
	}
	s.running = false

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// NextRun returns the next activation of a job, zero when unknown or stopped.
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *Scheduler) run(name string, fn JobFunc) {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	log := s.logger.With().Str("job", name).Logger()
	ctx = log.WithContext(ctx)

	start := time.Now()
	if err := fn(ctx); err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("scheduled job failed")
		return
	}
	log.Info().Dur("duration", time.Since(start)).Msg("scheduled job finished")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
