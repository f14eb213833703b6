package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/deps"
)

const purgeRunTimeout = 10 * time.Minute

// PurgeScheduler runs the retention sweep on a cron schedule
type PurgeScheduler struct {
	purger   deps.PurgeUseCase
	schedule string
	timeout  time.Duration
	logger   zerolog.Logger

	cron    *cron.Cron
	entryID cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPurgeScheduler validates schedule and registers the sweep. Nothing runs until Start.
func NewPurgeScheduler(purger deps.PurgeUseCase, schedule string, logger zerolog.Logger) (*PurgeScheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())

	s := &PurgeScheduler{
		purger:   purger,
		schedule: schedule,
		timeout:  purgeRunTimeout,
		logger:   logger.With().Str("component", "purge_scheduler").Logger(),
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:      ctx,
		cancel:   cancel,
	}

	id, err := s.cron.AddFunc(schedule, s.tick)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	s.entryID = id

	return s, nil
}

// Start starts the scheduler
func (s *PurgeScheduler) Start() {
	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.schedule).
		Time("next_run", s.cron.Entry(s.entryID).Next).
		Msg("purge scheduler started")
}

// Stop cancels a running sweep and waits for it to return
func (s *PurgeScheduler) Stop() {
	s.logger.Info().Msg("stopping purge scheduler")

	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()

	s.logger.Info().Msg("purge scheduler stopped")
}

func (s *PurgeScheduler) tick() {
	s.wg.Add(1)
	defer s.wg.Done()

	_ = s.RunOnce(s.ctx)
}

// RunOnce performs one sweep bounded by the run timeout
func (s *PurgeScheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	report, err := s.purger.Purge(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Int64("deleted", report.Total()).
			Msg("scheduled purge failed")
		return err
	}

	s.logger.Info().
		Int64("deleted", report.Total()).
		Time("cutoff", report.Cutoff).
		Dur("duration", time.Since(start)).
		Msg("scheduled purge completed")
	return nil
}
