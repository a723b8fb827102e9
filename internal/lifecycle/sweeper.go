package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrSweepInProgress is returned when a sweep is already running
var ErrSweepInProgress = errors.New("sweep already in progress")

// ScheduleParser accepts five-field cron specs and descriptors such as @every 30m
var ScheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Sweeper periodically backfills missing embeddings page by page
type Sweeper struct {
	manager  *Manager
	schedule string
	pageSize int
	cron     *cron.Cron
	lock     RunLock
	logger   zerolog.Logger
}

// NewSweeper validates the schedule and creates a sweeper
func NewSweeper(manager *Manager, schedule string, pageSize int) (*Sweeper, error) {
	if _, err := ScheduleParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Sweeper{
		manager:  manager,
		schedule: schedule,
		pageSize: pageSize,
		logger:   manager.logger.With().Str("schedule", schedule).Logger(),
	}, nil
}

// Start schedules sweeps until ctx is done or Stop is called
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithParser(ScheduleParser))
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
			s.logger.Warn().Err(err).Msg("sweep stopped early")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Msg("embedding sweeper started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// RunOnce backfills every eligible record missing an embedding. Records that
// fail stay in the candidate list, so the offset advances past them.
func (s *Sweeper) RunOnce(ctx context.Context) (BatchResult, error) {
	if !s.lock.TryAcquire() {
		return BatchResult{}, ErrSweepInProgress
	}
	defer s.lock.Release()

	start := time.Now()
	var total BatchResult
	offset := 0
	for {
		res, err := s.manager.BatchEnsureEmbeddings(ctx, s.pageSize, offset)
		total.Processed += res.Processed
		total.Succeeded += res.Succeeded
		total.Failed += res.Failed
		total.Skipped += res.Skipped
		total.Cancelled = res.Cancelled
		for _, e := range res.Errors {
			if len(total.Errors) < maxBatchErrors {
				total.Errors = append(total.Errors, e)
			}
		}
		if err != nil {
			total.Duration = time.Since(start)
			return total, err
		}
		if res.Processed < s.pageSize {
			break
		}
		offset += res.Failed
	}
	total.Duration = time.Since(start)
	return total, nil
}
