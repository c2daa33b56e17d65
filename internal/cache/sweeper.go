package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/book-expert/logger"
)

// Sweeper runs Cache.Sweep on a cron schedule.
type Sweeper struct {
	cache    *Cache
	schedule string
	maxAge   time.Duration
	log      *logger.Logger
}

// NewSweeper validates schedule and returns a Sweeper.
func NewSweeper(cache *Cache, schedule string, maxAge time.Duration, log *logger.Logger) (*Sweeper, error) {
	_, err := gronx.NextTickAfter(schedule, time.Now(), false)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	return &Sweeper{
		cache:    cache,
		schedule: schedule,
		maxAge:   maxAge,
		log:      log,
	}, nil
}

// Next returns the first sweep time strictly after from.
func (s *Sweeper) Next(from time.Time) (time.Time, error) {
	next, err := gronx.NextTickAfter(s.schedule, from, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to compute next sweep: %w", err)
	}

	return next, nil
}

// Run sweeps at every scheduled tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("Cache sweeper started (schedule %q, max age %s).", s.schedule, s.maxAge)

	for {
		next, err := s.Next(time.Now())
		if err != nil {
			return err
		}

		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("Cache sweeper stopped.")

			return nil
		case <-timer.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep and logs the outcome.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	removed, err := s.cache.Sweep(ctx, s.maxAge)
	if err != nil {
		s.log.Error("Cache sweep failed after removing %d entries: %v", removed, err)

		return removed
	}

	s.log.Info("Cache sweep removed %d entries older than %s.", removed, s.maxAge)

	return removed
}
