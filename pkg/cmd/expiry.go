package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/robfig/cron/v3"
)

// OccupancyExpirer releases occupancies held longer than maxAge.
type OccupancyExpirer interface {
	ExpireOccupancies(ctx context.Context, maxAge time.Duration) ([]models.Occupancy, error)
}

// OccupancySweeper periodically releases stale station occupancies.
type OccupancySweeper struct {
	expirer  OccupancyExpirer
	schedule string
	maxAge   time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
	cancel   context.CancelFunc
}

// NewOccupancySweeper validates the cron schedule and builds a sweeper.
func NewOccupancySweeper(expirer OccupancyExpirer, schedule string, maxAge time.Duration, logger *slog.Logger) (*OccupancySweeper, error) {
	if maxAge <= 0 {
		return nil, errors.New("occupancy max age must be positive")
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cron expression '%s': %w", schedule, err)
	}

	return &OccupancySweeper{
		expirer:  expirer,
		schedule: schedule,
		maxAge:   maxAge,
		logger:   logger.With("module", "occupancy_sweeper"),
	}, nil
}

func (s *OccupancySweeper) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		s.cancel()

		return fmt.Errorf("failed to add occupancy sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Occupancy sweeper started",
		"cron", s.schedule,
		"max_age", s.maxAge,
		"entry_id", entryID,
	)

	return nil
}

// Sweep runs one expiry pass and returns how many stations were released.
func (s *OccupancySweeper) Sweep(ctx context.Context) int {
	released, err := s.expirer.ExpireOccupancies(ctx, s.maxAge)
	if err != nil {
		s.logger.ErrorContext(ctx, "Occupancy sweep failed", "error", err)
	}

	if len(released) > 0 {
		s.logger.InfoContext(ctx, "Released stale occupancies", "count", len(released))
	}

	return len(released)
}

func (s *OccupancySweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	if s.cancel != nil {
		s.cancel()
	}
}
