package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pm25watcher/internal/analysis"
	"pm25watcher/internal/config"
	"pm25watcher/internal/fetcher"
	"pm25watcher/internal/scheduler"
	"pm25watcher/internal/storage"
)

// Reporter turns analysis output into the report artifacts.
type Reporter interface {
	Generate(stats []analysis.DailyStat, exceedances []storage.Reading, series []storage.Reading) (string, error)
}

// Service orchestrates one poll cycle: fetch, flatten, merge, and — only
// when the merge changed the series — analysis and report generation.
type Service struct {
	scheduler *scheduler.Scheduler
	fetcher   fetcher.SensorFetcher
	store     storage.SeriesStore
	mirror    storage.ReadingMirror
	reporter  Reporter
	logger    zerolog.Logger

	deviceID  string
	channel   string
	threshold decimal.Decimal
}

// New constructs the polling service. mirror and reporter may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, fetch fetcher.SensorFetcher, store storage.SeriesStore, mirror storage.ReadingMirror, reporter Reporter, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: sched,
		fetcher:   fetch,
		store:     store,
		mirror:    mirror,
		reporter:  reporter,
		logger:    logger.With().Str("component", "service").Logger(),
		deviceID:  cfg.Sensor.DeviceID,
		channel:   cfg.Sensor.Channel,
		threshold: decimal.NewFromFloat(cfg.Report.Threshold),
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessCycle)
}

// ProcessCycle executes a single cycle. Failures the loop is designed to
// survive — network trouble, a malformed payload, an unreadable or
// unwritable series — are logged and swallowed so the cadence continues;
// anything else propagates and stops the process.
func (s *Service) ProcessCycle(ctx context.Context, now time.Time) error {
	err := s.executeCycle(ctx, now)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	var netErr *fetcher.NetworkError
	var payloadErr *fetcher.MalformedPayloadError
	var storageErr *storage.StorageError
	switch {
	case errors.As(err, &netErr):
		s.logger.Error().Err(err).Msg("fetch failed; cycle skipped")
		return nil
	case errors.As(err, &payloadErr):
		s.logger.Error().Err(err).Msg("malformed payload; cycle skipped")
		return nil
	case errors.As(err, &storageErr):
		s.logger.Error().Err(err).Msg("series storage failed; cycle skipped")
		return nil
	default:
		return err
	}
}

func (s *Service) executeCycle(ctx context.Context, now time.Time) error {
	payload, err := s.fetcher.Fetch(ctx, s.deviceID)
	if err != nil {
		return fmt.Errorf("fetch device %s: %w", s.deviceID, err)
	}

	batch, err := fetcher.Flatten(payload, s.channel)
	if err != nil {
		return fmt.Errorf("flatten payload: %w", err)
	}

	result, err := s.store.Merge(batch)
	if err != nil {
		return fmt.Errorf("merge batch: %w", err)
	}

	if !result.Changed {
		s.logger.Debug().Time("cycle", now).Msg("no new readings")
		return nil
	}

	s.logger.Info().
		Time("cycle", now).
		Int("added", result.Added).
		Bool("created", result.Created).
		Msg("series updated with new sensor data")

	if s.mirror != nil {
		fresh := result.Series[len(result.Series)-result.Added:]
		if inserted, mirrorErr := s.mirror.UpsertReadings(ctx, s.deviceID, fresh); mirrorErr != nil {
			s.logger.Error().Err(mirrorErr).Msg("failed to mirror readings")
		} else if inserted > 0 {
			s.logger.Debug().Int64("inserted", inserted).Msg("readings mirrored")
		}
	}

	if s.reporter == nil {
		return nil
	}

	stats, exceedances := analysis.Analyze(result.Series, s.threshold)
	if !hasValuedDays(stats) {
		s.logger.Warn().Msg("series has no valued readings yet; report skipped")
		return nil
	}

	docPath, err := s.reporter.Generate(stats, exceedances, result.Series)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	s.logger.Info().Str("report", docPath).Msg("report generated")

	return nil
}

func hasValuedDays(stats []analysis.DailyStat) bool {
	for _, stat := range stats {
		if stat.HasData() {
			return true
		}
	}
	return false
}
