package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pm25watcher/internal/config"
	"pm25watcher/internal/fetcher"
	"pm25watcher/internal/logging"
	"pm25watcher/internal/report"
	"pm25watcher/internal/scheduler"
	"pm25watcher/internal/service"
	"pm25watcher/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger}
}

func (a *App) newFetcher(logger zerolog.Logger) fetcher.SensorFetcher {
	return fetcher.NewSensor(fetcher.SensorOptions{
		APIURL:    a.Config.Sensor.APIURL,
		Timeout:   a.Config.Sensor.RequestTimeout,
		UserAgent: a.Config.Sensor.UserAgent,
	}, logger)
}

func (a *App) newStore(logger zerolog.Logger) *storage.CSVStore {
	return storage.NewCSVStore(a.Config.CSVPath(), logger)
}

func (a *App) newReporter(logger zerolog.Logger) *report.Generator {
	threshold := decimal.NewFromFloat(a.Config.Report.Threshold)
	return report.NewGenerator(report.GeneratorOptions{
		OutputDir: a.Config.ReportDir(),
		DeviceID:  a.Config.Sensor.DeviceID,
		Threshold: threshold,
		Chart: report.ChartOptions{
			Width:     a.Config.Report.ChartWidth,
			Height:    a.Config.Report.ChartHeight,
			Threshold: threshold,
		},
	}, logger)
}

func (a *App) openMirror(ctx context.Context) (*storage.Mirror, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	mirror := storage.NewMirror(pool)
	return mirror, mirror.Close, nil
}

// Run executes the long-running polling service until interrupted.
func (a *App) Run(ctx context.Context) error {
	if a.Config.Sensor.DeviceID == "" {
		return errors.New("sensor.device_id is required")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The run log doubles every console event into an append-only file so
	// unattended runs stay auditable.
	logger, closeLog, err := logging.NewRunLogger(a.Config.Logging, a.Config.LogPath())
	if err != nil {
		return err
	}
	defer closeLog()

	mirror, closeMirror, err := a.openMirror(ctx)
	if err != nil {
		return err
	}
	if closeMirror != nil {
		defer closeMirror()
	}
	if mirror == nil {
		logger.Debug().Msg("database.dsn not configured; mirroring disabled")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:        a.Config.Scheduler.Interval,
		AlignToInterval: a.Config.Scheduler.AlignToInterval,
		StartupDelay:    a.Config.Scheduler.StartupDelay,
	}, logger)

	var mirrorStore storage.ReadingMirror
	if mirror != nil {
		mirrorStore = mirror
	}

	svc := service.New(a.Config, sched, a.newFetcher(logger), a.newStore(logger), mirrorStore, a.newReporter(logger), logger)

	logger.Info().
		Str("device_id", a.Config.Sensor.DeviceID).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting polling service")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("service terminated with unexpected error")
		return err
	}

	logger.Info().Msg("process interrupted; polling service stopped")
	return nil
}

// ReportOptions configure the one-shot report command.
type ReportOptions struct {
	OutputDir string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// FetchOptions configure the one-shot fetch command.
type FetchOptions struct {
	DryRun bool
}
