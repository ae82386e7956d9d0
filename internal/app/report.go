package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"pm25watcher/internal/analysis"
	"pm25watcher/internal/report"
)

// Report generates one report over the persisted series without polling.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	store := a.newStore(a.Logger)
	series, err := store.Load()
	if err != nil {
		return err
	}
	if len(series) == 0 {
		return errors.New("no persisted readings; run the service or fetch first")
	}

	threshold := decimal.NewFromFloat(a.Config.Report.Threshold)
	stats, exceedances := analysis.Analyze(series, threshold)

	outputDir := a.Config.ReportDir()
	if opts.OutputDir != "" {
		outputDir = opts.OutputDir
	}

	gen := report.NewGenerator(report.GeneratorOptions{
		OutputDir: outputDir,
		DeviceID:  a.Config.Sensor.DeviceID,
		Threshold: threshold,
		Chart: report.ChartOptions{
			Width:     a.Config.Report.ChartWidth,
			Height:    a.Config.Report.ChartHeight,
			Threshold: threshold,
		},
	}, a.Logger)

	docPath, err := gen.Generate(stats, exceedances, series)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "report written to %s\n", docPath)
	return nil
}
