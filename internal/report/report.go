// Package report produces the chart and document artifacts for one report
// run. The pipeline hands it plain analysis output; layout decisions stay
// in here.
package report

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pm25watcher/internal/analysis"
	"pm25watcher/internal/storage"
)

const tempChartFile = "temp_plot.png"

// GeneratorOptions configure a report Generator.
type GeneratorOptions struct {
	OutputDir string
	DeviceID  string
	Threshold decimal.Decimal
	Chart     ChartOptions
}

// Generator renders the chart, embeds it in the PDF document, and cleans
// up the intermediate chart file.
type Generator struct {
	opts   GeneratorOptions
	logger zerolog.Logger
	now    func() time.Time
}

// NewGenerator constructs a report generator.
func NewGenerator(opts GeneratorOptions, logger zerolog.Logger) *Generator {
	return &Generator{
		opts:   opts,
		logger: logger.With().Str("component", "report").Logger(),
		now:    time.Now,
	}
}

// Generate produces one report over the full series and returns the path
// of the PDF document.
func (g *Generator) Generate(stats []analysis.DailyStat, exceedances []storage.Reading, series []storage.Reading) (string, error) {
	if err := os.MkdirAll(g.opts.OutputDir, 0o755); err != nil {
		return "", err
	}

	chartPath := filepath.Join(g.opts.OutputDir, tempChartFile)
	if err := RenderChart(chartPath, stats, series, g.opts.Chart); err != nil {
		return "", err
	}

	info := DocumentInfo{
		DeviceID:    g.opts.DeviceID,
		Threshold:   g.opts.Threshold,
		GeneratedAt: g.now(),
	}
	docPath, err := WriteDocument(g.opts.OutputDir, info, stats, exceedances, chartPath)
	if err != nil {
		return "", err
	}

	// The chart only exists to be embedded.
	if err := os.Remove(chartPath); err != nil {
		g.logger.Warn().Err(err).Str("path", chartPath).Msg("failed to remove temporary chart")
	}

	g.logger.Info().Str("path", docPath).Int("days", len(stats)).Int("exceedances", len(exceedances)).Msg("report generated")

	return docPath, nil
}
