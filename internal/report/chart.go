package report

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"pm25watcher/internal/analysis"
	"pm25watcher/internal/storage"
)

// ChartOptions size the rendered chart artifact.
type ChartOptions struct {
	Width     int
	Height    int
	Threshold decimal.Decimal
}

// RenderChart writes a PNG combining two panels: daily max/min/mean over
// time, and a scatter of every raw reading coloured by threshold
// comparison. Both panels draw the threshold as a dashed rule.
func RenderChart(path string, stats []analysis.DailyStat, series []storage.Reading, opts ChartOptions) error {
	top, err := renderDailyPanel(stats, opts)
	if err != nil {
		return fmt.Errorf("render daily panel: %w", err)
	}
	bottom, err := renderScatterPanel(series, opts)
	if err != nil {
		return fmt.Errorf("render scatter panel: %w", err)
	}

	combined := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(combined, top.Bounds(), top, image.Point{}, draw.Src)
	draw.Draw(combined, bottom.Bounds().Add(image.Pt(0, top.Bounds().Dy())), bottom, image.Point{}, draw.Src)

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, combined)
}

func renderDailyPanel(stats []analysis.DailyStat, opts ChartOptions) (image.Image, error) {
	var dates []time.Time
	var maxs, mins, means []float64
	for _, stat := range stats {
		if !stat.HasData() {
			continue
		}
		date, err := time.Parse(analysis.DateLayout, stat.Date)
		if err != nil {
			return nil, err
		}
		dates = append(dates, date)
		maxs = append(maxs, stat.Max.InexactFloat64())
		mins = append(mins, stat.Min.InexactFloat64())
		means = append(means, stat.Mean.InexactFloat64())
	}
	if len(dates) == 0 {
		return nil, errors.New("no daily stats with data")
	}

	threshold := opts.Threshold.InexactFloat64()
	xRange := paddedTimeRange(dates[0], dates[len(dates)-1], 12*time.Hour)
	yRange := paddedValueRange(append(append([]float64{threshold}, maxs...), mins...))

	graph := chart.Chart{
		Title:  "Daily PM2.5 Statistics",
		Width:  opts.Width,
		Height: opts.Height / 2,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
			Range:          xRange,
		},
		YAxis: chart.YAxis{
			Name:  "PM2.5 (ug/m3)",
			Range: yRange,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Max",
				XValues: dates,
				YValues: maxs,
				Style:   chart.Style{StrokeColor: chart.ColorOrange},
			},
			chart.TimeSeries{
				Name:    "Min",
				XValues: dates,
				YValues: mins,
				Style:   chart.Style{StrokeColor: chart.ColorBlue},
			},
			chart.TimeSeries{
				Name:    "Mean",
				XValues: dates,
				YValues: means,
				Style:   chart.Style{StrokeColor: chart.ColorGreen},
			},
			thresholdSeries(dates[0], dates[len(dates)-1], threshold),
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return renderToImage(graph)
}

func renderScatterPanel(series []storage.Reading, opts ChartOptions) (image.Image, error) {
	threshold := opts.Threshold.InexactFloat64()

	var belowX, aboveX []time.Time
	var belowY, aboveY []float64
	var first, last time.Time
	for _, r := range series {
		if !r.Value.Valid {
			continue
		}
		if first.IsZero() || r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
		value := r.Value.Decimal.InexactFloat64()
		if r.Value.Decimal.GreaterThan(opts.Threshold) {
			aboveX = append(aboveX, r.Timestamp)
			aboveY = append(aboveY, value)
		} else {
			belowX = append(belowX, r.Timestamp)
			belowY = append(belowY, value)
		}
	}
	if len(belowX)+len(aboveX) == 0 {
		return nil, errors.New("no readings with data")
	}

	yRange := paddedValueRange(append(append([]float64{threshold}, belowY...), aboveY...))

	// Empty series fail chart validation, so only the populated sides of
	// the threshold are plotted.
	var plotted []chart.Series
	if len(belowX) > 0 {
		plotted = append(plotted, scatterSeries("Below threshold", belowX, belowY, chart.ColorGreen))
	}
	if len(aboveX) > 0 {
		plotted = append(plotted, scatterSeries("Above threshold", aboveX, aboveY, chart.ColorRed))
	}
	plotted = append(plotted, thresholdSeries(first, last, threshold))

	graph := chart.Chart{
		Title:  "PM2.5 Concentrations",
		Width:  opts.Width,
		Height: opts.Height - opts.Height/2,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
			Range:          paddedTimeRange(first, last, time.Hour),
		},
		YAxis: chart.YAxis{
			Name:  "PM2.5 (ug/m3)",
			Range: yRange,
		},
		Series: plotted,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return renderToImage(graph)
}

func scatterSeries(name string, xs []time.Time, ys []float64, color drawing.Color) chart.Series {
	return chart.TimeSeries{
		Name:    name,
		XValues: xs,
		YValues: ys,
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    3,
			DotColor:    color,
		},
	}
}

func thresholdSeries(from, to time.Time, threshold float64) chart.Series {
	return chart.TimeSeries{
		Name:    "Threshold",
		XValues: []time.Time{from, to},
		YValues: []float64{threshold, threshold},
		Style: chart.Style{
			StrokeColor:     chart.ColorRed,
			StrokeDashArray: []float64{5.0, 5.0},
		},
	}
}

// paddedTimeRange widens the x range so single-point series still render.
func paddedTimeRange(from, to time.Time, pad time.Duration) *chart.ContinuousRange {
	return &chart.ContinuousRange{
		Min: float64(from.Add(-pad).UnixNano()),
		Max: float64(to.Add(pad).UnixNano()),
	}
}

func paddedValueRange(values []float64) *chart.ContinuousRange {
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		max = 1
	}
	return &chart.ContinuousRange{Min: 0, Max: max * 1.1}
}

func renderToImage(graph chart.Chart) (image.Image, error) {
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return png.Decode(&buf)
}
