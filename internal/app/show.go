package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"pm25watcher/internal/storage"
)

// Show prints the most recent readings, newest first. When a database
// mirror is configured it is queried and a mirrored-total summary is
// printed; otherwise the CSV series is read.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	readings, total, err := a.recentReadings(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		fmt.Fprintln(os.Stdout, "no readings found")
		return nil
	}

	threshold := decimal.NewFromFloat(a.Config.Report.Threshold)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Timestamp\tPM2.5\tExceeds")

	for _, r := range readings {
		value := "-"
		exceeds := ""
		if r.Value.Valid {
			value = r.Value.Decimal.String()
			if r.Value.Decimal.GreaterThan(threshold) {
				exceeds = "yes"
			}
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", storage.FormatTimestamp(r.Timestamp), value, exceeds)
	}

	if err := writer.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%d readings total\n", total)
	return nil
}

func (a *App) recentReadings(ctx context.Context, limit int) ([]storage.Reading, int64, error) {
	mirror, closeMirror, err := a.openMirror(ctx)
	if err != nil {
		return nil, 0, err
	}
	if mirror != nil {
		defer closeMirror()
		readings, err := mirror.ListRecentReadings(ctx, a.Config.Sensor.DeviceID, limit)
		if err != nil {
			return nil, 0, err
		}
		total, err := mirror.CountReadings(ctx, a.Config.Sensor.DeviceID)
		if err != nil {
			return nil, 0, err
		}
		return readings, total, nil
	}

	series, err := a.newStore(a.Logger).Load()
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(series))

	// The CSV series is append-ordered; take the tail and reverse it so the
	// newest row prints first, matching the mirror query.
	if len(series) > limit {
		series = series[len(series)-limit:]
	}
	reversed := make([]storage.Reading, 0, len(series))
	for i := len(series) - 1; i >= 0; i-- {
		reversed = append(reversed, series[i])
	}
	return reversed, total, nil
}
