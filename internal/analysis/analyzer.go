// Package analysis derives daily aggregates and threshold exceedances from
// a reading series. Everything here is a pure function of its inputs.
package analysis

import (
	"sort"

	"github.com/shopspring/decimal"

	"pm25watcher/internal/storage"
)

// DateLayout is the calendar-date key derived from reading timestamps.
const DateLayout = "2006-01-02"

// DailyStat aggregates one calendar date of readings. Samples counts the
// readings that carried a value; when it is zero the date had readings but
// none with the configured channel, and Max/Min/Mean are meaningless.
type DailyStat struct {
	Date    string
	Max     decimal.Decimal
	Min     decimal.Decimal
	Mean    decimal.Decimal
	Samples int
}

// HasData reports whether the stat carries usable aggregates.
func (s DailyStat) HasData() bool {
	return s.Samples > 0
}

// Analyze groups the series by calendar date (taken as given, no timezone
// conversion) and computes max/min/mean per date over the non-null values.
// It also returns every reading strictly above the threshold; null values
// never exceed.
func Analyze(series []storage.Reading, threshold decimal.Decimal) ([]DailyStat, []storage.Reading) {
	values := make(map[string][]decimal.Decimal)
	var exceedances []storage.Reading

	for _, r := range series {
		date := r.Timestamp.Format(DateLayout)
		if _, ok := values[date]; !ok {
			values[date] = nil
		}
		if !r.Value.Valid {
			continue
		}
		values[date] = append(values[date], r.Value.Decimal)
		if r.Value.Decimal.GreaterThan(threshold) {
			exceedances = append(exceedances, r)
		}
	}

	dates := make([]string, 0, len(values))
	for date := range values {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	stats := make([]DailyStat, 0, len(dates))
	for _, date := range dates {
		stats = append(stats, dailyStat(date, values[date]))
	}

	return stats, exceedances
}

func dailyStat(date string, values []decimal.Decimal) DailyStat {
	if len(values) == 0 {
		return DailyStat{Date: date}
	}
	return DailyStat{
		Date:    date,
		Max:     decimal.Max(values[0], values[1:]...),
		Min:     decimal.Min(values[0], values[1:]...),
		Mean:    decimal.Avg(values[0], values[1:]...),
		Samples: len(values),
	}
}
