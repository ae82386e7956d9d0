package storage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Reading is one timestamped PM2.5 observation. Value is null when the
// sensor entry did not carry the configured channel.
type Reading struct {
	Timestamp time.Time
	Value     decimal.NullDecimal
}

// MergeResult describes the outcome of merging a fetched batch into the
// persisted series.
type MergeResult struct {
	Series  []Reading
	Added   int
	Created bool
	Changed bool
}

// timestampLayouts covers the formats the sensor API has been observed to
// emit. RFC3339 is what the store itself writes.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses a sensor or series timestamp.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

// FormatTimestamp renders a timestamp the way the series file stores it.
func FormatTimestamp(ts time.Time) string {
	return ts.Format(time.RFC3339)
}

// FormatValue renders a reading value for the series file; a null value
// becomes an empty cell.
func FormatValue(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.String()
}
