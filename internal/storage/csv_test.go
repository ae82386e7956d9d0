package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testStore(t *testing.T) *CSVStore {
	t.Helper()
	return NewCSVStore(filepath.Join(t.TempDir(), "pm25_data.csv"), zerolog.Nop())
}

func reading(t *testing.T, ts string, value float64) Reading {
	t.Helper()
	parsed, err := ParseTimestamp(ts)
	if err != nil {
		t.Fatalf("parse timestamp %q: %v", ts, err)
	}
	return Reading{
		Timestamp: parsed,
		Value:     decimal.NullDecimal{Decimal: decimal.NewFromFloat(value), Valid: true},
	}
}

func nullReading(t *testing.T, ts string) Reading {
	t.Helper()
	parsed, err := ParseTimestamp(ts)
	if err != nil {
		t.Fatalf("parse timestamp %q: %v", ts, err)
	}
	return Reading{Timestamp: parsed}
}

func TestMergeBootstrapsMissingSeries(t *testing.T) {
	store := testStore(t)
	batch := []Reading{
		reading(t, "2024-06-20T00:00:00Z", 10),
		reading(t, "2024-06-20T00:05:00Z", 12),
	}

	result, err := store.Merge(batch)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !result.Created || !result.Changed {
		t.Fatalf("first merge should create and change, got %+v", result)
	}
	if result.Added != len(batch) {
		t.Fatalf("added = %d, want %d", result.Added, len(batch))
	}
	for i := range batch {
		if !result.Series[i].Timestamp.Equal(batch[i].Timestamp) {
			t.Fatalf("row %d out of order", i)
		}
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	store := testStore(t)
	batch := []Reading{
		reading(t, "2024-06-20T00:00:00Z", 10),
		reading(t, "2024-06-20T00:05:00Z", 12),
	}

	if _, err := store.Merge(batch); err != nil {
		t.Fatalf("first merge: %v", err)
	}

	before, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read series file: %v", err)
	}

	result, err := store.Merge(batch)
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if result.Changed {
		t.Fatal("re-merging an already merged batch must not report a change")
	}
	if len(result.Series) != len(batch) {
		t.Fatalf("series grew to %d rows on re-merge", len(result.Series))
	}

	after, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read series file: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("series file was rewritten although nothing changed")
	}
}

func TestMergeAppendsOnlyNewRows(t *testing.T) {
	store := testStore(t)
	first := []Reading{
		reading(t, "2024-06-20T00:00:00Z", 10),
		reading(t, "2024-06-20T00:05:00Z", 12),
	}
	second := []Reading{
		reading(t, "2024-06-20T00:05:00Z", 12),
		reading(t, "2024-06-20T00:10:00Z", 14),
		reading(t, "2024-06-20T00:15:00Z", 16),
	}

	if _, err := store.Merge(first); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	result, err := store.Merge(second)
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if !result.Changed {
		t.Fatal("batch with new timestamps must report a change")
	}
	if result.Added != 2 {
		t.Fatalf("added = %d, want 2", result.Added)
	}

	// Existing rows keep their original order, new rows follow in batch order.
	want := []string{
		"2024-06-20T00:00:00Z",
		"2024-06-20T00:05:00Z",
		"2024-06-20T00:10:00Z",
		"2024-06-20T00:15:00Z",
	}
	if len(result.Series) != len(want) {
		t.Fatalf("series has %d rows, want %d", len(result.Series), len(want))
	}
	seen := make(map[int64]int)
	for i, r := range result.Series {
		if got := FormatTimestamp(r.Timestamp.UTC()); got != want[i] {
			t.Fatalf("row %d = %s, want %s", i, got, want[i])
		}
		seen[r.Timestamp.UnixNano()]++
	}
	for ts, n := range seen {
		if n > 1 {
			t.Fatalf("timestamp %d persisted %d times", ts, n)
		}
	}
}

func TestMergeKeepsWithinBatchDuplicates(t *testing.T) {
	store := testStore(t)
	if _, err := store.Merge([]Reading{reading(t, "2024-06-20T00:00:00Z", 10)}); err != nil {
		t.Fatalf("seed merge: %v", err)
	}

	// Batch rows are deduplicated against the persisted series only, not
	// against each other: a timestamp the feed repeats inside one response
	// is persisted twice, as delivered.
	batch := []Reading{
		reading(t, "2024-06-20T00:05:00Z", 12),
		reading(t, "2024-06-20T00:05:00Z", 13),
	}
	result, err := store.Merge(batch)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.Added != 2 {
		t.Fatalf("added = %d, want both duplicate rows", result.Added)
	}
	if len(result.Series) != 3 {
		t.Fatalf("series has %d rows, want 3", len(result.Series))
	}

	// Once persisted, re-merging the same batch is still a no-op.
	again, err := store.Merge(batch)
	if err != nil {
		t.Fatalf("re-merge: %v", err)
	}
	if again.Changed {
		t.Fatal("re-merging the duplicated batch must not report a change")
	}
	if len(again.Series) != 3 {
		t.Fatalf("series grew to %d rows on re-merge", len(again.Series))
	}
}

func TestMergeEmptyBatchIsNoOp(t *testing.T) {
	store := testStore(t)
	if _, err := store.Merge([]Reading{reading(t, "2024-06-20T00:00:00Z", 10)}); err != nil {
		t.Fatalf("seed merge: %v", err)
	}

	result, err := store.Merge(nil)
	if err != nil {
		t.Fatalf("empty merge: %v", err)
	}
	if result.Changed {
		t.Fatal("empty batch must not report a change")
	}
	if len(result.Series) != 1 {
		t.Fatalf("series has %d rows, want 1", len(result.Series))
	}
}

func TestMergeEmptyBatchDoesNotBootstrap(t *testing.T) {
	store := testStore(t)

	result, err := store.Merge(nil)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.Changed || result.Created {
		t.Fatalf("empty first batch must not create the series, got %+v", result)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Fatal("series file must not exist after an empty first batch")
	}
}

func TestMergeRoundTripsNullValues(t *testing.T) {
	store := testStore(t)
	batch := []Reading{
		reading(t, "2024-06-20T00:00:00Z", 10.5),
		nullReading(t, "2024-06-20T00:05:00Z"),
	}

	if _, err := store.Merge(batch); err != nil {
		t.Fatalf("merge: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d rows, want 2", len(loaded))
	}
	if !loaded[0].Value.Valid || !loaded[0].Value.Decimal.Equal(decimal.NewFromFloat(10.5)) {
		t.Fatalf("value round trip failed: %+v", loaded[0].Value)
	}
	if loaded[1].Value.Valid {
		t.Fatal("absent value must stay null after a round trip")
	}

	raw, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read series file: %v", err)
	}
	if !strings.HasPrefix(string(raw), "timestamp,PM2.5\n") {
		t.Fatalf("unexpected header: %q", strings.SplitN(string(raw), "\n", 2)[0])
	}
}

func TestMergeLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewCSVStore(filepath.Join(dir, "pm25_data.csv"), zerolog.Nop())

	if _, err := store.Merge([]Reading{reading(t, "2024-06-20T00:00:00Z", 10)}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only the series file, found %v", names)
	}
}

func TestLoadRejectsCorruptSeries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pm25_data.csv")
	if err := os.WriteFile(path, []byte("timestamp,PM2.5\nnot-a-timestamp,12\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	store := NewCSVStore(path, zerolog.Nop())
	_, err := store.Load()
	if err == nil {
		t.Fatal("corrupt series must fail to load")
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("error type = %T, want *StorageError", err)
	}
}

func TestMergeAcceptsLegacyTimestampLayout(t *testing.T) {
	ts, err := ParseTimestamp("2024-06-20 08:30:00")
	if err != nil {
		t.Fatalf("legacy layout should parse: %v", err)
	}
	if ts.Format("2006-01-02 15:04:05") != "2024-06-20 08:30:00" {
		t.Fatalf("parsed unexpected instant: %v", ts)
	}

	// A legacy-format batch row must dedupe against the RFC3339 row for the
	// same instant.
	store := testStore(t)
	if _, err := store.Merge([]Reading{reading(t, "2024-06-20T08:30:00Z", 7)}); err != nil {
		t.Fatalf("seed merge: %v", err)
	}
	result, err := store.Merge([]Reading{reading(t, "2024-06-20 08:30:00", 7)})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.Changed {
		t.Fatal("same instant in a different layout must not count as new")
	}
}
