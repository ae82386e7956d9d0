package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// seriesHeader is the fixed header row of the persisted series file.
var seriesHeader = []string{"timestamp", "PM2.5"}

// StorageError wraps a failed read or write of the persisted series.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// SeriesStore defines operations over the durable reading series.
type SeriesStore interface {
	Load() ([]Reading, error)
	Merge(batch []Reading) (MergeResult, error)
}

// CSVStore persists the reading series as a two-column CSV file.
type CSVStore struct {
	path   string
	logger zerolog.Logger
}

// NewCSVStore constructs a store over the given series file path.
func NewCSVStore(path string, logger zerolog.Logger) *CSVStore {
	return &CSVStore{path: path, logger: logger.With().Str("component", "csv_store").Logger()}
}

// Path returns the location of the series file.
func (s *CSVStore) Path() string {
	return s.path
}

// Load reads the full persisted series. A missing file yields an empty
// series and no error.
func (s *CSVStore) Load() ([]Reading, error) {
	series, _, err := s.load()
	return series, err
}

// Merge folds a fetched batch into the persisted series. Rows whose
// timestamp is already persisted are discarded; the remainder is appended
// after the existing rows, in batch order, and the whole series is written
// back atomically. When nothing is new the file is left untouched.
//
// Batch rows are only matched against the persisted series, not against
// each other: a timestamp repeated inside one response is preserved as
// delivered, so the anomaly stays visible downstream.
func (s *CSVStore) Merge(batch []Reading) (MergeResult, error) {
	existing, exists, err := s.load()
	if err != nil {
		return MergeResult{}, err
	}

	if !exists {
		if len(batch) == 0 {
			return MergeResult{}, nil
		}
		if err := s.write(batch); err != nil {
			return MergeResult{}, err
		}
		s.logger.Info().Str("path", s.path).Int("rows", len(batch)).Msg("series file created")
		return MergeResult{Series: batch, Added: len(batch), Created: true, Changed: true}, nil
	}

	seen := make(map[int64]struct{}, len(existing))
	for _, r := range existing {
		seen[r.Timestamp.UnixNano()] = struct{}{}
	}

	var fresh []Reading
	for _, r := range batch {
		if _, ok := seen[r.Timestamp.UnixNano()]; !ok {
			fresh = append(fresh, r)
		}
	}

	if len(fresh) == 0 {
		return MergeResult{Series: existing, Changed: false}, nil
	}

	merged := append(existing, fresh...)
	if err := s.write(merged); err != nil {
		return MergeResult{}, err
	}

	return MergeResult{Series: merged, Added: len(fresh), Changed: true}, nil
}

func (s *CSVStore) load() ([]Reading, bool, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, &StorageError{Op: "open", Path: s.path, Err: err}
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 2

	records, err := reader.ReadAll()
	if err != nil {
		return nil, true, &StorageError{Op: "read", Path: s.path, Err: err}
	}

	var series []Reading
	for i, record := range records {
		if i == 0 && record[0] == seriesHeader[0] {
			continue
		}
		ts, err := ParseTimestamp(record[0])
		if err != nil {
			return nil, true, &StorageError{Op: "read", Path: s.path, Err: fmt.Errorf("row %d: %w", i+1, err)}
		}
		reading := Reading{Timestamp: ts}
		if record[1] != "" {
			value, err := decimal.NewFromString(record[1])
			if err != nil {
				return nil, true, &StorageError{Op: "read", Path: s.path, Err: fmt.Errorf("row %d: %w", i+1, err)}
			}
			reading.Value = decimal.NullDecimal{Decimal: value, Valid: true}
		}
		series = append(series, reading)
	}

	return series, true, nil
}

// write replaces the series file through a temp file and rename so an
// interrupt never leaves a half-written series behind.
func (s *CSVStore) write(series []Reading) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return &StorageError{Op: "create", Path: s.path, Err: err}
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	writer := csv.NewWriter(tmp)
	if err := writer.Write(seriesHeader); err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	for _, r := range series {
		record := []string{FormatTimestamp(r.Timestamp), FormatValue(r.Value)}
		if err := writer.Write(record); err != nil {
			return &StorageError{Op: "write", Path: s.path, Err: err}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}

	if err := tmp.Close(); err != nil {
		return &StorageError{Op: "close", Path: s.path, Err: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return &StorageError{Op: "rename", Path: s.path, Err: err}
	}

	return nil
}

var _ SeriesStore = (*CSVStore)(nil)
