package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"pm25watcher/internal/config"
)

const (
	insertReadingSQL = `INSERT INTO readings (device_id, ts, pm25)
    VALUES ($1, $2, $3)
    ON CONFLICT (device_id, ts) DO NOTHING;`

	listRecentReadingsSQL = `SELECT ts, pm25
    FROM readings
    WHERE device_id = $1
    ORDER BY ts DESC
    LIMIT $2;`

	countReadingsSQL = `SELECT COUNT(*) FROM readings WHERE device_id = $1;`
)

// ReadingMirror defines the optional secondary sink for merged readings.
type ReadingMirror interface {
	UpsertReadings(ctx context.Context, deviceID string, readings []Reading) (int64, error)
	ListRecentReadings(ctx context.Context, deviceID string, limit int) ([]Reading, error)
	CountReadings(ctx context.Context, deviceID string) (int64, error)
}

// Mirror replicates merged readings into PostgreSQL for external
// dashboards. The CSV series stays the system of record.
type Mirror struct {
	pool *pgxpool.Pool
}

// NewMirror wires a pgx pool into a Mirror.
func NewMirror(pool *pgxpool.Pool) *Mirror {
	return &Mirror{pool: pool}
}

// Close releases the underlying pool.
func (m *Mirror) Close() {
	if m.pool != nil {
		m.pool.Close()
	}
}

// UpsertReadings inserts readings that are not yet mirrored and returns the
// number of rows actually written.
func (m *Mirror) UpsertReadings(ctx context.Context, deviceID string, readings []Reading) (int64, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range readings {
		batch.Queue(insertReadingSQL, deviceID, r.Timestamp, r.Value)
	}

	results := m.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range readings {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("mirror reading: %w", err)
		}
		inserted += tag.RowsAffected()
	}

	return inserted, nil
}

// ListRecentReadings returns the newest readings for a device, newest first.
func (m *Mirror) ListRecentReadings(ctx context.Context, deviceID string, limit int) ([]Reading, error) {
	rows, err := m.pool.Query(ctx, listRecentReadingsSQL, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent readings: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var r Reading
		var value decimal.NullDecimal
		if err := rows.Scan(&r.Timestamp, &value); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.Value = value
		readings = append(readings, r)
	}

	return readings, rows.Err()
}

// CountReadings reports how many readings are mirrored for a device.
func (m *Mirror) CountReadings(ctx context.Context, deviceID string) (int64, error) {
	var count int64
	if err := m.pool.QueryRow(ctx, countReadingsSQL, deviceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return count, nil
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

var _ ReadingMirror = (*Mirror)(nil)
