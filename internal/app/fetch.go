package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"pm25watcher/internal/fetcher"
)

// FetchOnce performs a single fetch-and-merge cycle without the scheduler.
// With DryRun the series is left untouched and the would-be outcome is
// printed instead.
func (a *App) FetchOnce(ctx context.Context, opts FetchOptions) error {
	if a.Config.Sensor.DeviceID == "" {
		return errors.New("sensor.device_id is required")
	}

	fetch := a.newFetcher(a.Logger)
	payload, err := fetch.Fetch(ctx, a.Config.Sensor.DeviceID)
	if err != nil {
		return err
	}

	batch, err := fetcher.Flatten(payload, a.Config.Sensor.Channel)
	if err != nil {
		return err
	}

	store := a.newStore(a.Logger)

	if opts.DryRun {
		existing, err := store.Load()
		if err != nil {
			return err
		}
		seen := make(map[int64]struct{}, len(existing))
		for _, r := range existing {
			seen[r.Timestamp.UnixNano()] = struct{}{}
		}
		fresh := 0
		for _, r := range batch {
			if _, ok := seen[r.Timestamp.UnixNano()]; !ok {
				fresh++
			}
		}
		fmt.Fprintf(os.Stdout, "dry-run: fetched %d readings, %d new (series untouched)\n", len(batch), fresh)
		return nil
	}

	result, err := store.Merge(batch)
	if err != nil {
		return err
	}

	if !result.Changed {
		fmt.Fprintf(os.Stdout, "fetched %d readings, nothing new\n", len(batch))
		return nil
	}
	fmt.Fprintf(os.Stdout, "fetched %d readings, %d merged into %s\n", len(batch), result.Added, store.Path())
	return nil
}
