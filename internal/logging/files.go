package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// NewRunLogger builds a logger that writes both to the configured console
// writer and to an append-only log file, so unattended runs leave a durable
// record of created/updated/report/error events. The returned closer must
// be called on shutdown.
func NewRunLogger(cfg Config, path string) (zerolog.Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open run log: %w", err)
	}

	writer := zerolog.MultiLevelWriter(logWriter(cfg), file)
	return newLogger(cfg, writer), file.Close, nil
}
