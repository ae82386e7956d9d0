package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const deviceIDPlaceholder = "{device_id}"

// SensorOptions parameterise the sensor API client.
type SensorOptions struct {
	APIURL    string
	Timeout   time.Duration
	UserAgent string
}

// Sensor fetches raw feed payloads from the remote sensor API.
type Sensor struct {
	opts   SensorOptions
	logger zerolog.Logger
	client *http.Client
}

// NewSensor constructs a sensor API client.
func NewSensor(opts SensorOptions, logger zerolog.Logger) *Sensor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Sensor{
		opts:   opts,
		logger: logger.With().Str("component", "sensor_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch performs one GET against the templated endpoint and decodes the
// feed payload. It never retries; the caller owns the retry cadence.
func (s *Sensor) Fetch(ctx context.Context, deviceID string) (*Payload, error) {
	if s.opts.APIURL == "" {
		return nil, errors.New("sensor api url required")
	}
	if deviceID == "" {
		return nil, errors.New("device id required")
	}

	endpoint := strings.ReplaceAll(s.opts.APIURL, deviceIDPlaceholder, url.PathEscape(deviceID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &NetworkError{URL: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "pm25watcher/1.0")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: endpoint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &NetworkError{URL: endpoint, Err: statusError(resp.Status, body)}
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &MalformedPayloadError{Reason: "decode response body", Err: err}
	}

	s.logger.Debug().Str("device_id", deviceID).Int("feeds", len(payload.Feeds)).Msg("payload fetched")

	return &payload, nil
}

func statusError(status string, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	if snippet == "" {
		return fmt.Errorf("unexpected status %s", status)
	}
	return fmt.Errorf("unexpected status %s: %s", status, snippet)
}

var _ SensorFetcher = (*Sensor)(nil)
