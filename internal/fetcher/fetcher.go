package fetcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// SensorFetcher retrieves one raw sensor payload per poll cycle.
type SensorFetcher interface {
	Fetch(ctx context.Context, deviceID string) (*Payload, error)
}

// NetworkError marks a transport failure or a non-success response from
// the sensor API. The scheduler retries on the next cycle.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("fetch: %v", e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// MalformedPayloadError marks a response body that violates the feed
// contract: undecodable JSON, or an entry without a timestamp.
type MalformedPayloadError struct {
	Reason string
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	if e.Err == nil {
		return "malformed payload: " + e.Reason
	}
	return fmt.Sprintf("malformed payload: %s: %v", e.Reason, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}

// Payload is the raw response body of the sensor API.
type Payload struct {
	Feeds []Feed `json:"feeds"`
}

// Feed maps a source name to its entry list.
type Feed map[string][]Entry

// Entry maps an entry key to one values object.
type Entry map[string]Values

// Values is the leaf object of an entry: a timestamp plus any number of
// named numeric channels. Non-numeric fields are ignored.
type Values struct {
	Timestamp string
	Channels  map[string]decimal.Decimal
}

// UnmarshalJSON splits the timestamp field off from the channel fields.
func (v *Values) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	v.Channels = make(map[string]decimal.Decimal, len(raw))
	for key, field := range raw {
		if key == "timestamp" {
			if err := json.Unmarshal(field, &v.Timestamp); err != nil {
				return fmt.Errorf("timestamp field: %w", err)
			}
			continue
		}
		var value decimal.Decimal
		if err := json.Unmarshal(field, &value); err != nil {
			continue
		}
		v.Channels[key] = value
	}

	return nil
}
