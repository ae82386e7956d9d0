package fetcher

import (
	"sort"

	"github.com/shopspring/decimal"

	"pm25watcher/internal/storage"
)

// DefaultChannel identifies the PM2.5 channel within sensor entries.
const DefaultChannel = "s_d0"

// Flatten normalises the nested feed payload into one reading per leaf
// values object, extracting the named channel. An entry lacking the channel
// yields a null value; an entry lacking a timestamp is a contract violation.
//
// Map keys are walked in sorted order so the batch order is stable for a
// given payload.
func Flatten(payload *Payload, channel string) ([]storage.Reading, error) {
	if channel == "" {
		channel = DefaultChannel
	}

	var batch []storage.Reading
	for _, feed := range payload.Feeds {
		for _, source := range sortedKeys(feed) {
			for _, entry := range feed[source] {
				for _, entryKey := range sortedKeys(entry) {
					values := entry[entryKey]
					if values.Timestamp == "" {
						return nil, &MalformedPayloadError{Reason: "entry " + entryKey + " missing timestamp"}
					}
					ts, err := storage.ParseTimestamp(values.Timestamp)
					if err != nil {
						return nil, &MalformedPayloadError{Reason: "entry " + entryKey, Err: err}
					}

					reading := storage.Reading{Timestamp: ts}
					if value, ok := values.Channels[channel]; ok {
						reading.Value = decimal.NullDecimal{Decimal: value, Valid: true}
					}
					batch = append(batch, reading)
				}
			}
		}
	}

	return batch, nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
