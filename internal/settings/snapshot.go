package settings

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"
)

// snapshot holds the in-memory DB-backed settings values.
type snapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

// globalSnapshot stores the latest snapshot atomically.
var globalSnapshot atomic.Value // stores snapshot

// init seeds the global snapshot.
func init() {
	globalSnapshot.Store(snapshot{values: map[string]json.RawMessage{}})
}

// Store replaces the in-memory snapshot of DB-backed settings.
func Store(updatedAt time.Time, values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		if v == nil {
			next[key] = nil
			continue
		}
		copied := make([]byte, len(v))
		copy(copied, v)
		next[key] = copied
	}

	globalSnapshot.Store(snapshot{
		updatedAt: updatedAt.UTC(),
		values:    next,
	})
}

// UpdatedAt returns the last update timestamp for the settings snapshot.
func UpdatedAt() time.Time {
	return loadSnapshot().updatedAt
}

// Value returns the raw JSON value for a settings key.
func Value(key string) (json.RawMessage, bool) {
	v, ok := loadSnapshot().values[strings.TrimSpace(key)]
	return v, ok
}

// StringValue returns a settings value decoded as a string. Falls back to the
// provided default when the key is absent or not a JSON string.
func StringValue(key, fallback string) string {
	raw, ok := Value(key)
	if !ok || len(raw) == 0 {
		return fallback
	}
	var out string
	if errUnmarshal := json.Unmarshal(raw, &out); errUnmarshal != nil {
		return fallback
	}
	if strings.TrimSpace(out) == "" {
		return fallback
	}
	return out
}

// loadSnapshot returns the current snapshot.
func loadSnapshot() snapshot {
	v, ok := globalSnapshot.Load().(snapshot)
	if !ok {
		return snapshot{values: map[string]json.RawMessage{}}
	}
	return v
}
