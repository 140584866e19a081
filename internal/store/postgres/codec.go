package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pos-service/internal/store"
)

// timeLayout is fixed width so that text comparison on fields->>'timestamp'
// orders the same way as the instants do.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func newID() string {
	return uuid.New().String()
}

func encodeFields(fields map[string]interface{}, now time.Time) (string, error) {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if store.IsServerTimestamp(v) {
			out[k] = now.UTC().Format(timeLayout)
			continue
		}
		out[k] = encodeValue(v)
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode fields: %w", err)
	}
	return string(payload), nil
}

func encodeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(timeLayout)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(timeLayout)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = encodeValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i := range val {
			out[i] = encodeValue(val[i])
		}
		return out
	default:
		return v
	}
}

func decodeFields(raw []byte) (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
