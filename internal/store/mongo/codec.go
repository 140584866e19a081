package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pos-service/internal/store"
)

func toDocument(m bson.M) store.Document {
	doc := store.Document{Fields: make(map[string]interface{}, len(m))}
	for k, v := range m {
		if k == "_id" {
			switch id := v.(type) {
			case primitive.ObjectID:
				doc.ID = id.Hex()
			case string:
				doc.ID = id
			}
			continue
		}
		doc.Fields[k] = normalize(v)
	}
	return doc
}

// normalize converts driver types into the plain Go values the rest of the
// service expects.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	case primitive.ObjectID:
		return val.Hex()
	case primitive.Decimal128:
		return val.String()
	case primitive.A:
		out := make([]interface{}, len(val))
		for i := range val {
			out[i] = normalize(val[i])
		}
		return out
	case primitive.M:
		return normalizeMap(val)
	case map[string]interface{}:
		return normalizeMap(val)
	case primitive.D:
		return normalizeMap(val.Map())
	default:
		return v
	}
}

func normalizeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func resolve(fields map[string]interface{}, now time.Time) bson.M {
	out := make(bson.M, len(fields)+1)
	for k, v := range fields {
		if store.IsServerTimestamp(v) {
			out[k] = now.UTC()
			continue
		}
		out[k] = v
	}
	return out
}
