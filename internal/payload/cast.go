package payload

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"medallion/pkg/models"
)

// Accepted timestamp layouts, tried in order. The upstream source delivers
// dates as "2006-01-02" and timestamps as RFC 3339.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// AsString casts a payload value to string.
func AsString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	default:
		return "", false
	}
}

// AsInt64 casts a payload value to int64. Fractional floats are rejected
// rather than truncated.
func AsInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// AsFloat64 casts a payload value to float64.
func AsFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// AsBool casts a payload value to bool.
func AsBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	default:
		return false, false
	}
}

// AsTime casts a payload value to a UTC timestamp.
func AsTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// AsStringList casts a payload value to a list of strings. Elements may be
// plain strings or objects carrying a "name" attribute, which is how the
// source API ships nested reference lists such as genres.
func AsStringList(v interface{}) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out, true
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			switch e := item.(type) {
			case string:
				out = append(out, e)
			case map[string]interface{}:
				name, ok := AsString(e["name"])
				if !ok {
					return nil, false
				}
				out = append(out, name)
			default:
				return nil, false
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// Cast converts a raw payload value to the given field type, returning the
// normalized value and whether the conversion succeeded. A nil input is not
// a cast failure: it stays nil.
func Cast(v interface{}, ft models.FieldType) (interface{}, bool) {
	if v == nil {
		return nil, true
	}

	switch ft {
	case models.FieldString:
		if s, ok := AsString(v); ok {
			return s, true
		}
	case models.FieldInt:
		if n, ok := AsInt64(v); ok {
			return n, true
		}
	case models.FieldFloat:
		if f, ok := AsFloat64(v); ok {
			return f, true
		}
	case models.FieldBool:
		if b, ok := AsBool(v); ok {
			return b, true
		}
	case models.FieldTime:
		if t, ok := AsTime(v); ok {
			return t, true
		}
	case models.FieldStringList:
		if l, ok := AsStringList(v); ok {
			return l, true
		}
	}
	return nil, false
}

// BusinessKey extracts the business key from a raw payload. Returns false
// when the key is absent, null, or not a positive integer.
func BusinessKey(p map[string]interface{}, field string) (int64, bool) {
	key, ok := AsInt64(p[field])
	if !ok || key <= 0 {
		return 0, false
	}
	return key, true
}
