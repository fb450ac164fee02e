package transform

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Schema formats with dedicated coercion.
const (
	formatDate     = "date"
	formatDateTime = "date-time"
)

// dateLayouts are tried in order when a string is coerced to a date.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05 Z0700",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// parseTime parses s with the first matching layout.
func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Coerce converts every top-level field that the schema declares into the
// declared type. Values that cannot be converted are left unchanged.
func Coerce(record map[string]any, properties map[string]any) {
	if len(properties) == 0 {
		return
	}
	for field, value := range record {
		schema, ok := properties[field].(map[string]any)
		if !ok {
			continue
		}
		record[field] = coerceValue(value, schema)
	}
}

func coerceValue(value any, schema map[string]any) any {
	if value == nil {
		return nil
	}
	format, _ := schema["format"].(string)
	for _, typ := range schemaTypes(schema) {
		switch typ {
		case "integer":
			if v, ok := toInteger(value); ok {
				return v
			}
		case "number":
			if v, ok := toNumber(value); ok {
				return v
			}
		case "boolean":
			if v, ok := toBoolean(value); ok {
				return v
			}
		case "array":
			items, _ := schema["items"].(map[string]any)
			if arr, ok := value.([]any); ok && items != nil {
				out := make([]any, len(arr))
				for i, item := range arr {
					out[i] = coerceValue(item, items)
				}
				return out
			}
		case "string":
			if format == formatDate || format == formatDateTime {
				if v, ok := toDate(value, format); ok {
					return v
				}
			}
		}
	}
	return value
}

// schemaTypes returns the declared types; "type" may be a string or a list.
func schemaTypes(schema map[string]any) []string {
	switch t := schema["type"].(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok && s != "null" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	}
	if f, _ := schema["format"].(string); f == formatDate || f == formatDateTime {
		return []string{"string"}
	}
	return nil
}

// floatToInteger accepts whole floats that fit in an int64.
func floatToInteger(f float64) (int64, bool) {
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	if f < -9.223372036854775808e18 || f >= 9.223372036854775808e18 {
		return 0, false
	}
	return int64(f), true
}

func toInteger(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return floatToInteger(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInteger(f)
		}
	}
	return 0, false
}

func toNumber(value any) (any, bool) {
	switch v := value.(type) {
	case int, int64, float64:
		return v, true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return f, true
		}
	}
	return nil, false
}

func toBoolean(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		if v == 0 || v == 1 {
			return v == 1, true
		}
	case int64:
		if v == 0 || v == 1 {
			return v == 1, true
		}
	case float64:
		if v == 0 || v == 1 {
			return v == 1, true
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y", "t":
			return true, true
		case "false", "0", "no", "n", "f":
			return false, true
		}
	}
	return false, false
}

func toDate(value any, format string) (string, bool) {
	var t time.Time
	switch v := value.(type) {
	case time.Time:
		t = v
	case string:
		parsed, ok := parseTime(v)
		if !ok {
			return "", false
		}
		t = parsed
	default:
		return "", false
	}
	if format == formatDate {
		return t.Format("2006-01-02"), true
	}
	return t.Format(time.RFC3339), true
}
