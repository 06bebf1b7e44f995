package mapping

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case nil:
		return ""
	}
	if items, ok := asSlice(v); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = coerceString(item)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}

func coerceFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

func coerceInt(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, false
		}
		return int64(val), true
	case float32:
		return coerceInt(float64(val))
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return i, true
		}
		if f, ok := coerceFloat(val); ok {
			return coerceInt(f)
		}
	}
	return 0, false
}

func coerceBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(val) {
		case "true", "1":
			return true, true
		case "false", "0", "":
			return false, true
		}
	default:
		if f, ok := coerceFloat(v); ok {
			return f != 0, true
		}
	}
	return false, false
}

func coerceDate(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, val)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case int64:
		return time.UnixMilli(val).UTC(), true
	case int:
		return time.UnixMilli(int64(val)).UTC(), true
	case float64:
		return time.UnixMilli(int64(val)).UTC(), true
	}
	return time.Time{}, false
}

// asSlice returns the elements of any slice except byte slices.
func asSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// asMap returns the entries of any string-keyed map.
func asMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}
