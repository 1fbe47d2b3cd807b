package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n)
		}
		return f, nil
	case bool:
		return 0, fmt.Errorf("boolean %t is not a number", n)
	default:
		return 0, fmt.Errorf("%T is not a number", v)
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// toStringList accepts a list (each item stringified) or a single non-empty string.
func toStringList(v any) []string {
	switch l := v.(type) {
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			out = append(out, toString(item))
		}
		return out
	case []string:
		return append([]string(nil), l...)
	case string:
		if l == "" {
			return []string{}
		}
		return []string{l}
	default:
		return []string{}
	}
}

// toTime accepts unix seconds or an RFC 3339 string.
func toTime(v any) (time.Time, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), nil
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return time.Time{}, fmt.Errorf("%q is not a timestamp", s)
		}
	}
	f, err := toFloat(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %w", err)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

// toUsage accepts a map of counters or a bare total token count.
func toUsage(v any) (map[string]int, error) {
	if m, ok := v.(map[string]any); ok {
		out := make(map[string]int, len(m))
		for k, raw := range m {
			f, err := toFloat(raw)
			if err != nil {
				// price and currency fields ride along with the counters
				continue
			}
			out[k] = int(f)
		}
		return out, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return nil, fmt.Errorf("usage: %w", err)
	}
	return map[string]int{"total_tokens": int(f)}, nil
}

// toObject accepts an object or a string holding a JSON object.
func toObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case map[string]any:
		return o, true
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(o)), &m); err == nil {
			return m, true
		}
	}
	return nil, false
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
