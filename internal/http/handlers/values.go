package handlers

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// JSON bodies from the web front end send numbers either as numbers or as numeric strings

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func integerValue(v any) (int, bool) {
	f, ok := numberValue(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// timeValue accepts ISO-8601 strings and epoch milliseconds
func timeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	case float64:
		if !math.IsNaN(t) && !math.IsInf(t, 0) {
			return time.UnixMilli(int64(t)).UTC(), true
		}
	}
	return time.Time{}, false
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
