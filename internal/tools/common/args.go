package common

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// StringArg returns the trimmed string argument name, or "" when it is
// absent or not a string.
func StringArg(args map[string]any, name string) string {
	v, ok := args[name].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// IntArg returns the integer argument name, or def when it is absent.
// JSON numbers arrive as float64; fractional values are rejected.
func IntArg(args map[string]any, name string, def int) (int, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return def, nil
	}

	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer, got %v", name, v)
		}
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("%s is out of range: %v", name, v)
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", name, raw)
	}
}

// TimeArg parses the required RFC 3339 argument name.
func TimeArg(args map[string]any, name string) (time.Time, error) {
	v := StringArg(args, name)
	if v == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s format (want RFC 3339): %w", name, err)
	}
	return t, nil
}
