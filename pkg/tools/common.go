package tools

import (
	"fmt"
	"strings"
)

// strArg extracts a required string argument.
func strArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument '%s'", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument '%s' must be a string", key)
	}
	return s, nil
}

// strArgOrDefault extracts an optional string argument.
func strArgOrDefault(args map[string]any, key, def string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// intArgOrDefault extracts an optional integer argument. JSON numbers
// arrive as float64.
func intArgOrDefault(args map[string]any, key string, def int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// strSliceArg extracts an optional []string argument, accepting either
// a JSON array or a comma-separated string.
func strSliceArg(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}

// errResult formats a failed execution as the standard result map.
func errResult(err error) map[string]any {
	return map[string]any{"success": false, "error": err.Error()}
}

// okResult formats a successful execution, merging extra fields.
func okResult(extra map[string]any) map[string]any {
	result := map[string]any{"success": true}
	for k, v := range extra {
		result[k] = v
	}
	return result
}
