package knowledge

import (
	"fmt"
	"strings"
)

// FlattenMetadata converts arbitrary nested metadata into the flat
// scalar shape the upstream store's filter layer accepts: sequences
// become comma-joined strings, scalars pass through unchanged, anything
// else is stringified. Returns nil for empty input.
func FlattenMetadata(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return nil
	}

	flat := make(map[string]any, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case nil, string, bool,
			int, int32, int64,
			float32, float64:
			flat[k] = val
		case []string:
			flat[k] = strings.Join(val, ",")
		case []any:
			parts := make([]string, len(val))
			for i, item := range val {
				parts[i] = fmt.Sprint(item)
			}
			flat[k] = strings.Join(parts, ",")
		default:
			flat[k] = fmt.Sprint(val)
		}
	}
	return flat
}

// SplitCSV splits a comma-separated metadata value into trimmed,
// non-empty elements. Tags and related-rule lists are stored this way
// because the store only takes scalar metadata.
func SplitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
