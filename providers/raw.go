package providers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

// RawString reads a string-ish field from a raw provider record, returning ""
// when the field is absent or not a scalar. Normalization relies on absent
// fields staying absent, so no placeholder values are invented here.
func RawString(raw core.RawRecord, key string) string {
	if raw == nil {
		return ""
	}
	switch typed := raw[key].(type) {
	case string:
		return strings.TrimSpace(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return fmt.Sprintf("%t", typed)
	default:
		return ""
	}
}

// RawMap reads a nested object field, returning nil when absent or mistyped.
func RawMap(raw core.RawRecord, key string) core.RawRecord {
	if raw == nil {
		return nil
	}
	if nested, ok := raw[key].(map[string]any); ok {
		return nested
	}
	return nil
}

// RawSlice reads an array field, returning nil when absent or mistyped.
func RawSlice(raw core.RawRecord, key string) []any {
	if raw == nil {
		return nil
	}
	if items, ok := raw[key].([]any); ok {
		return items
	}
	return nil
}

// RawRecords reads an array field and keeps only its object elements.
func RawRecords(raw core.RawRecord, key string) []core.RawRecord {
	items := RawSlice(raw, key)
	if len(items) == 0 {
		return nil
	}
	records := make([]core.RawRecord, 0, len(items))
	for _, item := range items {
		if record, ok := item.(map[string]any); ok {
			records = append(records, record)
		}
	}
	return records
}

// SetMeta assigns a metadata entry only when the value is non-empty.
func SetMeta(metadata map[string]string, key, value string) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return
	}
	metadata[key] = trimmed
}
