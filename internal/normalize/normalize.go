// Package normalize converts raw OData payload objects into typed rows
// ready for the batch upserter. The upstream feed is heterogeneous
// JSON: booleans arrive as "Y"/"N"/"true"/"false" strings, timestamps
// as ISO-8601 strings, and some array fields arrive as a bare scalar
// when the upstream only has one value to report.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/swander00/real-estate-backend/internal/model"
)

// Record converts a single raw decoded-JSON object into a model.Row.
// Field values are coerced where the upstream's typing is known to be
// inconsistent; everything else passes through unchanged so that
// columns the caller doesn't know about yet are still captured.
func Record(raw map[string]any) model.Row {
	row := make(model.Row, len(raw))
	for k, v := range raw {
		row[k] = coerce(v)
	}
	return row
}

// Batch normalizes a slice of raw records in place order.
func Batch(raws []map[string]any) []model.Row {
	rows := make([]model.Row, len(raws))
	for i, raw := range raws {
		rows[i] = Record(raw)
	}
	return rows
}

func coerce(v any) any {
	switch t := v.(type) {
	case string:
		return coerceString(t)
	case []any:
		// Arrays keep their shape, with each element coerced. A bare
		// scalar sent in place of an array is coerced as a scalar and
		// is not wrapped into a slice.
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = coerce(e)
		}
		return out
	default:
		return v
	}
}

// coerceString recognizes the upstream's boolean and timestamp string
// encodings. Values that don't match either shape are returned as-is.
func coerceString(s string) any {
	switch strings.ToUpper(s) {
	case "Y", "TRUE":
		return true
	case "N", "FALSE":
		return false
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts
	}
	return s
}

// TimestampField returns the record's timestamp value for field,
// falling back through alts in order. It returns the zero time and
// false if none of the candidates parse.
func TimestampField(row model.Row, field string, alts []string) (time.Time, bool) {
	candidates := append([]string{field}, alts...)
	for _, f := range candidates {
		v, ok := row[f]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case time.Time:
			return t, true
		case string:
			if ts, err := time.Parse(time.RFC3339, t); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// IdentityKey computes the identity tuple for a record given its
// conflict-key column set, encoded as a stable string suitable for use
// as a dedup-set map key.
func IdentityKey(row model.Row, conflictKey []string) string {
	var b strings.Builder
	for i, col := range conflictKey {
		if i > 0 {
			b.WriteByte('\x1f') // unit separator, won't appear in key values
		}
		b.WriteString(valueString(row[col]))
	}
	return b.String()
}

func valueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
