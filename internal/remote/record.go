package remote

import (
	"strconv"
	"strings"
	"time"
)

// Record is one decoded server object: a flat key-value structure, possibly
// nesting related objects. Accessors are lenient: a missing or mistyped field
// reads as the zero value.
type Record map[string]any

// Has reports whether key is present and not null.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// String returns the field as a string. Numbers are formatted without a
// trailing fraction so numeric identifiers read naturally.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Int returns the field as an int.
func (r Record) Int(key string) int {
	switch v := r[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	return 0
}

// Float returns the field as a float64.
func (r Record) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	}
	return 0
}

// Bool returns the field as a bool.
func (r Record) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Time parses an RFC 3339 timestamp field. Unparseable values read as the
// zero time.
func (r Record) Time(key string) time.Time {
	switch v := r[key].(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t.UTC()
	case time.Time:
		return v.UTC()
	}
	return time.Time{}
}

// Record returns a nested object, or nil.
func (r Record) Record(key string) Record {
	switch v := r[key].(type) {
	case Record:
		return v
	case map[string]any:
		return Record(v)
	}
	return nil
}

// Records returns a nested list of objects. Non-object elements are dropped.
func (r Record) Records(key string) []Record {
	switch v := r[key].(type) {
	case []Record:
		return v
	case []any:
		out := make([]Record, 0, len(v))
		for _, e := range v {
			switch o := e.(type) {
			case Record:
				out = append(out, o)
			case map[string]any:
				out = append(out, Record(o))
			}
		}
		return out
	}
	return nil
}
