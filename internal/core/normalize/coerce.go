package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"signalroom/internal/platform/logger"
)

// Int converts v to an int64. Missing or malformed input yields 0 and a debug
// line; this never fails. Floats truncate toward zero
func Int(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return truncate(float64(x), v)
	case float64:
		return truncate(x, v)
	case bool:
		if x {
			return 1
		}
		return 0
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		return Int(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return truncate(f, v)
		}
	}
	coerceMiss("int", v)
	return 0
}

func truncate(f float64, orig any) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		coerceMiss("int", orig)
		return 0
	}
	return int64(f)
}

// Float converts v to a float64 with the same never-fail contract as Int
func Float(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return finite(x, v)
	case float32:
		return finite(float64(x), v)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case json.Number:
		return Float(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		s = strings.NewReplacer("$", "", ",", "").Replace(s)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return finite(f, v)
		}
	}
	coerceMiss("float", v)
	return 0
}

func finite(f float64, orig any) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		coerceMiss("float", orig)
		return 0
	}
	return f
}

// String renders scalars as text; nil yields ""
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	time.DateTime,
	"01/02/2006",
	"1/2/2006",
}

// Date renders v as YYYY-MM-DD in UTC. Numbers and numeric strings are unix
// epoch seconds. Unparseable input yields ""
func Date(v any) string {
	t, ok := parseTime(v)
	if !ok {
		coerceMiss("date", v)
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

// TimestampLayout is fixed width so rendered timestamps sort lexically
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Timestamp renders v in UTC with TimestampLayout, or "" when unparseable
func Timestamp(v any) string {
	t, ok := parseTime(v)
	if !ok {
		coerceMiss("timestamp", v)
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

func parseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return x, !x.IsZero()
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
			return time.Unix(n, 0), true
		}
		return time.Time{}, false
	default:
		n := Int(v)
		if n <= 0 {
			return time.Time{}, false
		}
		return time.Unix(n, 0), true
	}
}

func coerceMiss(kind string, v any) {
	logger.Named("normalize").Debug().
		Str("kind", kind).
		Str("value", fmt.Sprintf("%v", v)).
		Msg("coercion fell back to zero value")
}
