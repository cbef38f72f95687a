package render

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Funcs returns the filter set shared by text and html templates. A filter
// takes its value last so both {{ currency .x }} and {{ .x | number 2 }} work
func Funcs(now func() time.Time) map[string]any {
	return map[string]any{
		"currency": currency,
		"number":   number,
		"percent":  percent,
		"date":     date,
		"delta":    delta,
		"default":  orDefault,
		"upper":    strings.ToUpper,
		"inc":      func(i int) int { return i + 1 },
		"now":      func() string { return now().UTC().Format("2006-01-02 15:04 UTC") },
	}
}

// split pulls the value (last arg) and an optional leading option
func split(args []any) (v any, opt any) {
	switch len(args) {
	case 0:
		return nil, nil
	case 1:
		return args[0], nil
	default:
		return args[len(args)-1], args[0]
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", ""), 64)
		return f, err == nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	}
	return 0, false
}

func toInt(v any, def int) int {
	f, ok := toFloat(v)
	if !ok || f < 0 {
		return def
	}
	return int(f)
}

// grouped formats f with thousands separators and d decimals
func grouped(f float64, d int) string {
	return printer.Sprintf("%."+strconv.Itoa(d)+"f", f)
}

// currency renders $1,234.56; missing values render $0.00
func currency(args ...any) string {
	v, _ := split(args)
	f, ok := toFloat(v)
	if !ok {
		return "$0.00"
	}
	if f < 0 {
		return "-$" + grouped(-f, 2)
	}
	return "$" + grouped(f, 2)
}

// number renders 1,234 or, with a leading decimals arg, 1,234.50
func number(args ...any) string {
	v, opt := split(args)
	f, ok := toFloat(v)
	if !ok {
		return "0"
	}
	return grouped(f, toInt(opt, 0))
}

// percent renders 12.3%
func percent(args ...any) string {
	v, opt := split(args)
	f, ok := toFloat(v)
	if !ok {
		return "0%"
	}
	return strconv.FormatFloat(f, 'f', toInt(opt, 1), 64) + "%"
}

// delta renders a signed change: +1,234.00 or -12.50
func delta(args ...any) string {
	v, opt := split(args)
	f, ok := toFloat(v)
	if !ok {
		return "0"
	}
	d := toInt(opt, 2)
	if f < 0 {
		return "-" + grouped(-f, d)
	}
	return "+" + grouped(f, d)
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// date renders Dec 21, 2025. Unparseable input passes through; a leading
// arg overrides the layout
func date(args ...any) string {
	v, opt := split(args)
	layout := "Jan 02, 2006"
	if s, ok := opt.(string); ok && s != "" {
		layout = s
	}
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.Format(layout)
	case string:
		for _, l := range dateLayouts {
			if p, err := time.Parse(l, t); err == nil {
				return p.Format(layout)
			}
		}
		return t
	}
	return fmt.Sprint(v)
}

// orDefault returns def when v is nil or empty
func orDefault(def, v any) any {
	switch x := v.(type) {
	case nil:
		return def
	case string:
		if x == "" {
			return def
		}
	}
	return v
}
