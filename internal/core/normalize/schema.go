package normalize

import (
	"strings"
	"time"

	perr "signalroom/internal/platform/errors"
)

// Kind is the target type of a schema field
type Kind uint8

const (
	// KindString keeps text, cleaned with Label
	KindString Kind = iota
	// KindRaw keeps the value untouched (ids that must round-trip verbatim, nested objects)
	KindRaw
	// KindInt coerces with Int
	KindInt
	// KindFloat coerces with Float
	KindFloat
	// KindDate coerces with Date
	KindDate
	// KindTimestamp coerces with Timestamp
	KindTimestamp
)

// Row is one normalized record keyed by canonical field name
type Row map[string]any

// RawRow is one upstream record as decoded
type RawRow = map[string]any

// Field declares one canonical column and the upstream names it may arrive under
type Field struct {
	Name    string
	Aliases []string // probed in order; Name itself is tried first
	Kind    Kind
	Default any // used when no alias is present; nil leaves the zero of Kind
}

// Schema describes how one resource's raw rows become Rows
type Schema struct {
	Fields []Field
	// Keys must be present and non-empty after coercion, else the row is rejected
	Keys []string
	// Passthrough copies upstream keys no Field consumed
	Passthrough bool
}

// Probe returns the value of the first name present in raw with a non-nil value.
// 0 and "" are present values
func Probe(raw RawRow, names ...string) (any, bool) {
	for _, n := range names {
		if v, ok := raw[n]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// ErrMissingKey marks a row rejected by key validation
var ErrMissingKey = perr.New(perr.ErrorCodeValidation, "missing key field")

// Apply normalizes one raw row. A row whose key field is missing or empty
// returns ErrMissingKey with the field attached
func (s Schema) Apply(raw RawRow) (Row, error) {
	out := make(Row, len(s.Fields))
	missing := map[string]bool{}
	var used map[string]struct{}
	if s.Passthrough {
		used = make(map[string]struct{}, len(s.Fields)*2)
	}

	for _, f := range s.Fields {
		names := append([]string{f.Name}, f.Aliases...)
		v, ok := Probe(raw, names...)
		if !ok {
			v = f.Default
			missing[f.Name] = v == nil
		}
		out[f.Name] = coerce(f.Kind, v)
		if used != nil {
			for _, n := range names {
				used[n] = struct{}{}
			}
		}
	}
	if s.Passthrough {
		for k, v := range raw {
			if _, ok := used[k]; !ok {
				out[k] = v
			}
		}
	}

	for _, k := range s.Keys {
		if missing[k] || emptyKey(out[k]) {
			return nil, perr.WithField(ErrMissingKey, k)
		}
	}
	return out, nil
}

// Result is the outcome of normalizing a batch
type Result struct {
	Rows    []Row
	Skipped int
}

// Batch normalizes raws in order, stamps every accepted row and counts rejects
func (s Schema) Batch(raws []RawRow, st Stamp) Result {
	res := Result{Rows: make([]Row, 0, len(raws))}
	for _, raw := range raws {
		row, err := s.Apply(raw)
		if err != nil {
			res.Skipped++
			continue
		}
		st.Apply(row)
		res.Rows = append(res.Rows, row)
	}
	return res
}

func coerce(k Kind, v any) any {
	switch k {
	case KindInt:
		return Int(v)
	case KindFloat:
		return Float(v)
	case KindDate:
		if v == nil {
			return ""
		}
		return Date(v)
	case KindTimestamp:
		if v == nil {
			return ""
		}
		return Timestamp(v)
	case KindRaw:
		return v
	default:
		return Label(String(v))
	}
}

func emptyKey(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}

// Stamp carries the load metadata shared by every row of one run
type Stamp struct {
	ClientID string
	LoadedAt time.Time
}

// Metadata column names
const (
	ColClientID = "_client_id"
	ColLoadedAt = "_loaded_at"
)

// NewStamp captures now once for the run
func NewStamp(clientID string, now func() time.Time) Stamp {
	if now == nil {
		now = time.Now
	}
	return Stamp{ClientID: clientID, LoadedAt: now().UTC()}
}

// Apply writes the metadata columns onto row
func (s Stamp) Apply(row Row) {
	row[ColClientID] = s.ClientID
	row[ColLoadedAt] = s.LoadedAt.Format(TimestampLayout)
}

// Max returns the greatest non-empty string value of field across rows.
// Values of one field share a Kind so lexical order matches time order
func Max(rows []Row, field string) string {
	best := ""
	for _, r := range rows {
		if s, ok := r[field].(string); ok && s > best {
			best = s
		}
	}
	return best
}
