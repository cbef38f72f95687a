package httpx

import (
	"sort"

	"signalroom/internal/platform/logger"
)

// WrapperKeys are probed in order when a payload is an object
var WrapperKeys = []string{"rows", "items", "data", "results", "table"}

// ExtractList returns the row list of a decoded payload: the payload itself
// when it is a list, else the first wrapper key holding a list. When nothing
// matches the result is empty and the observed keys are logged.
// Non-object list elements are dropped
func ExtractList(name string, payload any) []map[string]any {
	switch p := payload.(type) {
	case []any:
		return Objects(p)
	case map[string]any:
		for _, k := range WrapperKeys {
			if l, ok := p[k].([]any); ok {
				return Objects(l)
			}
		}
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		logger.Named("source."+name).Warn().
			Strs("keys", keys).
			Msg("no row list in response envelope, treating as empty")
	case nil:
	default:
		logger.Named("source."+name).Warn().Msgf("unexpected response payload %T, treating as empty", payload)
	}
	return nil
}

// Objects keeps the object elements of l
func Objects(l []any) []map[string]any {
	out := make([]map[string]any, 0, len(l))
	for _, v := range l {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
