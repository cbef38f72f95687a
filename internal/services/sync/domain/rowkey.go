package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"signalroom/internal/core/normalize"
)

// RowKey renders the idempotency key of row. With no key columns the row's
// content hash is used, so identical rows collapse
func RowKey(row normalize.Row, key []string) string {
	if len(key) == 0 {
		return contentHash(row)
	}
	parts := make([]string, len(key))
	for i, k := range key {
		parts[i] = keyPart(row[k])
	}
	return strings.Join(parts, "|")
}

func keyPart(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ReplaceAll(x, "|", `\|`)
	default:
		return fmt.Sprint(x)
	}
}

func contentHash(row normalize.Row) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		if k == normalize.ColLoadedAt {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		b, _ := json.Marshal(row[k])
		_, _ = fmt.Fprintf(h, "%s=%s;", k, b)
	}
	return hex.EncodeToString(h.Sum(nil))
}
