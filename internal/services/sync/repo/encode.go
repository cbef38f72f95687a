package repo

import (
	"encoding/json"

	"signalroom/internal/adapters/sources"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/services/sync/domain"
)

// encoded is a batch reduced to unique keys: the last copy of a key wins for
// merge and replace, the first for append
type encoded struct {
	keys []string
	docs []string
}

func encode(b domain.Batch) (encoded, error) {
	idx := make(map[string]int, len(b.Rows))
	var e encoded
	for _, row := range b.Rows {
		k := domain.RowKey(row, b.Key)
		doc, err := json.Marshal(row)
		if err != nil {
			return encoded{}, perr.Wrapf(err, perr.ErrorCodeJSON, "encode %s.%s row %s", b.Source, b.Resource, k)
		}
		if i, seen := idx[k]; seen {
			if b.Disposition != sources.Append {
				e.docs[i] = string(doc)
			}
			continue
		}
		idx[k] = len(e.keys)
		e.keys = append(e.keys, k)
		e.docs = append(e.docs, string(doc))
	}
	return e, nil
}
