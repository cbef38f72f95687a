package repo

import (
	"context"
	"maps"
	"sync"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/core/normalize"
	"signalroom/internal/services/sync/domain"
)

// Memory is an in-process destination for dry runs and tests. It records
// every batch it was handed
type Memory struct {
	mu     sync.Mutex
	tables map[string]map[string]normalize.Row
	calls  []domain.Batch
	// Fail, when set, is returned by Write before anything is stored
	Fail error
}

// NewMemory returns an empty destination
func NewMemory() *Memory { return &Memory{tables: map[string]map[string]normalize.Row{}} }

// Write satisfies domain.Destination
func (m *Memory) Write(_ context.Context, b domain.Batch) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, b)
	if m.Fail != nil {
		return 0, m.Fail
	}

	name := table(b.Source, b.Resource)
	t := m.tables[name]
	if t == nil || b.Disposition == sources.Replace {
		t = map[string]normalize.Row{}
		m.tables[name] = t
	}
	n := 0
	for _, row := range b.Rows {
		k := domain.RowKey(row, b.Key)
		if _, exists := t[k]; exists && b.Disposition == sources.Append {
			continue
		}
		t[k] = maps.Clone(row)
		n++
	}
	if b.Disposition != sources.Append {
		n = len(b.Rows)
	}
	return n, nil
}

// Rows returns a copy of a table keyed by row key
func (m *Memory) Rows(source domain.SourceName, resource string) map[string]normalize.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]normalize.Row, len(m.tables[table(source, resource)]))
	for k, v := range m.tables[table(source, resource)] {
		out[k] = maps.Clone(v)
	}
	return out
}

// Calls returns the batches handed to Write, in order
func (m *Memory) Calls() []domain.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Batch(nil), m.calls...)
}

func table(source domain.SourceName, resource string) string {
	return string(source) + "." + resource
}
