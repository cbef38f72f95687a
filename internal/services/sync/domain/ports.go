package domain

import (
	"context"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/core/cursor"
)

// Destination persists batches. Write returns the rows it accepted; a merge
// replaces rows whose key already exists, an append keeps the first copy
type Destination interface {
	Write(ctx context.Context, b Batch) (int, error)
}

// CursorStore persists watermarks
type CursorStore = cursor.Store

// Catalog opens a configured Source by name
type Catalog interface {
	Open(name SourceName, kwargs map[string]any) (sources.Source, error)
}

// CatalogFunc adapts a function to Catalog
type CatalogFunc func(name SourceName, kwargs map[string]any) (sources.Source, error)

// Open satisfies Catalog
func (f CatalogFunc) Open(name SourceName, kwargs map[string]any) (sources.Source, error) {
	return f(name, kwargs)
}

// RunnerPort is what orchestration needs from the sync service
type RunnerPort interface {
	Run(ctx context.Context, in Input) Result
	Plan(ctx context.Context, in Input) (Plan, error)
}
