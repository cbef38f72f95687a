// Package repo stores schedules: an embedded default set, postgres and memory
package repo

import (
	"cmp"
	"context"
	_ "embed"
	"encoding/json"
	"slices"
	"sync"

	"signalroom/internal/modkit/repokit"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/store"
	"signalroom/internal/services/scheduler/domain"
)

//go:embed defaults.yaml
var defaultsYAML []byte

//go:embed migrations/001_sync_schedules.sql
var schemaSQL string

// Defaults returns the shipped schedule set
func Defaults() []domain.Schedule {
	s, err := domain.ParseBytes(defaultsYAML)
	if err != nil {
		panic("scheduler: embedded defaults: " + err.Error())
	}
	return s
}

// PG keeps schedules in sync_schedules as JSON definitions
type PG struct {
	tx repokit.TxRunner
}

// NewPG wraps tx
func NewPG(tx repokit.TxRunner) *PG { return &PG{tx: tx} }

// EnsureSchema creates sync_schedules
func (p *PG) EnsureSchema(ctx context.Context) error {
	_, err := p.tx.Exec(ctx, schemaSQL)
	return perr.WrapIf(err, perr.ErrorCodeDB, "schedule schema")
}

const (
	upsertSchedule = `
		INSERT INTO sync_schedules (id, definition, paused, updated_at)
		VALUES ($1, $2::jsonb, $3, now())
		ON CONFLICT (id) DO UPDATE SET definition = EXCLUDED.definition, paused = EXCLUDED.paused, updated_at = now()`
	listSchedules  = `SELECT definition::text FROM sync_schedules ORDER BY id`
	deleteSchedule = `DELETE FROM sync_schedules WHERE id = $1`
)

// List satisfies domain.Store
func (p *PG) List(ctx context.Context) ([]domain.Schedule, error) {
	out, err := store.Many(ctx, p.tx, func(r store.Row) (domain.Schedule, error) {
		var raw string
		var s domain.Schedule
		if err := r.Scan(&raw); err != nil {
			return s, err
		}
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return s, perr.Wrap(err, perr.ErrorCodeJSON, "schedule definition")
		}
		return s, nil
	}, listSchedules)
	if err != nil {
		return nil, perr.FromPostgresf(err, "list schedules")
	}
	return out, nil
}

// Apply satisfies domain.Store; the batch is one transaction
func (p *PG) Apply(ctx context.Context, ss ...domain.Schedule) error {
	for _, s := range ss {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	err := p.tx.Tx(ctx, func(q repokit.Queryer) error {
		for _, s := range ss {
			def, err := json.Marshal(s)
			if err != nil {
				return err
			}
			if _, err := q.Exec(ctx, upsertSchedule, s.ID, string(def), s.Paused); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return perr.FromPostgresf(err, "apply schedules")
	}
	return nil
}

// Delete satisfies domain.Store
func (p *PG) Delete(ctx context.Context, id string) error {
	tag, err := p.tx.Exec(ctx, deleteSchedule, id)
	if err != nil {
		return perr.FromPostgresf(err, "delete schedule %s", id)
	}
	if tag.RowsAffected() == 0 {
		return perr.WithField(perr.NotFoundf("schedule %q not stored", id), "id")
	}
	return nil
}

// Memory is an in-process domain.Store
type Memory struct {
	mu sync.Mutex
	m  map[string]domain.Schedule
}

// NewMemory builds an empty store
func NewMemory() *Memory { return &Memory{m: map[string]domain.Schedule{}} }

// List satisfies domain.Store
func (m *Memory) List(context.Context) ([]domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Schedule, 0, len(m.m))
	for _, s := range m.m {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b domain.Schedule) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// Apply satisfies domain.Store
func (m *Memory) Apply(_ context.Context, ss ...domain.Schedule) error {
	for _, s := range ss {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range ss {
		m.m[s.ID] = s
	}
	return nil
}

// Delete satisfies domain.Store
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.m[id]; !ok {
		return perr.WithField(perr.NotFoundf("schedule %q not stored", id), "id")
	}
	delete(m.m, id)
	return nil
}
