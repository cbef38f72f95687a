package durable

import (
	"slices"
	"sync"
	"time"
)

// Attempt is one run of the activity
type Attempt struct {
	N        int       `json:"n"`
	Started  time.Time `json:"started_at"`
	Finished time.Time `json:"finished_at,omitzero"`
	Code     string    `json:"code,omitempty"`
	Error    string    `json:"error,omitempty"`
	// Backoff is the wait scheduled after this attempt
	Backoff time.Duration `json:"backoff,omitempty"`
}

// Execution is the tracked state of one workflow run
type Execution struct {
	ID       string    `json:"workflow_id"`
	RunID    string    `json:"run_id"`
	Workflow string    `json:"workflow"`
	State    State     `json:"state"`
	Attempts []Attempt `json:"attempts"`
	Result   any       `json:"result,omitempty"`
	Code     string    `json:"code,omitempty"`
	Error    string    `json:"error,omitempty"`
	Created  time.Time `json:"created_at"`
	Finished time.Time `json:"finished_at,omitzero"`

	err  error
	done chan struct{}
}

// Err returns the final error of a failed execution
func (e Execution) Err() error { return e.err }

// settled is true once the run is final and its waiters were released.
// A final run may still be inside its Finally hook
func (e *Execution) settled() bool {
	if !e.State.Final() {
		return false
	}
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

func (e *Execution) snapshot() Execution {
	c := *e
	c.Attempts = slices.Clone(e.Attempts)
	c.done = nil
	return c
}

// Registry keeps executions in process memory for status queries. The
// latest run per workflow id is kept plus a bounded history
type Registry struct {
	mu     sync.RWMutex
	byRun  map[string]*Execution
	latest map[string]string
	order  []string
	limit  int
}

// NewRegistry keeps at most limit finished executions; <=0 means 500
func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = 500
	}
	return &Registry{byRun: map[string]*Execution{}, latest: map[string]string{}, limit: limit}
}

func (r *Registry) put(e *Execution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRun[e.RunID] = e
	r.latest[e.ID] = e.RunID
	r.order = append(r.order, e.RunID)
	r.evict()
}

// evict drops the oldest settled runs beyond the limit
func (r *Registry) evict() {
	for len(r.order) > r.limit {
		var victim = -1
		for i, id := range r.order {
			if e := r.byRun[id]; e == nil || e.settled() {
				victim = i
				break
			}
		}
		if victim < 0 {
			return
		}
		id := r.order[victim]
		r.order = slices.Delete(r.order, victim, victim+1)
		if e := r.byRun[id]; e != nil && r.latest[e.ID] == id {
			delete(r.latest, e.ID)
		}
		delete(r.byRun, id)
	}
}

func (r *Registry) update(runID string, fn func(*Execution)) Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.byRun[runID]
	if e == nil {
		return Execution{RunID: runID}
	}
	fn(e)
	return e.snapshot()
}

// Get returns the latest execution of workflow id, or the run with that run id
func (r *Registry) Get(id string) (Execution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if runID, ok := r.latest[id]; ok {
		id = runID
	}
	e, ok := r.byRun[id]
	if !ok {
		return Execution{}, false
	}
	return e.snapshot(), true
}

// List returns executions newest first
func (r *Registry) List() []Execution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Execution, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		if e, ok := r.byRun[r.order[i]]; ok {
			out = append(out, e.snapshot())
		}
	}
	return out
}

func (r *Registry) doneChan(id string) (chan struct{}, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if runID, ok := r.latest[id]; ok {
		id = runID
	}
	e, ok := r.byRun[id]
	if !ok {
		return nil, "", false
	}
	return e.done, e.RunID, true
}
