package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/finflow/finqueue/internal/domain"
)

// ProgressFunc reports advisory completion percentage from inside a handler.
// It never blocks queue correctness; failures are logged and dropped.
type ProgressFunc func(percent int)

// HandlerFunc executes one job. The returned value is marshalled to JSON and
// stored as the job result. Returning an error wrapped by domain.Permanent
// dead-letters the job immediately; any other error schedules a retry.
type HandlerFunc func(ctx context.Context, job *domain.Job, report ProgressFunc) (any, error)

// Definition binds a job type to its queue, its payload validator, and its
// handler. Payloads form a closed set of typed variants: anything that fails
// Validate is rejected at the enqueue boundary and never enters the queue.
type Definition struct {
	Type     string
	Queue    string
	Validate func(payload json.RawMessage) error
	Handle   HandlerFunc
}

// Registry is the single source of truth for which job types exist. The
// enqueue boundary consults it for validation; worker slots consult it for
// dispatch.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

func (r *Registry) Register(def Definition) error {
	if def.Type == "" || def.Queue == "" || def.Handle == nil {
		return fmt.Errorf("incomplete definition for job type %q", def.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Type]; exists {
		return fmt.Errorf("job type %q registered twice", def.Type)
	}
	r.defs[def.Type] = def
	return nil
}

// MustRegister panics on a duplicate or incomplete definition. Registration
// happens once at startup, so a failure is a programming error.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(jobType string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[jobType]
	return def, ok
}
