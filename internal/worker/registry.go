package worker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/caseforge/docstream/internal/models"
	"github.com/caseforge/docstream/internal/progress"
)

// Handler executes jobs of one type. Namespace names the status-cache
// partition the job's progress lives in; the worker builds one publisher
// for that partition and hands it to Execute, so every step of a job
// writes the same snapshot.
type Handler interface {
	Type() string
	Namespace() string
	Execute(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error)
}

// Registry maps job types to their handlers, replacing stringly-typed
// dispatch with a single registration point.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

func (r *Registry) Resolve(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
