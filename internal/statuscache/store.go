// Package statuscache holds per-job progress snapshots behind a store
// abstraction so the backing can be swapped (in-memory map, external
// cache) without touching publishers or readers.
package statuscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/caseforge/docstream/internal/config"
)

// Snapshot is the latest cached progress for one job. It is the single
// source of truth for streaming clients: a reconnecting client must be
// able to reconstruct full state from it alone.
type Snapshot struct {
	Namespace  string          `json:"namespace"`
	JobID      string          `json:"job_id"`
	Status     string          `json:"status"`
	Phase      string          `json:"phase"`
	Progress   int             `json:"progress"`
	Message    string          `json:"message"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`
	ExpiresAt  time.Time       `json:"-"`
}

// Terminal reports whether the snapshot status is success or failed.
func (s *Snapshot) Terminal() bool {
	return s.Status == config.SnapshotSuccess || s.Status == config.SnapshotFailed
}

// Update carries the fields of a partial snapshot write. Nil Progress
// leaves the current value alone; a lower value is ignored so observed
// progress never decreases.
type Update struct {
	Status   string
	Phase    string
	Progress *int
	Message  string
	Error    string
	Result   json.RawMessage
}

// Store is the snapshot store contract. Get must treat an expired entry
// as absent; Sweep deletes expired entries across all namespaces and
// returns how many it removed.
type Store interface {
	Update(ctx context.Context, namespace, jobID string, u Update) (*Snapshot, error)
	Get(ctx context.Context, namespace, jobID string) (*Snapshot, error)
	Delete(ctx context.Context, namespace, jobID string) error
	Sweep(ctx context.Context) (int, error)
}

// Pct is a convenience for building Update.Progress values.
func Pct(v int) *int {
	return &v
}
