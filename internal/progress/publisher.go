// Package progress is the write side of the status cache: task code calls
// a Publisher at each phase boundary and never touches the store directly.
package progress

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/caseforge/docstream/internal/config"
	"github.com/caseforge/docstream/internal/statuscache"
)

// Publisher writes snapshots for a single (namespace, jobID) pair. Cache
// write failures are logged and swallowed: progress reporting must never
// fail the task it reports on.
type Publisher struct {
	store  statuscache.Store
	ns     string
	jobID  string
	logger *slog.Logger
}

func NewPublisher(store statuscache.Store, namespace, jobID string, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:  store,
		ns:     namespace,
		jobID:  jobID,
		logger: logger.With(slog.String("namespace", namespace), slog.String("job_id", jobID)),
	}
}

// Queued records the initial snapshot before any work starts.
func (p *Publisher) Queued(ctx context.Context, message string) {
	p.write(ctx, statuscache.Update{
		Status:   config.SnapshotQueued,
		Progress: statuscache.Pct(0),
		Message:  message,
	})
}

// Phase records a phase transition with its progress weight.
func (p *Publisher) Phase(ctx context.Context, phase string, pct int, message string) {
	p.write(ctx, statuscache.Update{
		Status:   config.SnapshotProcessing,
		Phase:    phase,
		Progress: statuscache.Pct(pct),
		Message:  message,
	})
}

// Succeed records the terminal success snapshot with the final result.
func (p *Publisher) Succeed(ctx context.Context, result json.RawMessage, message string) {
	p.write(ctx, statuscache.Update{
		Status:   config.SnapshotSuccess,
		Phase:    "complete",
		Progress: statuscache.Pct(100),
		Message:  message,
		Result:   result,
	})
}

// Fail records the terminal failure snapshot. Progress is left where the
// task stopped.
func (p *Publisher) Fail(ctx context.Context, err error) {
	p.write(ctx, statuscache.Update{
		Status: config.SnapshotFailed,
		Error:  err.Error(),
	})
}

func (p *Publisher) write(ctx context.Context, u statuscache.Update) {
	if _, err := p.store.Update(ctx, p.ns, p.jobID, u); err != nil {
		p.logger.Warn("status snapshot write failed", slog.String("error", err.Error()))
	}
}
