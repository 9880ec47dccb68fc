package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/caseforge/docstream/internal/models"
	"github.com/caseforge/docstream/internal/progress"
)

// Composite chains handlers so one job can run a sequence of tasks, e.g.
// generate a document and then push it through normalization. Steps run
// in order; the first error aborts the chain and is handled by the
// queue's normal retry policy.
type Composite struct {
	typeName string
	steps    []Handler
}

var _ Handler = (*Composite)(nil)

func NewComposite(typeName string, steps ...Handler) *Composite {
	return &Composite{typeName: typeName, steps: steps}
}

func (c *Composite) Type() string { return c.typeName }

// Namespace delegates to the first step, which owns the job's primary
// progress stream.
func (c *Composite) Namespace() string {
	if len(c.steps) == 0 {
		return ""
	}
	return c.steps[0].Namespace()
}

// Execute runs every step against the same publisher, so a composite
// job's progress stays in one namespace from the client's point of view.
func (c *Composite) Execute(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
	results := make(map[string]json.RawMessage, len(c.steps))

	for _, step := range c.steps {
		out, err := step.Execute(ctx, job, pub)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.Type(), err)
		}
		results[step.Type()] = out
	}

	merged, err := json.Marshal(map[string]any{"steps": results})
	if err != nil {
		return nil, fmt.Errorf("marshal composite result: %w", err)
	}
	return merged, nil
}
