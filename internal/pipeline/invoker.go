// Package pipeline drives the external normalization service: submit,
// poll its progress endpoint, and merge fractional completion into a
// bounded sub-window of the job's overall progress.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/caseforge/docstream/internal/collab"
	"github.com/caseforge/docstream/internal/config"
	"github.com/caseforge/docstream/internal/dto"
	"github.com/caseforge/docstream/internal/models"
	"github.com/caseforge/docstream/internal/progress"
	"github.com/caseforge/docstream/internal/queue"
)

var validate = validator.New()

// Window bounds the external pipeline's share of overall progress so it
// never overlaps phases owned by other parts of a job.
type Window struct {
	Start int
	End   int
}

// Invoker executes normalize_case jobs.
type Invoker struct {
	normalizer   collab.Normalizer
	notifier     collab.Notifier
	window       Window
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewInvoker(
	normalizer collab.Normalizer,
	notifier collab.Notifier,
	window Window,
	pollInterval time.Duration,
	logger *slog.Logger,
) *Invoker {
	return &Invoker{
		normalizer:   normalizer,
		notifier:     notifier,
		window:       window,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

func (i *Invoker) Type() string { return "normalize_case" }

func (i *Invoker) Namespace() string { return config.NamespacePipeline }

// Execute submits the case, relays the service's own progress into the
// configured window while awaiting completion, then fires the notifier
// asynchronously. The poll loop is cancelled on every exit path.
func (i *Invoker) Execute(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
	var payload dto.NormalizeCasePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, queue.Validationf("malformed pipeline payload: %v", err)
	}
	if err := validate.Struct(payload); err != nil {
		return nil, queue.Validationf("missing required pipeline inputs: %v", err)
	}

	pub.Phase(ctx, "submit", i.window.Start/2, "submitting to normalization service")
	ref, err := i.normalizer.Submit(ctx, payload.CaseID, payload.Submission)
	if err != nil {
		return nil, fmt.Errorf("submit case %s: %w", payload.CaseID, err)
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	go i.relayProgress(pollCtx, pub, ref)

	output, err := i.normalizer.Await(ctx, ref)
	stopPolling()

	if err != nil {
		if !payload.ContinueOnFailure {
			return nil, fmt.Errorf("normalization of case %s: %w", payload.CaseID, err)
		}

		i.logger.Warn("normalization failed, continuing",
			slog.String("job_id", job.ID),
			slog.String("case_id", payload.CaseID),
			slog.String("error", err.Error()),
		)
		return marshalResult(dto.NormalizeCaseResult{
			CaseID:    payload.CaseID,
			Continued: true,
			Error:     err.Error(),
		})
	}

	pub.Phase(ctx, "normalize", i.window.End, "normalization finished")
	i.notify(job, payload, output)

	return marshalResult(dto.NormalizeCaseResult{
		CaseID: payload.CaseID,
		Output: output,
	})
}

// relayProgress polls the service's progress endpoint and maps its
// fraction into the window. It exits when its context is cancelled.
func (i *Invoker) relayProgress(ctx context.Context, pub *progress.Publisher, ref string) {
	ticker := time.NewTicker(i.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prog, err := i.normalizer.Progress(ctx, ref)
			if err != nil {
				i.logger.Debug("progress poll failed", slog.String("error", err.Error()))
				continue
			}

			span := i.window.End - i.window.Start
			pct := i.window.Start + int(prog.Fraction()*float64(span))
			msg := "normalizing"
			if prog.CurrentItem != "" {
				msg = "normalizing " + prog.CurrentItem
			}
			pub.Phase(ctx, "normalize", pct, msg)
		}
	}
}

// notify fires the post-completion notification without blocking the
// job's terminal transition. Failures are logged only.
func (i *Invoker) notify(job *models.Job, payload dto.NormalizeCasePayload, output json.RawMessage) {
	if i.notifier == nil || payload.NotifyRecipient == "" {
		return
	}

	outcome := collab.Outcome{
		JobID:   job.ID,
		Type:    job.Type,
		CaseID:  payload.CaseID,
		Status:  config.SnapshotSuccess,
		Summary: output,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := i.notifier.Notify(ctx, payload.NotifyRecipient, outcome); err != nil {
			degraded := &queue.DegradedError{Op: "notify", Err: err}
			i.logger.Warn("notification failed",
				slog.String("job_id", job.ID),
				slog.String("error", degraded.Error()),
			)
		}
	}()
}

func marshalResult(r dto.NormalizeCaseResult) (json.RawMessage, error) {
	out, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return out, nil
}
