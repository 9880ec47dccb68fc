// Package docgen is the multi-phase document generation task: validate,
// map fields, fill a template, finalize, persist, and best-effort upload.
package docgen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
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

// Generator executes generate_document jobs. Each phase boundary is
// published through the worker's publisher; the upload phase is
// best-effort and never fails the job.
type Generator struct {
	templates   TemplateSource
	fillers     map[string]Filler
	defaultFill Filler
	objects     collab.ObjectStore
	notifier    collab.Notifier
	artifactDir string
	weights     PhaseWeights
	logger      *slog.Logger
}

func NewGenerator(
	templates TemplateSource,
	objects collab.ObjectStore,
	notifier collab.Notifier,
	artifactDir string,
	weights PhaseWeights,
	logger *slog.Logger,
) *Generator {
	return &Generator{
		templates:   templates,
		fillers:     make(map[string]Filler),
		defaultFill: NewDirectFiller(logger),
		objects:     objects,
		notifier:    notifier,
		artifactDir: artifactDir,
		weights:     weights,
		logger:      logger,
	}
}

// RegisterFiller selects a filling strategy for a document type. Types
// without a registration use the direct filler.
func (g *Generator) RegisterFiller(documentType string, f Filler) {
	g.fillers[documentType] = f
}

func (g *Generator) Type() string { return "generate_document" }

func (g *Generator) Namespace() string { return config.NamespaceDocgen }

// Execute runs the phase sequence. The returned result is persisted by
// the worker, which also publishes the terminal snapshot.
func (g *Generator) Execute(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
	pub.Phase(ctx, "validate", 0, "validating input")
	payload, err := g.parsePayload(job)
	if err != nil {
		return nil, err
	}

	pub.Phase(ctx, "map-fields", g.weights.MapFields, "mapping fields")
	fields := mapFields(payload.Fields)

	pub.Phase(ctx, "load-template", g.weights.LoadTemplate, fmt.Sprintf("loading template %s", payload.TemplateID))
	template, err := g.templates.Load(ctx, payload.TemplateID)
	if err != nil {
		return nil, err
	}

	pub.Phase(ctx, "parse", g.weights.Parse, "parsing template")
	placeholders := placeholderPattern.FindAll(template, -1)
	g.logger.Debug("template parsed",
		slog.String("job_id", job.ID),
		slog.Int("placeholders", len(placeholders)),
	)

	pub.Phase(ctx, "fill-fields", g.weights.FillFields, "filling fields")
	filler := g.fillerFor(payload.DocumentType)
	filled, fillResult, err := filler.Fill(ctx, template, fields)
	if err != nil {
		return nil, fmt.Errorf("fill with %s strategy: %w", filler.Name(), err)
	}
	if fillResult.Failed > 0 {
		g.logger.Warn("some fields could not be filled",
			slog.String("job_id", job.ID),
			slog.Int("failed", fillResult.Failed),
		)
	}

	pub.Phase(ctx, "finalize", g.weights.Finalize, "finalizing document")
	// The buffer is final from here on; persist writes it read-only so
	// the artifact cannot be edited in place.
	document := filled

	pub.Phase(ctx, "persist", g.weights.Persist, "writing artifact")
	path, err := g.persist(payload.CaseID, job.ID, document)
	if err != nil {
		return nil, err
	}

	result := dto.GenerateDocumentResult{
		DocumentPath: path,
		SizeBytes:    len(document),
		Fill: dto.FillResultDTO{
			Filled:  fillResult.Filled,
			Failed:  fillResult.Failed,
			Skipped: fillResult.Skipped,
		},
	}

	pub.Phase(ctx, "upload", g.weights.Upload, "uploading backup")
	g.upload(ctx, job.ID, path, document, &result)

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	g.notify(job, payload, out)
	return out, nil
}

// notify tells the payload's recipient the document is ready. It runs in
// the background and never blocks or fails the job.
func (g *Generator) notify(job *models.Job, payload *dto.GenerateDocumentPayload, result json.RawMessage) {
	if g.notifier == nil || payload.Recipient == "" {
		return
	}

	outcome := collab.Outcome{
		JobID:   job.ID,
		Type:    job.Type,
		CaseID:  payload.CaseID,
		Status:  config.SnapshotSuccess,
		Summary: result,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := g.notifier.Notify(ctx, payload.Recipient, outcome); err != nil {
			degraded := &queue.DegradedError{Op: "notify", Err: err}
			g.logger.Warn("notification failed",
				slog.String("job_id", job.ID),
				slog.String("error", degraded.Error()),
			)
		}
	}()
}

func (g *Generator) parsePayload(job *models.Job) (*dto.GenerateDocumentPayload, error) {
	var payload dto.GenerateDocumentPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, queue.Validationf("malformed document payload: %v", err)
	}
	if err := validate.Struct(payload); err != nil {
		return nil, queue.Validationf("missing required document inputs: %v", err)
	}
	return &payload, nil
}

func (g *Generator) fillerFor(documentType string) Filler {
	if f, ok := g.fillers[documentType]; ok {
		return f
	}
	return g.defaultFill
}

// persist writes the finalized artifact with read-only permissions.
func (g *Generator) persist(caseID, jobID string, document []byte) (string, error) {
	dir := filepath.Join(g.artifactDir, caseID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	path := filepath.Join(dir, jobID+".doc")
	if err := os.WriteFile(path, document, 0o444); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// upload is a backup step: a failure is logged and leaves the upload
// fields of the result empty, but the job still succeeds.
func (g *Generator) upload(ctx context.Context, jobID, path string, document []byte, result *dto.GenerateDocumentResult) {
	if g.objects == nil {
		return
	}

	stored, err := g.objects.Upload(ctx, filepath.Base(path), document)
	if err != nil {
		degraded := &queue.DegradedError{Op: "upload", Err: err}
		g.logger.Warn("artifact backup failed",
			slog.String("job_id", jobID),
			slog.String("error", degraded.Error()),
		)
		result.UploadError = err.Error()
		return
	}

	result.StoredPath = stored.StoredPath
	result.SharedLink = stored.SharedLink
}

// mapFields normalizes the declarative field map. Empty values stay so
// the filler can count them as skipped.
func mapFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for name, value := range in {
		if name == "" {
			continue
		}
		out[name] = value
	}
	return out
}
