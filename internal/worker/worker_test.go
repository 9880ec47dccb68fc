package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/caseforge/docstream/internal/config"
	"github.com/caseforge/docstream/internal/mocks"
	"github.com/caseforge/docstream/internal/models"
	"github.com/caseforge/docstream/internal/progress"
	"github.com/caseforge/docstream/internal/queue"
	"github.com/caseforge/docstream/internal/statuscache"
	"github.com/caseforge/docstream/internal/worker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubHandler is a scriptable worker.Handler for driving Process.
type stubHandler struct {
	jobType   string
	namespace string
	execute   func(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error)
}

func (s *stubHandler) Type() string      { return s.jobType }
func (s *stubHandler) Namespace() string { return s.namespace }
func (s *stubHandler) Execute(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
	return s.execute(ctx, job, pub)
}

func newWorker(repo queue.JobRepoInterface, registry *worker.Registry, store statuscache.Store) *worker.Worker {
	return worker.New("worker-test", repo, registry, store, time.Minute, testLogger())
}

func testJob(attempts int) *models.Job {
	return &models.Job{
		ID:          "job-1",
		Type:        "generate_document",
		Status:      models.StatusActive,
		Attempts:    attempts,
		RetryLimit:  3,
		RetryBaseMS: 2000,
	}
}

func registryWith(h worker.Handler) *worker.Registry {
	r := worker.NewRegistry()
	r.Register(h)
	return r
}

func TestWorker_Process_Success(t *testing.T) {
	result := json.RawMessage(`{"document_path":"/artifacts/c-1/job-1.doc"}`)
	handler := &stubHandler{
		jobType:   "generate_document",
		namespace: config.NamespaceDocgen,
		execute: func(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
			return result, nil
		},
	}

	repo := new(mocks.JobRepoMock)
	repo.On("MarkCompleted", mock.Anything, "job-1", mock.Anything).Return(nil)

	store := statuscache.NewMemory(time.Minute)
	w := newWorker(repo, registryWith(handler), store)
	w.Process(context.Background(), testJob(0))

	repo.AssertExpectations(t)

	snap, err := store.Get(context.Background(), config.NamespaceDocgen, "job-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, config.SnapshotSuccess, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.JSONEq(t, string(result), string(snap.Result))
}

func TestWorker_Process_TransientFailureSchedulesRetry(t *testing.T) {
	handler := &stubHandler{
		jobType:   "generate_document",
		namespace: config.NamespaceDocgen,
		execute: func(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
			return nil, errors.New("normalizer unreachable")
		},
	}

	repo := new(mocks.JobRepoMock)
	repo.On("RetryLater", mock.Anything, "job-1", 1, mock.MatchedBy(func(next time.Time) bool {
		// First retry lands roughly base (2s) out.
		d := time.Until(next)
		return d > time.Second && d < 3*time.Second
	}), "normalizer unreachable").Return(nil)

	store := statuscache.NewMemory(time.Minute)
	w := newWorker(repo, registryWith(handler), store)
	w.Process(context.Background(), testJob(0))

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)

	// Retries never publish a terminal snapshot.
	snap, err := store.Get(context.Background(), config.NamespaceDocgen, "job-1")
	require.NoError(t, err)
	if snap != nil {
		assert.False(t, snap.Terminal())
	}
}

func TestWorker_Process_ExhaustedRetriesFails(t *testing.T) {
	handler := &stubHandler{
		jobType:   "generate_document",
		namespace: config.NamespaceDocgen,
		execute: func(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
			return nil, errors.New("still broken")
		},
	}

	repo := new(mocks.JobRepoMock)
	repo.On("MarkFailed", mock.Anything, "job-1", "still broken").Return(nil)

	store := statuscache.NewMemory(time.Minute)
	w := newWorker(repo, registryWith(handler), store)

	// Three retries already recorded; the fourth failure is terminal.
	w.Process(context.Background(), testJob(3))

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "RetryLater", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	snap, err := store.Get(context.Background(), config.NamespaceDocgen, "job-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, config.SnapshotFailed, snap.Status)
	assert.Equal(t, "still broken", snap.Error)
}

func TestWorker_Process_ValidationErrorSkipsRetries(t *testing.T) {
	handler := &stubHandler{
		jobType:   "generate_document",
		namespace: config.NamespaceDocgen,
		execute: func(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
			return nil, queue.Validationf("case_id is required")
		},
	}

	repo := new(mocks.JobRepoMock)
	repo.On("MarkFailed", mock.Anything, "job-1", "case_id is required").Return(nil)

	store := statuscache.NewMemory(time.Minute)
	w := newWorker(repo, registryWith(handler), store)
	w.Process(context.Background(), testJob(0))

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "RetryLater", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	snap, err := store.Get(context.Background(), config.NamespaceDocgen, "job-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "case_id is required", snap.Error, "validation message reaches the client verbatim")
}

func TestWorker_Process_PanicIsRecoveredAndRetried(t *testing.T) {
	handler := &stubHandler{
		jobType:   "generate_document",
		namespace: config.NamespaceDocgen,
		execute: func(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
			panic("nil map write")
		},
	}

	repo := new(mocks.JobRepoMock)
	repo.On("RetryLater", mock.Anything, "job-1", 1, mock.Anything, mock.MatchedBy(func(msg string) bool {
		return msg == "handler panic: nil map write"
	})).Return(nil)

	w := newWorker(repo, registryWith(handler), statuscache.NewMemory(time.Minute))

	assert.NotPanics(t, func() {
		w.Process(context.Background(), testJob(0))
	})
	repo.AssertExpectations(t)
}

func TestWorker_Process_UnknownTypeFailsWithoutRetry(t *testing.T) {
	repo := new(mocks.JobRepoMock)
	repo.On("MarkFailed", mock.Anything, "job-1", mock.MatchedBy(func(msg string) bool {
		return msg == `no handler for type "generate_document"`
	})).Return(nil)

	w := newWorker(repo, worker.NewRegistry(), statuscache.NewMemory(time.Minute))
	w.Process(context.Background(), testJob(0))

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "RetryLater", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWorker_Process_AttemptNumbersAccumulate(t *testing.T) {
	handler := &stubHandler{
		jobType:   "generate_document",
		namespace: config.NamespaceDocgen,
		execute: func(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
			return nil, errors.New("transient")
		},
	}

	repo := new(mocks.JobRepoMock)
	repo.On("RetryLater", mock.Anything, "job-1", 3, mock.Anything, "transient").Return(nil)

	w := newWorker(repo, registryWith(handler), statuscache.NewMemory(time.Minute))
	w.Process(context.Background(), testJob(2))

	repo.AssertExpectations(t)
}

func TestRegistry(t *testing.T) {
	r := worker.NewRegistry()
	h := &stubHandler{jobType: "generate_document", namespace: config.NamespaceDocgen}
	r.Register(h)

	got, ok := r.Resolve("generate_document")
	assert.True(t, ok)
	assert.Same(t, h, got)

	_, ok = r.Resolve("unknown")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"generate_document"}, r.Types())
}

func TestComposite_RunsStepsInOrder(t *testing.T) {
	var order []string

	first := &stubHandler{
		jobType:   "generate_document",
		namespace: config.NamespaceDocgen,
		execute: func(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
			order = append(order, "generate_document")
			return json.RawMessage(`{"document_path":"/a/b.doc"}`), nil
		},
	}
	second := &stubHandler{
		jobType:   "normalize_case",
		namespace: config.NamespacePipeline,
		execute: func(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
			order = append(order, "normalize_case")
			return json.RawMessage(`{"case_id":"c-1"}`), nil
		},
	}

	c := worker.NewComposite("generate_and_normalize", first, second)
	assert.Equal(t, "generate_and_normalize", c.Type())
	assert.Equal(t, config.NamespaceDocgen, c.Namespace(), "namespace follows the first step")

	store := statuscache.NewMemory(time.Minute)
	pub := progress.NewPublisher(store, c.Namespace(), "job-1", testLogger())
	out, err := c.Execute(context.Background(), testJob(0), pub)
	require.NoError(t, err)
	assert.Equal(t, []string{"generate_document", "normalize_case"}, order)

	var merged struct {
		Steps map[string]json.RawMessage `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(out, &merged))
	assert.Contains(t, merged.Steps, "generate_document")
	assert.Contains(t, merged.Steps, "normalize_case")
}

func TestComposite_FirstErrorAborts(t *testing.T) {
	var secondRan bool

	first := &stubHandler{
		jobType:   "generate_document",
		namespace: config.NamespaceDocgen,
		execute: func(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
			return nil, errors.New("template missing")
		},
	}
	second := &stubHandler{
		jobType:   "normalize_case",
		namespace: config.NamespacePipeline,
		execute: func(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
			secondRan = true
			return nil, nil
		},
	}

	c := worker.NewComposite("generate_and_normalize", first, second)
	store := statuscache.NewMemory(time.Minute)
	pub := progress.NewPublisher(store, c.Namespace(), "job-1", testLogger())
	_, err := c.Execute(context.Background(), testJob(0), pub)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "step generate_document")
	assert.False(t, secondRan)
}

func TestComposite_StepsShareOneSnapshot(t *testing.T) {
	first := &stubHandler{
		jobType:   "generate_document",
		namespace: config.NamespaceDocgen,
		execute: func(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
			pub.Phase(ctx, "fill-fields", 20, "filling fields")
			return json.RawMessage(`{}`), nil
		},
	}
	second := &stubHandler{
		jobType:   "normalize_case",
		namespace: config.NamespacePipeline,
		execute: func(ctx context.Context, job *models.Job, pub *progress.Publisher) (json.RawMessage, error) {
			pub.Phase(ctx, "normalize", 65, "normalizing")
			return json.RawMessage(`{}`), nil
		},
	}

	c := worker.NewComposite("generate_and_normalize", first, second)
	store := statuscache.NewMemory(time.Minute)
	pub := progress.NewPublisher(store, c.Namespace(), "job-1", testLogger())

	job := testJob(0)
	job.Type = "generate_and_normalize"
	_, err := c.Execute(context.Background(), job, pub)
	require.NoError(t, err)

	// Both steps land on the composite's own namespace, so a client
	// streaming the job sees the normalization progress too.
	snap, err := store.Get(context.Background(), config.NamespaceDocgen, "job-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 65, snap.Progress)
	assert.Equal(t, "normalize", snap.Phase)

	stray, err := store.Get(context.Background(), config.NamespacePipeline, "job-1")
	require.NoError(t, err)
	assert.Nil(t, stray, "no orphan snapshot in another namespace")
}
