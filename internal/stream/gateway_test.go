package stream_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseforge/docstream/internal/config"
	"github.com/caseforge/docstream/internal/statuscache"
	"github.com/caseforge/docstream/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingStore counts reads so tests can prove polling stopped.
type countingStore struct {
	statuscache.Store
	gets atomic.Int64
}

func (s *countingStore) Get(ctx context.Context, namespace, jobID string) (*statuscache.Snapshot, error) {
	s.gets.Add(1)
	return s.Store.Get(ctx, namespace, jobID)
}

func newStreamRouter(g *stream.Gateway) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/stream/:namespace/:id", g.Handle)
	return router
}

// serve runs one streaming request until the handler returns or the test
// times out, then hands back the recorded body.
func serve(t *testing.T, router *gin.Engine, ctx context.Context, path string) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		router.ServeHTTP(w, req)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream handler did not return")
	}
	return w.Body.String()
}

func countEvents(body, event string) int {
	return strings.Count(body, "event:"+event)
}

func TestGateway_MissingSnapshotEmitsSingleComplete(t *testing.T) {
	store := statuscache.NewMemory(time.Minute)
	g := stream.NewGateway(store, 10*time.Millisecond, time.Minute, time.Millisecond, testLogger())

	body := serve(t, newStreamRouter(g), context.Background(), "/stream/docgen/expired-job")

	assert.Equal(t, 1, countEvents(body, "complete"), "exactly one terminal event")
	assert.Equal(t, 0, countEvents(body, "open"))
	assert.Equal(t, 0, countEvents(body, "progress"))
	assert.Contains(t, body, "no active job")
}

func TestGateway_StreamsProgressThenComplete(t *testing.T) {
	store := statuscache.NewMemory(time.Minute)
	ctx := context.Background()

	_, err := store.Update(ctx, "docgen", "job-1", statuscache.Update{
		Status:   config.SnapshotProcessing,
		Phase:    "fill-fields",
		Progress: statuscache.Pct(60),
	})
	require.NoError(t, err)

	g := stream.NewGateway(store, 10*time.Millisecond, time.Minute, time.Millisecond, testLogger())
	router := newStreamRouter(g)

	go func() {
		time.Sleep(60 * time.Millisecond)
		store.Update(ctx, "docgen", "job-1", statuscache.Update{
			Status:   config.SnapshotSuccess,
			Progress: statuscache.Pct(100),
			Result:   []byte(`{"document_path":"/artifacts/c-1/job-1.doc"}`),
		})
	}()

	body := serve(t, router, ctx, "/stream/docgen/job-1")

	assert.Equal(t, 1, countEvents(body, "open"))
	assert.GreaterOrEqual(t, countEvents(body, "progress"), 1)
	assert.Equal(t, 1, countEvents(body, "complete"))
	assert.Equal(t, 0, countEvents(body, "error"))
	assert.Contains(t, body, "document_path")

	snap, err := store.Get(ctx, "docgen", "job-1")
	require.NoError(t, err)
	assert.Nil(t, snap, "snapshot is removed after its terminal event is relayed")
}

func TestGateway_FailureEmitsErrorEvent(t *testing.T) {
	store := statuscache.NewMemory(time.Minute)
	ctx := context.Background()

	_, err := store.Update(ctx, "docgen", "job-1", statuscache.Update{
		Status: config.SnapshotFailed,
		Error:  "template missing",
	})
	require.NoError(t, err)

	g := stream.NewGateway(store, 10*time.Millisecond, time.Minute, time.Millisecond, testLogger())

	body := serve(t, newStreamRouter(g), ctx, "/stream/docgen/job-1")

	assert.Equal(t, 1, countEvents(body, "open"))
	assert.Equal(t, 1, countEvents(body, "error"))
	assert.Equal(t, 0, countEvents(body, "complete"))
	assert.Contains(t, body, "template missing")
}

func TestGateway_SnapshotVanishingMidStreamCompletes(t *testing.T) {
	store := statuscache.NewMemory(time.Minute)
	ctx := context.Background()

	_, err := store.Update(ctx, "docgen", "job-1", statuscache.Update{
		Status:   config.SnapshotProcessing,
		Progress: statuscache.Pct(40),
	})
	require.NoError(t, err)

	g := stream.NewGateway(store, 10*time.Millisecond, time.Minute, time.Millisecond, testLogger())
	router := newStreamRouter(g)

	go func() {
		time.Sleep(40 * time.Millisecond)
		store.Delete(ctx, "docgen", "job-1")
	}()

	body := serve(t, router, ctx, "/stream/docgen/job-1")

	assert.Equal(t, 1, countEvents(body, "complete"))
	assert.Contains(t, body, "finished")
}

func TestGateway_DisconnectStopsPolling(t *testing.T) {
	memory := statuscache.NewMemory(time.Minute)
	ctx := context.Background()

	_, err := memory.Update(ctx, "docgen", "job-1", statuscache.Update{
		Status:   config.SnapshotProcessing,
		Progress: statuscache.Pct(20),
	})
	require.NoError(t, err)

	store := &countingStore{Store: memory}
	g := stream.NewGateway(store, 10*time.Millisecond, time.Minute, time.Millisecond, testLogger())
	router := newStreamRouter(g)

	reqCtx, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	serve(t, router, reqCtx, "/stream/docgen/job-1")

	after := store.gets.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, store.gets.Load(), "no reads after the client disconnects")

	// The job itself is untouched by the disconnect.
	snap, err := memory.Get(ctx, "docgen", "job-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, config.SnapshotProcessing, snap.Status)
}

func TestGateway_HeartbeatKeepsIdleStreamAlive(t *testing.T) {
	store := statuscache.NewMemory(time.Minute)
	ctx := context.Background()

	_, err := store.Update(ctx, "docgen", "job-1", statuscache.Update{
		Status:   config.SnapshotProcessing,
		Progress: statuscache.Pct(10),
	})
	require.NoError(t, err)

	// Polls are effectively disabled so only heartbeats fire.
	g := stream.NewGateway(store, time.Hour, 10*time.Millisecond, time.Millisecond, testLogger())
	router := newStreamRouter(g)

	reqCtx, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(60 * time.Millisecond)
		cancel()
	}()

	body := serve(t, router, reqCtx, "/stream/docgen/job-1")

	assert.Contains(t, body, ": hb", "idle streams carry heartbeat comments")
	assert.Equal(t, 0, countEvents(body, "progress"))
}

func TestGateway_ConcurrentReadersAreIndependent(t *testing.T) {
	store := statuscache.NewMemory(time.Minute)
	ctx := context.Background()

	_, err := store.Update(ctx, "docgen", "job-1", statuscache.Update{
		Status:   config.SnapshotProcessing,
		Progress: statuscache.Pct(30),
	})
	require.NoError(t, err)

	g := stream.NewGateway(store, 10*time.Millisecond, time.Minute, time.Millisecond, testLogger())
	router := newStreamRouter(g)

	// One reader drops early; the other must still see the terminal event.
	earlyCtx, cancelEarly := context.WithCancel(ctx)
	earlyDone := make(chan struct{})
	go func() {
		defer close(earlyDone)
		req := httptest.NewRequest(http.MethodGet, "/stream/docgen/job-1", nil).WithContext(earlyCtx)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}()

	time.Sleep(30 * time.Millisecond)
	cancelEarly()
	<-earlyDone

	go func() {
		time.Sleep(40 * time.Millisecond)
		store.Update(ctx, "docgen", "job-1", statuscache.Update{
			Status:   config.SnapshotSuccess,
			Progress: statuscache.Pct(100),
		})
	}()

	body := serve(t, router, ctx, "/stream/docgen/job-1")
	assert.Equal(t, 1, countEvents(body, "complete"))
}
