// Package stream turns status-cache reads into a client-visible SSE
// event sequence: one "open", zero or more "progress", then exactly one
// "complete" or "error".
package stream

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caseforge/docstream/internal/config"
	"github.com/caseforge/docstream/internal/dto"
	"github.com/caseforge/docstream/internal/statuscache"
)

// Gateway owns the per-connection poll loop. Connections are independent
// readers: none of them can mutate a snapshot, and a disconnect cancels
// only that connection's polling, never the underlying job.
type Gateway struct {
	store             statuscache.Store
	pollInterval      time.Duration
	heartbeatInterval time.Duration
	graceDelay        time.Duration
	logger            *slog.Logger
}

func NewGateway(store statuscache.Store, poll, heartbeat, grace time.Duration, logger *slog.Logger) *Gateway {
	return &Gateway{
		store:             store,
		pollInterval:      poll,
		heartbeatInterval: heartbeat,
		graceDelay:        grace,
		logger:            logger,
	}
}

// Handle serves one streaming connection for (namespace, jobId).
func (g *Gateway) Handle(c *gin.Context) {
	namespace := c.Param("namespace")
	jobID := c.Param("id")

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	ctx := c.Request.Context()

	snap, err := g.store.Get(ctx, namespace, jobID)
	if err != nil {
		g.logger.Warn("status read failed on connect", slog.String("error", err.Error()))
		snap = nil
	}

	// No record means the job finished and expired before the client
	// connected. Emit one terminal event so the client never hangs.
	if snap == nil {
		g.emit(c, "complete", dto.StreamEvent{
			JobID:    jobID,
			Status:   config.SnapshotSuccess,
			Progress: 100,
			Message:  "no active job",
		})
		return
	}

	g.emit(c, "open", eventFor(snap))

	poll := time.NewTicker(g.pollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(g.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			// Content-free marker to keep intermediaries from closing
			// the transport.
			c.Writer.Write([]byte(": hb\n\n"))
			c.Writer.Flush()

		case <-poll.C:
			snap, err := g.store.Get(ctx, namespace, jobID)
			if err != nil {
				g.logger.Warn("status read failed", slog.String("error", err.Error()))
				continue
			}
			if snap == nil {
				g.emit(c, "complete", dto.StreamEvent{
					JobID:    jobID,
					Status:   config.SnapshotSuccess,
					Progress: 100,
					Message:  "finished",
				})
				g.linger(c)
				return
			}

			switch snap.Status {
			case config.SnapshotSuccess:
				g.emit(c, "complete", eventFor(snap))
				g.finish(c, namespace, jobID)
				return
			case config.SnapshotFailed:
				g.emit(c, "error", eventFor(snap))
				g.finish(c, namespace, jobID)
				return
			default:
				g.emit(c, "progress", eventFor(snap))
			}
		}
	}
}

func (g *Gateway) emit(c *gin.Context, event string, payload dto.StreamEvent) {
	c.SSEvent(event, payload)
	c.Writer.Flush()
}

// finish removes the snapshot once its terminal event has been relayed,
// then lingers briefly so slow clients receive the final frame.
func (g *Gateway) finish(c *gin.Context, namespace, jobID string) {
	if err := g.store.Delete(c.Request.Context(), namespace, jobID); err != nil {
		g.logger.Warn("snapshot delete failed", slog.String("error", err.Error()))
	}
	g.linger(c)
}

func (g *Gateway) linger(c *gin.Context) {
	select {
	case <-c.Request.Context().Done():
	case <-time.After(g.graceDelay):
	}
}

func eventFor(snap *statuscache.Snapshot) dto.StreamEvent {
	return dto.StreamEvent{
		JobID:    snap.JobID,
		Status:   snap.Status,
		Phase:    snap.Phase,
		Progress: snap.Progress,
		Message:  snap.Message,
		Error:    snap.Error,
		Result:   snap.Result,
	}
}
