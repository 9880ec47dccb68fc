package queue

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caseforge/docstream/common"
	"github.com/caseforge/docstream/internal/dto"
	"github.com/caseforge/docstream/internal/statuscache"
	"github.com/caseforge/docstream/middleware"
)

// Handler exposes the queue over HTTP.
type Handler struct {
	service ServiceInterface
	store   statuscache.Store
}

func NewHandler(s ServiceInterface, store statuscache.Store) *Handler {
	return &Handler{service: s, store: store}
}

var _ HandlerInterface = (*Handler)(nil)

// Enqueue handles job submission. A dedup hit answers with the existing
// job's id.
func (h *Handler) Enqueue(c *gin.Context) {
	var req dto.EnqueueDTO

	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	jobID, err := h.service.Enqueue(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, dto.EnqueueResponseDTO{JobID: jobID})
}

// Get returns the current job record.
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, common.APIError{Message: "invalid ID"})
		return
	}

	resp, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Cancel cancels a job that has not been dispatched yet.
func (h *Handler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, common.APIError{Message: "invalid ID"})
		return
	}

	if err := h.service.Cancel(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Status answers a one-shot snapshot query from the status cache.
func (h *Handler) Status(c *gin.Context) {
	namespace := c.Param("namespace")
	id := c.Param("id")

	snap, err := h.store.Get(c.Request.Context(), namespace, id)
	if err != nil {
		c.Error(common.Errf(http.StatusInternalServerError, "failed to read status"))
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, common.APIError{Message: "no status for job"})
		return
	}

	c.JSON(http.StatusOK, snap)
}
