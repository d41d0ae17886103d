package voxhttp

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	repos "github.com/voxpipe/voxpipe/internal/data/repos/pipeline"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
)

// StatusHandler serves GET /status/{id}, the polling fallback for clients
// that don't hold a WS connection.
type StatusHandler struct {
	files repos.FileRepo
}

func NewStatusHandler(files repos.FileRepo) *StatusHandler {
	return &StatusHandler{files: files}
}

func (h *StatusHandler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}
	f, err := h.files.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.JSON(http.StatusOK, newStatusResponse(f))
}
