package voxhttp

import (
	"net/http"
	"syscall"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/voxpipe/voxpipe/internal/queue"
)

// HealthHandler serves GET /health: Store connectivity, disk free space,
// and queue depth (spec.md §6).
type HealthHandler struct {
	db         *gorm.DB
	q          *queue.Queue
	diskPath   string
}

func NewHealthHandler(db *gorm.DB, q *queue.Queue, diskPath string) *HealthHandler {
	if diskPath == "" {
		diskPath = "."
	}
	return &HealthHandler{db: db, q: q, diskPath: diskPath}
}

func (h *HealthHandler) Health(c *gin.Context) {
	storeOK := true
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		storeOK = false
	}

	var stat syscall.Statfs_t
	var free int64
	if err := syscall.Statfs(h.diskPath, &stat); err == nil {
		free = int64(stat.Bavail) * int64(stat.Bsize)
	}

	resp := healthResponse{
		Status:        "ok",
		StoreOK:       storeOK,
		DiskFreeBytes: free,
		QueueLength:   h.q.QueueLength(),
	}
	if !storeOK {
		resp.Status = "degraded"
	}
	if id := h.q.CurrentFileID(); id != nil {
		resp.CurrentFileID = id.String()
	}

	status := http.StatusOK
	if !storeOK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
