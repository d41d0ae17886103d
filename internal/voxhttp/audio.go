package voxhttp

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	repos "github.com/voxpipe/voxpipe/internal/data/repos/pipeline"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
)

// AudioHandler serves GET /audio/{id}, streaming the original blob with
// Range support. http.ServeContent already implements Accept-Ranges/206
// correctly for an io.ReadSeeker — no pack library does partial-content
// streaming better than the standard library's own primitive for it.
type AudioHandler struct {
	files repos.FileRepo
}

func NewAudioHandler(files repos.FileRepo) *AudioHandler {
	return &AudioHandler{files: files}
}

func (h *AudioHandler) Stream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}
	f, err := h.files.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil || f.AudioPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "audio not found"})
		return
	}

	file, err := os.Open(f.AudioPath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audio not found on disk"})
		return
	}
	defer file.Close()

	modTime := time.Time{}
	if info, err := file.Stat(); err == nil {
		modTime = info.ModTime()
	}
	http.ServeContent(c.Writer, c.Request, f.OriginalName, modTime, file)
}
