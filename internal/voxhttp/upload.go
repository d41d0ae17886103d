package voxhttp

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voxpipe/voxpipe/internal/ingestion"
)

// UploadHandler serves POST /upload.
type UploadHandler struct {
	facade     *ingestion.Facade
	uploadsDir string
	writeBlob  func(path string, content []byte) error
}

func NewUploadHandler(facade *ingestion.Facade, uploadsDir string, writeBlob func(path string, content []byte) error) *UploadHandler {
	return &UploadHandler{facade: facade, uploadsDir: uploadsDir, writeBlob: writeBlob}
}

func (h *UploadHandler) Upload(c *gin.Context) {
	operatorName := c.PostForm("operator_name")

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form: " + err.Error()})
		return
	}

	files := form.File["files"]
	blobs := make([]ingestion.Blob, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read upload: " + err.Error()})
			return
		}
		content := make([]byte, fh.Size)
		if _, err := io.ReadFull(f, content); err != nil {
			f.Close()
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read upload: " + err.Error()})
			return
		}
		f.Close()
		blobs = append(blobs, ingestion.Blob{Filename: fh.Filename, Content: content})
	}

	res, err := h.facade.Submit(c.Request.Context(), operatorName, blobs, h.writeBlob)
	if err != nil {
		switch e := err.(type) {
		case ingestion.ErrEmptyOperatorName:
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": e.Error()})
		case *ingestion.ErrBatchTooLarge:
			c.JSON(http.StatusBadRequest, gin.H{"error": e.Error()})
		default:
			details := make([]errorDetail, 0)
			if ar, ok := extractValidationErrors(err); ok {
				for _, ve := range ar {
					details = append(details, errorDetail{File: ve.File, Error: ve.Error})
				}
				c.JSON(http.StatusBadRequest, validationErrorsResponse{Error: "validation_error", Details: details})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	ids := make([]string, 0, len(res.AcceptedFileIDs))
	for _, id := range res.AcceptedFileIDs {
		ids = append(ids, id.String())
	}
	c.JSON(http.StatusOK, uploadResponse{
		FileIDs:    ids,
		Operator:   res.Operator,
		Status:     "queued",
		TotalFiles: len(ids),
	})
}

// extractValidationErrors unwraps the façade's all-rejected error into its
// per-file details, without voxhttp needing to know ingestion's internal
// error type name.
func extractValidationErrors(err error) ([]ingestion.ValidationError, bool) {
	type withErrors interface {
		ValidationErrors() []ingestion.ValidationError
	}
	if we, ok := err.(withErrors); ok {
		return we.ValidationErrors(), true
	}
	return nil, false
}
