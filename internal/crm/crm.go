// Package crm implements the CRM webhook bridge (SPEC_FULL.md §6.2): an
// out-of-core collaborator that correlates a calltouch-style call event
// onto an existing File, or — when a recording is attached and no File
// exists yet for the order — downloads it and feeds it through the same
// Ingestion façade `/upload` uses. Grounded on
// original_source/backend/app/routers/calltouch.py and
// original_source/backend/app/services/calltouch_handler.py, narrowed
// from Calltouch's full UTM/ads metadata capture down to the five
// correlation columns SPEC_FULL.md §3.1 actually persists.
package crm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	repos "github.com/voxpipe/voxpipe/internal/data/repos/pipeline"
	"github.com/voxpipe/voxpipe/internal/ingestion"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
	"github.com/voxpipe/voxpipe/internal/platform/logger"
)

// correlationWindow bounds how far back FindNearestByPhones looks for a
// File to correlate against when order_id doesn't match anything yet —
// wide enough to cover upload-then-call-logged races, narrow enough that
// two unrelated calls from the same number on the same day don't collide.
const correlationWindow = 2 * time.Hour

// CallEvent is the webhook body's wire shape (SPEC_FULL.md §6.2).
type CallEvent struct {
	CallerPhone   string  `json:"caller_phone"`
	CalledPhone   string  `json:"called_phone"`
	OperatorPhone string  `json:"operator_phone"`
	Duration      float64 `json:"duration"`
	OrderID       string  `json:"order_id"`
	RecordURL     string  `json:"record_url"`
}

// Bridge serves POST /crm/webhook.
type Bridge struct {
	log     *logger.Logger
	files   repos.FileRepo
	facade  *ingestion.Facade
	fetcher func(url string) ([]byte, error)
}

func New(baseLog *logger.Logger, files repos.FileRepo, facade *ingestion.Facade) *Bridge {
	return &Bridge{log: baseLog.With("component", "CRMBridge"), files: files, facade: facade, fetcher: httpFetch}
}

func httpFetch(url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crm bridge: recording fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Webhook correlates the call event to an existing File by order_id,
// falling back to the nearest File for the phone pair within
// correlationWindow. If neither matches and a recording is attached, the
// recording is downloaded and submitted through Ingestion so it enters the
// pipeline exactly like an `/upload` blob.
func (b *Bridge) Webhook(c *gin.Context) {
	var evt CallEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call event: " + err.Error()})
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}

	f, err := b.files.GetByOrderID(dbc, evt.OrderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if f == nil {
		f, err = b.files.FindNearestByPhones(dbc, evt.CallerPhone, evt.CalledPhone, correlationWindow)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	if f != nil {
		updates := map[string]interface{}{
			"caller_phone":   evt.CallerPhone,
			"called_phone":   evt.CalledPhone,
			"operator_phone": evt.OperatorPhone,
			"order_id":       evt.OrderID,
		}
		if evt.Duration > 0 {
			updates["crm_duration_sec"] = evt.Duration
		}
		if err := b.files.UpdateFields(dbc, f.ID, updates); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "correlated", "file_id": f.ID.String()})
		return
	}

	if evt.RecordURL == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "no matching file and no recording"})
		return
	}

	content, err := b.fetcher(evt.RecordURL)
	if err != nil {
		b.log.Warn("crm bridge: fetching recording failed", "url", evt.RecordURL, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to download recording"})
		return
	}

	operatorName := evt.OperatorPhone
	if operatorName == "" {
		operatorName = "crm"
	}
	filename := evt.OrderID
	if filename == "" {
		filename = evt.CallerPhone
	}
	blob := ingestion.Blob{Filename: filename + ".mp3", Content: content}
	writeBlob := func(path string, data []byte) error { return os.WriteFile(path, data, 0o644) }

	res, err := b.facade.Submit(context.Background(), operatorName, []ingestion.Blob{blob}, writeBlob)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if res.AllRejected() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": "rejected", "errors": res.ValidationErrors})
		return
	}

	ids := make([]string, 0, len(res.AcceptedFileIDs))
	for _, id := range res.AcceptedFileIDs {
		ids = append(ids, id.String())
	}
	if len(ids) > 0 {
		if err := b.files.UpdateFields(dbc, res.AcceptedFileIDs[0], map[string]interface{}{
			"caller_phone":     evt.CallerPhone,
			"called_phone":     evt.CalledPhone,
			"operator_phone":   evt.OperatorPhone,
			"order_id":         evt.OrderID,
			"crm_duration_sec": evt.Duration,
		}); err != nil {
			b.log.Warn("crm bridge: failed to stamp CRM columns on new file", "file_id", ids[0], "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ingested", "file_ids": ids})
}
