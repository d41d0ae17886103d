package diarization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/voxpipe/voxpipe/internal/platform/logger"
)

// httpEngine calls a configurable diarization service over HTTP. No
// third-party Go client exists in the example pack for a pyannote-style
// diarization service (it is a Python/PyTorch library); SPEC_FULL.md §6.1
// names this as the one engine collaborator implemented directly on
// net/http rather than a pack dependency.
type httpEngine struct {
	log        *logger.Logger
	endpoint   string
	hfToken    string
	httpClient *http.Client
}

func NewHTTPEngine(log *logger.Logger, endpoint, hfToken string) Engine {
	return &httpEngine{
		log:        log.With("engine", "diarization_http"),
		endpoint:   endpoint,
		hfToken:    hfToken,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Available mirrors diarization.py: the engine is unusable without a
// credential, in which case the Orchestrator falls through to a
// single-speaker result (spec.md §4.4) rather than failing the job.
func (h *httpEngine) Available() bool {
	return h.endpoint != "" && h.hfToken != ""
}

type diarizeResponseTurn struct {
	Label    string  `json:"label"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

func (h *httpEngine) Diarize(ctx context.Context, audioPath string) ([]Turn, error) {
	content, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("diarization: read audio file: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("diarization: build multipart: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("diarization: write audio part: %w", err)
	}
	if err := writer.WriteField("hf_token", h.hfToken); err != nil {
		return nil, fmt.Errorf("diarization: write hf_token field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("diarization: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("diarization: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("diarization: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("diarization: service returned status %d", resp.StatusCode)
	}

	var parsed []diarizeResponseTurn
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("diarization: decode response: %w", err)
	}

	out := make([]Turn, 0, len(parsed))
	for _, t := range parsed {
		out = append(out, Turn{Label: t.Label, StartSec: t.StartSec, EndSec: t.EndSec})
	}
	return out, nil
}
