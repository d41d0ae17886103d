package voxhttp

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	repos "github.com/voxpipe/voxpipe/internal/data/repos/pipeline"
	pipelinetypes "github.com/voxpipe/voxpipe/internal/domain/pipeline"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
)

// ResultsHandler serves GET /results and GET /results/{id}.
type ResultsHandler struct {
	files          repos.FileRepo
	operators      repos.OperatorRepo
	transcriptions repos.TranscriptionRepo
	diarizations   repos.DiarizationRepo
	analyses       repos.AnalysisRepo
}

func NewResultsHandler(files repos.FileRepo, operators repos.OperatorRepo, transcriptions repos.TranscriptionRepo, diarizations repos.DiarizationRepo, analyses repos.AnalysisRepo) *ResultsHandler {
	return &ResultsHandler{files: files, operators: operators, transcriptions: transcriptions, diarizations: diarizations, analyses: analyses}
}

func (h *ResultsHandler) List(c *gin.Context) {
	filter := repos.ResultFilter{
		Operator: c.Query("operator"),
		Status:   c.Query("status"),
		Query:    c.Query("q"),
		Page:     atoiDefault(c.Query("page"), 1),
		Limit:    atoiDefault(c.Query("limit"), 20),
	}
	if from := parseDate(c.Query("date_from")); from != nil {
		filter.DateFrom = from
	}
	if to := parseDate(c.Query("date_to")); to != nil {
		filter.DateTo = to
	}
	if min, ok := atoiOptional(c.Query("score_min")); ok {
		filter.ScoreMin = &min
	}
	if max, ok := atoiOptional(c.Query("score_max")); ok {
		filter.ScoreMax = &max
	}

	rows, total, err := h.files.List(dbctx.Context{Ctx: c.Request.Context()}, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results := make([]resultSummary, 0, len(rows))
	for _, f := range rows {
		summary := resultSummary{
			FileID:       f.ID.String(),
			OriginalName: f.OriginalName,
			Status:       f.Status,
			Stage:        f.Stage,
			CreatedAt:    f.CreatedAt,
		}
		if f.OperatorID != nil {
			if op, err := h.operators.GetByID(dbctx.Context{Ctx: c.Request.Context()}, *f.OperatorID); err == nil && op != nil {
				summary.Operator = op.Name
			}
		}
		if a, err := h.analyses.GetByFileID(dbctx.Context{Ctx: c.Request.Context()}, f.ID); err == nil && a != nil {
			overall := a.Overall
			summary.Overall = &overall
		}
		results = append(results, summary)
	}

	c.JSON(http.StatusOK, resultListResponse{
		Results: results,
		Total:   total,
		Page:    filter.Page,
		Limit:   filter.Limit,
	})
}

func (h *ResultsHandler) Detail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}

	f, err := h.files.GetByID(dbc, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	detail := resultDetailResponse{
		FileID:       f.ID.String(),
		OriginalName: f.OriginalName,
		Status:       f.Status,
		Stage:        f.Stage,
	}

	if t, err := h.transcriptions.GetByFileID(dbc, id); err == nil && t != nil {
		detail.Transcription = &transcriptionDetail{FullText: t.FullText, Language: t.Language}
	}
	if d, err := h.diarizations.GetByFileID(dbc, id); err == nil && d != nil {
		var segments []pipelinetypes.TranscriptSegment
		_ = json.Unmarshal(d.Segments, &segments)
		detail.Diarization = &diarizationDetail{
			Method:      d.Method,
			Confidence:  d.Confidence,
			NumSpeakers: d.NumSpeakers,
			Segments:    segments,
		}
	}
	if a, err := h.analyses.GetByFileID(dbc, id); err == nil && a != nil {
		var quotes []pipelinetypes.Quote
		_ = json.Unmarshal(a.Quotes, &quotes)
		detail.Analysis = &analysisDetail{
			Standard: a.Standard,
			Loyalty:  a.Loyalty,
			Kindness: a.Kindness,
			Overall:  a.Overall,
			Summary:  a.Summary,
			Quotes:   quotes,
			Partial:  a.Partial,
			Model:    a.LLMModel,
		}
	}

	c.JSON(http.StatusOK, detail)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func atoiOptional(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
