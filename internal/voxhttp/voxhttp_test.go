package voxhttp

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	repos "github.com/voxpipe/voxpipe/internal/data/repos/pipeline"
	pipelinetypes "github.com/voxpipe/voxpipe/internal/domain/pipeline"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
)

type fakeFileRepo struct {
	files map[uuid.UUID]*pipelinetypes.File
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{files: map[uuid.UUID]*pipelinetypes.File{}}
}

func (r *fakeFileRepo) Create(dbc dbctx.Context, f *pipelinetypes.File) error {
	r.files[f.ID] = f
	return nil
}
func (r *fakeFileRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*pipelinetypes.File, error) {
	f, ok := r.files[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return f, nil
}
func (r *fakeFileRepo) HashesNotFailed(dbc dbctx.Context) (map[string]uuid.UUID, error) {
	return nil, nil
}
func (r *fakeFileRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}
func (r *fakeFileRepo) ListRecoverable(dbc dbctx.Context) ([]*pipelinetypes.File, error) {
	return nil, nil
}
func (r *fakeFileRepo) List(dbc dbctx.Context, filter repos.ResultFilter) ([]*pipelinetypes.File, int64, error) {
	out := make([]*pipelinetypes.File, 0, len(r.files))
	for _, f := range r.files {
		out = append(out, f)
	}
	return out, int64(len(out)), nil
}
func (r *fakeFileRepo) GetByOrderID(dbc dbctx.Context, orderID string) (*pipelinetypes.File, error) {
	return nil, nil
}
func (r *fakeFileRepo) FindNearestByPhones(dbc dbctx.Context, callerPhone, calledPhone string, window time.Duration) (*pipelinetypes.File, error) {
	return nil, nil
}

type fakeOperatorRepo struct {
	byID map[uuid.UUID]*pipelinetypes.Operator
}

func newFakeOperatorRepo() *fakeOperatorRepo {
	return &fakeOperatorRepo{byID: map[uuid.UUID]*pipelinetypes.Operator{}}
}

func (r *fakeOperatorRepo) GetOrCreateByName(dbc dbctx.Context, name string) (*pipelinetypes.Operator, error) {
	return nil, nil
}
func (r *fakeOperatorRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*pipelinetypes.Operator, error) {
	op, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return op, nil
}
func (r *fakeOperatorRepo) Search(dbc dbctx.Context, q string, limit int) ([]*pipelinetypes.Operator, error) {
	out := make([]*pipelinetypes.Operator, 0, len(r.byID))
	for _, op := range r.byID {
		out = append(out, op)
	}
	return out, nil
}

type fakeTranscriptionRepo struct {
	byFileID map[uuid.UUID]*pipelinetypes.Transcription
}

func (r *fakeTranscriptionRepo) GetByFileID(dbc dbctx.Context, fileID uuid.UUID) (*pipelinetypes.Transcription, error) {
	return r.byFileID[fileID], nil
}
func (r *fakeTranscriptionRepo) Replace(dbc dbctx.Context, t *pipelinetypes.Transcription) error {
	return nil
}

type fakeDiarizationRepo struct {
	byFileID map[uuid.UUID]*pipelinetypes.Diarization
}

func (r *fakeDiarizationRepo) GetByFileID(dbc dbctx.Context, fileID uuid.UUID) (*pipelinetypes.Diarization, error) {
	return r.byFileID[fileID], nil
}
func (r *fakeDiarizationRepo) Replace(dbc dbctx.Context, d *pipelinetypes.Diarization) error {
	return nil
}

type fakeAnalysisRepo struct {
	byFileID map[uuid.UUID]*pipelinetypes.Analysis
}

func (r *fakeAnalysisRepo) GetByFileID(dbc dbctx.Context, fileID uuid.UUID) (*pipelinetypes.Analysis, error) {
	return r.byFileID[fileID], nil
}
func (r *fakeAnalysisRepo) Replace(dbc dbctx.Context, a *pipelinetypes.Analysis) error {
	return nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatusHandlerReturnsFileState(t *testing.T) {
	files := newFakeFileRepo()
	id := uuid.New()
	files.files[id] = &pipelinetypes.File{ID: id, Status: pipelinetypes.StatusDiarizing, Stage: pipelinetypes.StageTranscribed, Progress: 45}

	r := gin.New()
	r.GET("/status/:id", NewStatusHandler(files).Status)

	req := httptest.NewRequest(http.MethodGet, "/status/"+id.String(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"stage_name":"transcription"`) {
		t.Fatalf("expected stage_name in body, got %s", rec.Body.String())
	}
}

func TestStatusHandlerUnknownFileReturns404(t *testing.T) {
	r := gin.New()
	r.GET("/status/:id", NewStatusHandler(newFakeFileRepo()).Status)

	req := httptest.NewRequest(http.MethodGet, "/status/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusNotFound)
	}
}

func TestStatusHandlerInvalidIDReturns400(t *testing.T) {
	r := gin.New()
	r.GET("/status/:id", NewStatusHandler(newFakeFileRepo()).Status)

	req := httptest.NewRequest(http.MethodGet, "/status/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
}

func TestOperatorsHandlerListAndGet(t *testing.T) {
	operators := newFakeOperatorRepo()
	id := uuid.New()
	operators.byID[id] = &pipelinetypes.Operator{ID: id, Name: "Ivanova"}

	r := gin.New()
	h := NewOperatorsHandler(operators)
	r.GET("/operators", h.List)
	r.GET("/operators/:id", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/operators", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: unexpected status: got=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Ivanova") {
		t.Fatalf("expected operator name in list body, got %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/operators/"+id.String(), nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: unexpected status: got=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/operators/"+uuid.New().String(), nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get missing: unexpected status: got=%d", rec.Code)
	}
}

func TestResultsHandlerListIncludesOverallScore(t *testing.T) {
	files := newFakeFileRepo()
	id := uuid.New()
	files.files[id] = &pipelinetypes.File{ID: id, OriginalName: "call.wav", Status: pipelinetypes.StatusDone, Stage: pipelinetypes.StageDone}

	analyses := &fakeAnalysisRepo{byFileID: map[uuid.UUID]*pipelinetypes.Analysis{
		id: {FileID: id, Overall: 87},
	}}

	r := gin.New()
	h := NewResultsHandler(files, newFakeOperatorRepo(), &fakeTranscriptionRepo{byFileID: map[uuid.UUID]*pipelinetypes.Transcription{}}, &fakeDiarizationRepo{byFileID: map[uuid.UUID]*pipelinetypes.Diarization{}}, analyses)
	r.GET("/results", h.List)

	req := httptest.NewRequest(http.MethodGet, "/results", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"overall":87`) {
		t.Fatalf("expected overall score in body, got %s", rec.Body.String())
	}
}

func TestResultsHandlerDetailAssemblesArtefacts(t *testing.T) {
	files := newFakeFileRepo()
	id := uuid.New()
	files.files[id] = &pipelinetypes.File{ID: id, OriginalName: "call.wav", Status: pipelinetypes.StatusDone, Stage: pipelinetypes.StageDone}

	transcriptions := &fakeTranscriptionRepo{byFileID: map[uuid.UUID]*pipelinetypes.Transcription{
		id: {FileID: id, FullText: "hello there", Language: "en"},
	}}
	diarizations := &fakeDiarizationRepo{byFileID: map[uuid.UUID]*pipelinetypes.Diarization{
		id: {FileID: id, Method: pipelinetypes.MethodChannelSplit, NumSpeakers: 2, Segments: datatypes.JSON([]byte("[]"))},
	}}
	analyses := &fakeAnalysisRepo{byFileID: map[uuid.UUID]*pipelinetypes.Analysis{}}

	r := gin.New()
	h := NewResultsHandler(files, newFakeOperatorRepo(), transcriptions, diarizations, analyses)
	r.GET("/results/:id", h.Detail)

	req := httptest.NewRequest(http.MethodGet, "/results/"+id.String(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "hello there") {
		t.Fatalf("expected transcription text in body, got %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"method":"channel_split"`) {
		t.Fatalf("expected diarization method in body, got %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"analysis":`) {
		t.Fatalf("expected no analysis key when absent, got %s", rec.Body.String())
	}
}

func TestResultsHandlerDetailUnknownFileReturns404(t *testing.T) {
	r := gin.New()
	h := NewResultsHandler(newFakeFileRepo(), newFakeOperatorRepo(), &fakeTranscriptionRepo{}, &fakeDiarizationRepo{}, &fakeAnalysisRepo{})
	r.GET("/results/:id", h.Detail)

	req := httptest.NewRequest(http.MethodGet, "/results/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusNotFound)
	}
}

func TestAudioHandlerMissingFileReturns404(t *testing.T) {
	r := gin.New()
	r.GET("/audio/:id", NewAudioHandler(newFakeFileRepo()).Stream)

	req := httptest.NewRequest(http.MethodGet, "/audio/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusNotFound)
	}
}

func TestAudioHandlerMissingOnDiskReturns404(t *testing.T) {
	files := newFakeFileRepo()
	id := uuid.New()
	files.files[id] = &pipelinetypes.File{ID: id, AudioPath: "/nonexistent/path/does-not-exist.wav"}

	r := gin.New()
	r.GET("/audio/:id", NewAudioHandler(files).Stream)

	req := httptest.NewRequest(http.MethodGet, "/audio/"+id.String(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusNotFound)
	}
}

