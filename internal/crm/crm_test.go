package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	repos "github.com/voxpipe/voxpipe/internal/data/repos/pipeline"
	pipelinetypes "github.com/voxpipe/voxpipe/internal/domain/pipeline"
	"github.com/voxpipe/voxpipe/internal/engines/probe"
	"github.com/voxpipe/voxpipe/internal/ingestion"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
	"github.com/voxpipe/voxpipe/internal/platform/logger"
	"github.com/voxpipe/voxpipe/internal/validator"
)

type fakeFileRepo struct {
	files       map[uuid.UUID]*pipelinetypes.File
	updates     map[uuid.UUID]map[string]interface{}
	byOrderID   map[string]*pipelinetypes.File
	nearestFile *pipelinetypes.File
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{
		files:     map[uuid.UUID]*pipelinetypes.File{},
		updates:   map[uuid.UUID]map[string]interface{}{},
		byOrderID: map[string]*pipelinetypes.File{},
	}
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
	r.updates[id] = updates
	return nil
}
func (r *fakeFileRepo) ListRecoverable(dbc dbctx.Context) ([]*pipelinetypes.File, error) {
	return nil, nil
}
func (r *fakeFileRepo) List(dbc dbctx.Context, filter repos.ResultFilter) ([]*pipelinetypes.File, int64, error) {
	return nil, 0, nil
}
func (r *fakeFileRepo) GetByOrderID(dbc dbctx.Context, orderID string) (*pipelinetypes.File, error) {
	return r.byOrderID[orderID], nil
}
func (r *fakeFileRepo) FindNearestByPhones(dbc dbctx.Context, callerPhone, calledPhone string, window time.Duration) (*pipelinetypes.File, error) {
	return r.nearestFile, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) Transaction(ctx context.Context, fn func(dbctx.Context) error) error {
	return fn(dbctx.Context{Ctx: ctx})
}

type fakeOperatorRepo struct{}

func (fakeOperatorRepo) GetOrCreateByName(dbc dbctx.Context, name string) (*pipelinetypes.Operator, error) {
	return &pipelinetypes.Operator{ID: uuid.New(), Name: name}, nil
}
func (fakeOperatorRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*pipelinetypes.Operator, error) {
	return nil, nil
}
func (fakeOperatorRepo) Search(dbc dbctx.Context, q string, limit int) ([]*pipelinetypes.Operator, error) {
	return nil, nil
}

type fakeQueue struct{ enqueued []uuid.UUID }

func (q *fakeQueue) EnqueueSync(fileID uuid.UUID) { q.enqueued = append(q.enqueued, fileID) }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func newBridge(t *testing.T, files *fakeFileRepo) *Bridge {
	t.Helper()
	uploadsDir := t.TempDir()
	p := &probe.Mock{Result: probe.Result{DurationSec: 10, Channels: 2}}
	facade := ingestion.New(fakeTxRunner{}, testLogger(t), p, validator.DefaultConfig(), fakeOperatorRepo{}, files, uploadsDir, 20, &fakeQueue{})
	b := New(testLogger(t), files, facade)
	return b
}

func init() {
	gin.SetMode(gin.TestMode)
}

func postEvent(r *gin.Engine, evt CallEvent) *httptest.ResponseRecorder {
	body, _ := json.Marshal(evt)
	req := httptest.NewRequest(http.MethodPost, "/crm/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestWebhookCorrelatesByOrderID(t *testing.T) {
	files := newFakeFileRepo()
	id := uuid.New()
	f := &pipelinetypes.File{ID: id, OrderID: "ORD-1"}
	files.files[id] = f
	files.byOrderID["ORD-1"] = f

	b := newBridge(t, files)
	r := gin.New()
	r.POST("/crm/webhook", b.Webhook)

	rec := postEvent(r, CallEvent{CallerPhone: "+70000000001", OrderID: "ORD-1", Duration: 42})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	updates, ok := files.updates[id]
	if !ok {
		t.Fatalf("expected File %s to receive an update", id)
	}
	if updates["caller_phone"] != "+70000000001" {
		t.Fatalf("expected caller_phone to be stamped, got %v", updates["caller_phone"])
	}
}

func TestWebhookFallsBackToNearestByPhones(t *testing.T) {
	files := newFakeFileRepo()
	id := uuid.New()
	f := &pipelinetypes.File{ID: id}
	files.files[id] = f
	files.nearestFile = f

	b := newBridge(t, files)
	r := gin.New()
	r.POST("/crm/webhook", b.Webhook)

	rec := postEvent(r, CallEvent{CallerPhone: "+70000000002", CalledPhone: "+70000000003"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if _, ok := files.updates[id]; !ok {
		t.Fatalf("expected the nearest File to be correlated")
	}
}

func TestWebhookNoMatchNoRecordingIsIgnored(t *testing.T) {
	files := newFakeFileRepo()
	b := newBridge(t, files)
	r := gin.New()
	r.POST("/crm/webhook", b.Webhook)

	rec := postEvent(r, CallEvent{CallerPhone: "+70000000004"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"status":"ignored"`)) {
		t.Fatalf("expected ignored status, got %s", rec.Body.String())
	}
}

func TestWebhookIngestsRecordingWhenNoFileMatches(t *testing.T) {
	audioServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write(append([]byte{0xFF, 0xFB}, make([]byte, 100)...))
	}))
	defer audioServer.Close()

	files := newFakeFileRepo()
	b := newBridge(t, files)
	r := gin.New()
	r.POST("/crm/webhook", b.Webhook)

	rec := postEvent(r, CallEvent{CallerPhone: "+70000000005", OrderID: "ORD-9", RecordURL: audioServer.URL})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"status":"ingested"`)) {
		t.Fatalf("expected ingested status, got %s", rec.Body.String())
	}
	if len(files.files) != 1 {
		t.Fatalf("expected 1 new File to be persisted, got %d", len(files.files))
	}
}
