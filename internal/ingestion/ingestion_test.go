package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	repos "github.com/voxpipe/voxpipe/internal/data/repos/pipeline"
	pipelinetypes "github.com/voxpipe/voxpipe/internal/domain/pipeline"
	"github.com/voxpipe/voxpipe/internal/engines/probe"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
	"github.com/voxpipe/voxpipe/internal/platform/logger"
	"github.com/voxpipe/voxpipe/internal/validator"
)

type fakeTxRunner struct{}

func (fakeTxRunner) Transaction(ctx context.Context, fn func(dbctx.Context) error) error {
	return fn(dbctx.Context{Ctx: ctx})
}

type fakeOperatorRepo struct {
	byName map[string]*pipelinetypes.Operator
}

func newFakeOperatorRepo() *fakeOperatorRepo {
	return &fakeOperatorRepo{byName: map[string]*pipelinetypes.Operator{}}
}

func (r *fakeOperatorRepo) GetOrCreateByName(dbc dbctx.Context, name string) (*pipelinetypes.Operator, error) {
	if op, ok := r.byName[name]; ok {
		return op, nil
	}
	op := &pipelinetypes.Operator{ID: uuid.New(), Name: name}
	r.byName[name] = op
	return op, nil
}
func (r *fakeOperatorRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*pipelinetypes.Operator, error) {
	return nil, nil
}
func (r *fakeOperatorRepo) Search(dbc dbctx.Context, q string, limit int) ([]*pipelinetypes.Operator, error) {
	return nil, nil
}

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
	out := make(map[string]uuid.UUID)
	for _, f := range r.files {
		if f.Status != pipelinetypes.StatusFailed {
			out[f.FileHash] = f.ID
		}
	}
	return out, nil
}
func (r *fakeFileRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}
func (r *fakeFileRepo) ListRecoverable(dbc dbctx.Context) ([]*pipelinetypes.File, error) {
	return nil, nil
}
func (r *fakeFileRepo) List(dbc dbctx.Context, filter repos.ResultFilter) ([]*pipelinetypes.File, int64, error) {
	return nil, 0, nil
}
func (r *fakeFileRepo) GetByOrderID(dbc dbctx.Context, orderID string) (*pipelinetypes.File, error) {
	return nil, nil
}
func (r *fakeFileRepo) FindNearestByPhones(dbc dbctx.Context, callerPhone, calledPhone string, window time.Duration) (*pipelinetypes.File, error) {
	return nil, nil
}

type fakeQueue struct {
	enqueued []uuid.UUID
}

func (q *fakeQueue) EnqueueSync(fileID uuid.UUID) {
	q.enqueued = append(q.enqueued, fileID)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func wavBlob(name string, extra byte) Blob {
	content := append([]byte("RIFF"), make([]byte, 100)...)
	content[50] = extra // vary content so distinct blobs hash differently
	return Blob{Filename: name, Content: content}
}

func newFacade(t *testing.T, files *fakeFileRepo, queue *fakeQueue) *Facade {
	t.Helper()
	p := &probe.Mock{Result: probe.Result{DurationSec: 10, Channels: 2}}
	return New(fakeTxRunner{}, testLogger(t), p, validator.DefaultConfig(), newFakeOperatorRepo(), files, "/tmp/uploads", 20, queue)
}

func noopWrite(path string, content []byte) error { return nil }

func TestSubmitAcceptsValidBlobsAndEnqueues(t *testing.T) {
	files := newFakeFileRepo()
	q := &fakeQueue{}
	f := newFacade(t, files, q)

	res, err := f.Submit(context.Background(), "  Ivanova  ", []Blob{wavBlob("a.wav", 1), wavBlob("b.wav", 2)}, noopWrite)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(res.AcceptedFileIDs) != 2 {
		t.Fatalf("expected 2 accepted files, got %d", len(res.AcceptedFileIDs))
	}
	if res.Operator != "Ivanova" {
		t.Fatalf("expected trimmed operator name, got %q", res.Operator)
	}
	if len(q.enqueued) != 2 {
		t.Fatalf("expected 2 enqueued files, got %d", len(q.enqueued))
	}
	if len(files.files) != 2 {
		t.Fatalf("expected 2 persisted File rows, got %d", len(files.files))
	}
}

func TestSubmitRejectsEmptyOperatorName(t *testing.T) {
	f := newFacade(t, newFakeFileRepo(), &fakeQueue{})
	_, err := f.Submit(context.Background(), "   ", []Blob{wavBlob("a.wav", 1)}, noopWrite)
	if _, ok := err.(ErrEmptyOperatorName); !ok {
		t.Fatalf("expected ErrEmptyOperatorName, got %v", err)
	}
}

func TestSubmitRejectsOversizedBatchBeforeValidation(t *testing.T) {
	f := newFacade(t, newFakeFileRepo(), &fakeQueue{})
	blobs := make([]Blob, 21)
	for i := range blobs {
		blobs[i] = wavBlob("x.wav", byte(i))
	}
	_, err := f.Submit(context.Background(), "op", blobs, noopWrite)
	var tooLarge *ErrBatchTooLarge
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
}

func TestSubmitDeduplicatesAcrossBatch(t *testing.T) {
	files := newFakeFileRepo()
	q := &fakeQueue{}
	f := newFacade(t, files, q)

	blob := wavBlob("dup.wav", 7)
	dupBlob := Blob{Filename: "dup-again.wav", Content: blob.Content}

	res, err := f.Submit(context.Background(), "op", []Blob{blob, dupBlob}, noopWrite)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(res.AcceptedFileIDs) != 2 {
		t.Fatalf("expected 2 accepted ids (one new, one pointing at the dup), got %d", len(res.AcceptedFileIDs))
	}
	if res.AcceptedFileIDs[0] != res.AcceptedFileIDs[1] {
		t.Fatalf("expected both accepted ids to point at the same File, got %v and %v", res.AcceptedFileIDs[0], res.AcceptedFileIDs[1])
	}
	if len(files.files) != 1 {
		t.Fatalf("expected only 1 persisted File row for the duplicate pair, got %d", len(files.files))
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("expected only the new file to be enqueued, got %d", len(q.enqueued))
	}
}

func TestSubmitRecordsErrorForBadExtensionAndStillAcceptsRest(t *testing.T) {
	files := newFakeFileRepo()
	q := &fakeQueue{}
	f := newFacade(t, files, q)

	good := wavBlob("good.wav", 3)
	bad := Blob{Filename: "bad.txt", Content: []byte("not audio")}

	res, err := f.Submit(context.Background(), "op", []Blob{good, bad}, noopWrite)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(res.AcceptedFileIDs) != 1 {
		t.Fatalf("expected 1 accepted file, got %d", len(res.AcceptedFileIDs))
	}
	if len(res.ValidationErrors) != 1 || res.ValidationErrors[0].File != "bad.txt" {
		t.Fatalf("expected 1 validation error for bad.txt, got %+v", res.ValidationErrors)
	}
}

func TestSubmitAbortsWhenEverythingFails(t *testing.T) {
	files := newFakeFileRepo()
	q := &fakeQueue{}
	f := newFacade(t, files, q)

	bad := Blob{Filename: "bad.txt", Content: []byte("not audio")}
	_, err := f.Submit(context.Background(), "op", []Blob{bad}, noopWrite)
	if err == nil {
		t.Fatalf("expected an error when every blob is rejected")
	}
	if len(files.files) != 0 {
		t.Fatalf("expected no File rows persisted on full rejection, got %d", len(files.files))
	}
	if len(q.enqueued) != 0 {
		t.Fatalf("expected nothing enqueued on full rejection, got %d", len(q.enqueued))
	}
}
