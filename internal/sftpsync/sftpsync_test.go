package sftpsync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"testing"
	"time"

	"github.com/google/uuid"

	repos "github.com/voxpipe/voxpipe/internal/data/repos/pipeline"
	pipelinetypes "github.com/voxpipe/voxpipe/internal/domain/pipeline"
	"github.com/voxpipe/voxpipe/internal/engines/probe"
	"github.com/voxpipe/voxpipe/internal/ingestion"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
	"github.com/voxpipe/voxpipe/internal/platform/logger"
	"github.com/voxpipe/voxpipe/internal/validator"
)

// fakeFileInfo is the minimal fs.FileInfo a fake remote directory listing
// needs to produce.
type fakeFileInfo struct {
	name  string
	isDir bool
}

func (fi fakeFileInfo) Name() string       { return fi.name }
func (fi fakeFileInfo) Size() int64        { return 0 }
func (fi fakeFileInfo) Mode() fs.FileMode  { return 0 }
func (fi fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (fi fakeFileInfo) IsDir() bool        { return fi.isDir }
func (fi fakeFileInfo) Sys() interface{}   { return nil }

// fakeRemote is an in-memory remoteFS: a map of directory path to entries,
// and a map of file path to content.
type fakeRemote struct {
	dirs    map[string][]fs.FileInfo
	content map[string][]byte
}

func (r *fakeRemote) ReadDir(path string) ([]fs.FileInfo, error) {
	entries, ok := r.dirs[path]
	if !ok {
		return nil, errors.New("no such directory: " + path)
	}
	return entries, nil
}

func (r *fakeRemote) Open(path string) (io.ReadCloser, error) {
	content, ok := r.content[path]
	if !ok {
		return nil, errors.New("no such file: " + path)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

type fakeFileRepo struct {
	files   map[uuid.UUID]*pipelinetypes.File
	updates map[uuid.UUID]map[string]interface{}
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{files: map[uuid.UUID]*pipelinetypes.File{}, updates: map[uuid.UUID]map[string]interface{}{}}
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
	return nil, nil
}
func (r *fakeFileRepo) FindNearestByPhones(dbc dbctx.Context, callerPhone, calledPhone string, window time.Duration) (*pipelinetypes.File, error) {
	return nil, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) Transaction(ctx context.Context, fn func(dbctx.Context) error) error {
	return fn(dbctx.Context{Ctx: ctx})
}

type fakeOperatorRepo struct{ names []string }

func (r *fakeOperatorRepo) GetOrCreateByName(dbc dbctx.Context, name string) (*pipelinetypes.Operator, error) {
	r.names = append(r.names, name)
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

func newSyncer(t *testing.T, remote *fakeRemote, operators *fakeOperatorRepo, files *fakeFileRepo) *Syncer {
	t.Helper()
	uploadsDir := t.TempDir()
	p := &probe.Mock{Result: probe.Result{DurationSec: 12, Channels: 2}}
	facade := ingestion.New(fakeTxRunner{}, testLogger(t), p, validator.DefaultConfig(), operators, files, uploadsDir, 20, &fakeQueue{})
	s := New(Config{RemoteDir: "/recordings"}, testLogger(t), facade)
	s.connect = func() (remoteFS, io.Closer, error) {
		return remote, noopCloser{}, nil
	}
	return s
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

func mp3Bytes() []byte {
	return append([]byte{0xFF, 0xFB}, make([]byte, 200)...)
}

func TestSyncOnceIngestsNewRecordingsPerOperator(t *testing.T) {
	remote := &fakeRemote{
		dirs: map[string][]fs.FileInfo{
			"/recordings": {fakeFileInfo{name: "alice", isDir: true}},
			"/recordings/alice": {
				fakeFileInfo{name: "call1.mp3"},
				fakeFileInfo{name: "call2.mp3"},
			},
		},
		content: map[string][]byte{
			"/recordings/alice/call1.mp3": mp3Bytes(),
			"/recordings/alice/call2.mp3": append(mp3Bytes(), 0x01),
		},
	}
	operators := &fakeOperatorRepo{}
	files := newFakeFileRepo()
	s := newSyncer(t, remote, operators, files)

	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}

	if len(operators.names) != 1 || operators.names[0] != "alice" {
		t.Fatalf("expected operator name derived from leaf dir 'alice', got %v", operators.names)
	}
	if len(files.files) != 2 {
		t.Fatalf("expected 2 files ingested, got %d", len(files.files))
	}
}

func TestSyncOnceSkipsAlreadySeenFiles(t *testing.T) {
	remote := &fakeRemote{
		dirs: map[string][]fs.FileInfo{
			"/recordings":       {fakeFileInfo{name: "bob", isDir: true}},
			"/recordings/bob":   {fakeFileInfo{name: "call1.mp3"}},
		},
		content: map[string][]byte{
			"/recordings/bob/call1.mp3": mp3Bytes(),
		},
	}
	operators := &fakeOperatorRepo{}
	files := newFakeFileRepo()
	s := newSyncer(t, remote, operators, files)

	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("first SyncOnce: %v", err)
	}
	if len(files.files) != 1 {
		t.Fatalf("expected 1 file after first sync, got %d", len(files.files))
	}

	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("second SyncOnce: %v", err)
	}
	if len(files.files) != 1 {
		t.Fatalf("expected still 1 file after re-polling an unchanged directory, got %d", len(files.files))
	}
}

func TestSyncOnceSkipsEmptyOperatorDirs(t *testing.T) {
	remote := &fakeRemote{
		dirs: map[string][]fs.FileInfo{
			"/recordings":         {fakeFileInfo{name: "empty", isDir: true}},
			"/recordings/empty":   {},
		},
	}
	operators := &fakeOperatorRepo{}
	files := newFakeFileRepo()
	s := newSyncer(t, remote, operators, files)

	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if len(operators.names) != 0 {
		t.Fatalf("expected no operator upsert for an empty directory, got %v", operators.names)
	}
}
