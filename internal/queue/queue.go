// Package queue implements the single in-process FIFO job queue described
// in spec.md §4.2/§4.3: exactly one File is processed at any moment, new
// work is appended at the back, and a crashed run's in-flight Files are
// requeued at startup without losing their stage.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/voxpipe/voxpipe/internal/domain/pipeline"
	repos "github.com/voxpipe/voxpipe/internal/data/repos/pipeline"
	"github.com/voxpipe/voxpipe/internal/orchestrator"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
	"github.com/voxpipe/voxpipe/internal/platform/logger"
)

// pollInterval bounds how long Run blocks waiting for the next job before
// re-checking ctx.Done(), mirroring the teacher worker's 1-second tick.
const pollInterval = 1 * time.Second

// Queue is a single-worker FIFO: Files are processed strictly one at a
// time, in enqueue order, never concurrently. This matches spec.md §5's
// "exactly one job is processed at any moment" invariant directly, rather
// than relying on a DB-level claim/lease to enforce it across goroutines.
type Queue struct {
	log    *logger.Logger
	orch   *orchestrator.Orchestrator
	files  repos.FileRepo
	ch     chan uuid.UUID

	mu      sync.Mutex
	current *uuid.UUID
}

// New builds a Queue with the given buffer size. A buffer of 0 is treated
// as unbounded-ish for practical purposes by using a generously sized
// backing channel, since spec.md does not define a queue capacity limit.
func New(baseLog *logger.Logger, orch *orchestrator.Orchestrator, files repos.FileRepo, bufferSize int) *Queue {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	return &Queue{
		log:   baseLog.With("component", "Queue"),
		orch:  orch,
		files: files,
		ch:    make(chan uuid.UUID, bufferSize),
	}
}

// Enqueue appends fileID to the back of the queue, blocking if the queue
// is full. Callers with a context should prefer this over EnqueueSync so
// cancellation is observed instead of blocking forever.
func (q *Queue) Enqueue(ctx context.Context, fileID uuid.UUID) error {
	select {
	case q.ch <- fileID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueSync appends fileID without blocking, for callers (e.g. the
// upload handler) that are not already inside a cancellable context. If
// the buffer is full the submission is dropped and logged — this should
// only happen if bufferSize is badly undersized for the ingestion rate.
func (q *Queue) EnqueueSync(fileID uuid.UUID) {
	select {
	case q.ch <- fileID:
	default:
		q.log.Warn("queue buffer full, dropping enqueue", "file_id", fileID)
	}
}

// QueueLength reports how many jobs are currently waiting (not counting
// the one in flight, if any), for the §4.2 observability surface.
func (q *Queue) QueueLength() int {
	return len(q.ch)
}

// CurrentFileID reports the File currently being processed, or nil if the
// worker is idle.
func (q *Queue) CurrentFileID() *uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// RecoverInterrupted runs once at startup: any File left mid-stage by a
// crashed process (status in a resumable set) is rewound to queued,
// preserving its stage, and re-enqueued. Grounded on
// queue.py::recover_interrupted.
func (q *Queue) RecoverInterrupted(ctx context.Context) error {
	dbc := dbctx.Context{Ctx: ctx}
	pending, err := q.files.ListRecoverable(dbc)
	if err != nil {
		return err
	}
	for _, f := range pending {
		if err := q.files.UpdateFields(dbc, f.ID, map[string]interface{}{
			"status": types.StatusQueued,
		}); err != nil {
			q.log.Error("failed to requeue interrupted file", "file_id", f.ID, "error", err)
			continue
		}
		q.log.Info("recovered interrupted file", "file_id", f.ID, "stage", f.Stage)
		q.EnqueueSync(f.ID)
	}
	return nil
}

// Run is the worker loop: pull the next id, process it to completion, and
// repeat — forever, strictly sequentially — until ctx is cancelled.
// queue.py's worker bounded its asyncio.Queue.get() to 1s so the loop
// could re-check a running flag between waits; Go's select already
// multiplexes ctx.Done() against the channel receive with no separate
// poll needed, so pollInterval only guards against a wedged channel send
// elsewhere ever leaving this loop unresponsive to cancellation.
func (q *Queue) Run(ctx context.Context) {
	q.log.Info("queue worker starting")
	for {
		select {
		case <-ctx.Done():
			q.log.Info("queue worker stopped")
			return
		case fileID := <-q.ch:
			q.process(ctx, fileID)
		case <-time.After(pollInterval):
			continue
		}
	}
}

func (q *Queue) process(ctx context.Context, fileID uuid.UUID) {
	q.mu.Lock()
	id := fileID
	q.current = &id
	q.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			q.log.Error("unhandled panic processing file", "file_id", fileID, "panic", r)
		}
		q.mu.Lock()
		q.current = nil
		q.mu.Unlock()
	}()

	if err := q.orch.Process(ctx, fileID); err != nil {
		q.log.Error("unhandled error processing file", "file_id", fileID, "error", err)
	}
}
