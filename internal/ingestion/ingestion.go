// Package ingestion implements the batch-intake façade (spec.md §4.2):
// operator upsert, per-blob validate-and-persist-or-record-error, and
// queue hand-off, all inside one logical transaction. Grounded on
// original_source/backend/app/routers/upload.py::upload_files.
package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	repos "github.com/voxpipe/voxpipe/internal/data/repos/pipeline"
	pipelinetypes "github.com/voxpipe/voxpipe/internal/domain/pipeline"
	"github.com/voxpipe/voxpipe/internal/engines/probe"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
	"github.com/voxpipe/voxpipe/internal/platform/logger"
	"github.com/voxpipe/voxpipe/internal/validator"
)

// Blob is one named file in a batch submission.
type Blob struct {
	Filename string
	Content  []byte
}

// ValidationError reports why one blob in a batch was rejected.
type ValidationError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Result is the outcome of one batch submission.
type Result struct {
	AcceptedFileIDs  []uuid.UUID
	ValidationErrors []ValidationError
	Operator         string
}

// AllRejected reports whether every blob in the batch failed validation
// (spec.md §4.2 step 4: "abort the transaction and surface the errors").
func (r Result) AllRejected() bool {
	return len(r.AcceptedFileIDs) == 0 && len(r.ValidationErrors) > 0
}

// ErrBatchTooLarge is returned before any validation runs, matching
// upload.py's pre-validation "too many files" check.
type ErrBatchTooLarge struct {
	Submitted, Max int
}

func (e *ErrBatchTooLarge) Error() string {
	return fmt.Sprintf("too many files: %d submitted, max %d per batch", e.Submitted, e.Max)
}

// ErrEmptyOperatorName mirrors upload.py's 422 on a blank operator_name.
type ErrEmptyOperatorName struct{}

func (ErrEmptyOperatorName) Error() string { return "operator_name must not be empty" }

// TxRunner runs fn inside one committed unit of work. Isolated behind an
// interface, like the orchestrator's own TxRunner, so the façade's
// transactional logic can be unit-tested against in-memory fakes.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(dbctx.Context) error) error
}

// GormTxRunner is the real binding, used in production wiring.
type GormTxRunner struct {
	DB *gorm.DB
}

func (r *GormTxRunner) Transaction(ctx context.Context, fn func(dbctx.Context) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

// Enqueuer is the narrow slice of Queue the façade needs: a non-blocking
// hand-off of a newly queued File id to the worker.
type Enqueuer interface {
	EnqueueSync(fileID uuid.UUID)
}

// Facade wires the Store, Validator, and Queue together.
type Facade struct {
	tx    TxRunner
	log   *logger.Logger
	probe probe.Probe
	vcfg  validator.Config

	operators     repos.OperatorRepo
	files         repos.FileRepo
	uploadsDir    string
	maxBatchSize  int

	queue Enqueuer
}

func New(
	tx TxRunner,
	baseLog *logger.Logger,
	p probe.Probe,
	vcfg validator.Config,
	operators repos.OperatorRepo,
	files repos.FileRepo,
	uploadsDir string,
	maxBatchSize int,
	queue Enqueuer,
) *Facade {
	if maxBatchSize <= 0 {
		maxBatchSize = 20
	}
	return &Facade{
		tx:           tx,
		log:          baseLog.With("component", "Ingestion"),
		probe:        p,
		vcfg:         vcfg,
		operators:    operators,
		files:        files,
		uploadsDir:   uploadsDir,
		maxBatchSize: maxBatchSize,
		queue:        queue,
	}
}

// blobPath returns the stable path under uploadsDir derived from fileID
// and the lower-cased extension, matching upload.py's _save_file_to_disk.
// The disk write itself is the writeBlob callback passed to Submit.
func (f *Facade) blobPath(fileID uuid.UUID, ext string) string {
	return filepath.Join(f.uploadsDir, fileID.String()+ext)
}

// Submit runs the full §4.2 sequence for one batch. writeBlob performs the
// actual disk write; injected so tests can avoid touching the filesystem.
func (f *Facade) Submit(ctx context.Context, operatorName string, blobs []Blob, writeBlob func(path string, content []byte) error) (Result, error) {
	operatorName = strings.TrimSpace(operatorName)
	if operatorName == "" {
		return Result{}, ErrEmptyOperatorName{}
	}
	if len(blobs) > f.maxBatchSize {
		return Result{}, &ErrBatchTooLarge{Submitted: len(blobs), Max: f.maxBatchSize}
	}

	var result Result
	var newlyQueued []uuid.UUID

	err := f.tx.Transaction(ctx, func(dbc dbctx.Context) error {
		op, err := f.operators.GetOrCreateByName(dbc, operatorName)
		if err != nil {
			return fmt.Errorf("ingestion: upsert operator: %w", err)
		}
		result.Operator = op.Name

		hashToID, err := f.files.HashesNotFailed(dbc)
		if err != nil {
			return fmt.Errorf("ingestion: snapshot hashes: %w", err)
		}
		if hashToID == nil {
			hashToID = map[string]uuid.UUID{}
		}
		existing := make(map[string]bool, len(hashToID))
		for h := range hashToID {
			existing[h] = true
		}

		for _, blob := range blobs {
			filename := blob.Filename
			if filename == "" {
				filename = "unknown"
			}

			res := validator.Validate(ctx, f.probe, f.vcfg, filename, blob.Content, existing)
			if !res.Valid {
				if strings.HasPrefix(res.Error, validator.DuplicatePrefix) {
					hash := strings.TrimPrefix(res.Error, validator.DuplicatePrefix)
					if existingID, ok := hashToID[hash]; ok {
						result.AcceptedFileIDs = append(result.AcceptedFileIDs, existingID)
						continue
					}
				}
				result.ValidationErrors = append(result.ValidationErrors, ValidationError{File: filename, Error: res.Error})
				continue
			}

			fileID := uuid.New()
			ext := strings.ToLower(filepath.Ext(filename))
			path := f.blobPath(fileID, ext)
			if err := writeBlob(path, blob.Content); err != nil {
				result.ValidationErrors = append(result.ValidationErrors, ValidationError{File: filename, Error: "failed to persist file: " + err.Error()})
				continue
			}

			opID := op.ID
			newFile := &pipelinetypes.File{
				ID:           fileID,
				OperatorID:   &opID,
				OriginalName: filename,
				FileHash:     res.FileHash,
				FileSize:     int64(len(blob.Content)),
				DurationSec:  &res.DurationSec,
				AudioPath:    path,
				Status:       pipelinetypes.StatusQueued,
				Stage:        pipelinetypes.StageUploaded,
			}
			if err := f.files.Create(dbc, newFile); err != nil {
				return fmt.Errorf("ingestion: insert file %s: %w", filename, err)
			}

			hashToID[res.FileHash] = fileID
			existing[res.FileHash] = true
			result.AcceptedFileIDs = append(result.AcceptedFileIDs, fileID)
			newlyQueued = append(newlyQueued, fileID)
		}

		if result.AllRejected() {
			return &allRejectedError{Errors: result.ValidationErrors}
		}
		return nil
	})
	if err != nil {
		var rejected *allRejectedError
		if asAllRejected(err, &rejected) {
			return Result{Operator: operatorName, ValidationErrors: rejected.Errors}, rejected
		}
		return Result{}, err
	}

	for _, id := range newlyQueued {
		f.queue.EnqueueSync(id)
	}
	return result, nil
}

// allRejectedError carries the batch's validation errors back out of the
// transaction when every blob was rejected (spec.md §4.2 step 4).
type allRejectedError struct {
	Errors []ValidationError
}

func (e *allRejectedError) Error() string {
	return fmt.Sprintf("all %d files in batch failed validation", len(e.Errors))
}

// ValidationErrors exposes the per-file rejection reasons, for callers
// (the HTTP layer) that need to report them without depending on this
// unexported error type directly.
func (e *allRejectedError) ValidationErrors() []ValidationError {
	return e.Errors
}

func asAllRejected(err error, target **allRejectedError) bool {
	if e, ok := err.(*allRejectedError); ok {
		*target = e
		return true
	}
	return false
}
