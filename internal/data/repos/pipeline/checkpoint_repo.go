package pipeline

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/voxpipe/voxpipe/internal/domain/pipeline"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
	"github.com/voxpipe/voxpipe/internal/platform/logger"
)

// TranscriptionRepo, DiarizationRepo and AnalysisRepo each persist a
// checkpoint artefact with delete-then-insert semantics (spec.md §3:
// "re-runs delete-then-insert atomically"). A missing row at a stage whose
// prior stage >= that stage signals "checkpoint artefact missing on resume"
// (§7), handled by the Orchestrator re-running the stage from scratch.

type TranscriptionRepo interface {
	GetByFileID(dbc dbctx.Context, fileID uuid.UUID) (*types.Transcription, error)
	Replace(dbc dbctx.Context, t *types.Transcription) error
}

type DiarizationRepo interface {
	GetByFileID(dbc dbctx.Context, fileID uuid.UUID) (*types.Diarization, error)
	Replace(dbc dbctx.Context, d *types.Diarization) error
}

type AnalysisRepo interface {
	GetByFileID(dbc dbctx.Context, fileID uuid.UUID) (*types.Analysis, error)
	Replace(dbc dbctx.Context, a *types.Analysis) error
}

type transcriptionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTranscriptionRepo(db *gorm.DB, baseLog *logger.Logger) TranscriptionRepo {
	return &transcriptionRepo{db: db, log: baseLog.With("repo", "TranscriptionRepo")}
}

func (r *transcriptionRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *transcriptionRepo) GetByFileID(dbc dbctx.Context, fileID uuid.UUID) (*types.Transcription, error) {
	var t types.Transcription
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("file_id = ?", fileID).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transcriptionRepo) Replace(dbc dbctx.Context, t *types.Transcription) error {
	tx := r.tx(dbc).WithContext(dbc.Ctx)
	if err := tx.Where("file_id = ?", t.FileID).Delete(&types.Transcription{}).Error; err != nil {
		return err
	}
	return tx.Create(t).Error
}

type diarizationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDiarizationRepo(db *gorm.DB, baseLog *logger.Logger) DiarizationRepo {
	return &diarizationRepo{db: db, log: baseLog.With("repo", "DiarizationRepo")}
}

func (r *diarizationRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *diarizationRepo) GetByFileID(dbc dbctx.Context, fileID uuid.UUID) (*types.Diarization, error) {
	var d types.Diarization
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("file_id = ?", fileID).First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *diarizationRepo) Replace(dbc dbctx.Context, d *types.Diarization) error {
	tx := r.tx(dbc).WithContext(dbc.Ctx)
	if err := tx.Where("file_id = ?", d.FileID).Delete(&types.Diarization{}).Error; err != nil {
		return err
	}
	return tx.Create(d).Error
}

type analysisRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisRepo {
	return &analysisRepo{db: db, log: baseLog.With("repo", "AnalysisRepo")}
}

func (r *analysisRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *analysisRepo) GetByFileID(dbc dbctx.Context, fileID uuid.UUID) (*types.Analysis, error) {
	var a types.Analysis
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("file_id = ?", fileID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *analysisRepo) Replace(dbc dbctx.Context, a *types.Analysis) error {
	tx := r.tx(dbc).WithContext(dbc.Ctx)
	if err := tx.Where("file_id = ?", a.FileID).Delete(&types.Analysis{}).Error; err != nil {
		return err
	}
	return tx.Create(a).Error
}
