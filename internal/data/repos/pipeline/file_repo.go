package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/voxpipe/voxpipe/internal/domain/pipeline"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
	"github.com/voxpipe/voxpipe/internal/platform/logger"
)

// ResultFilter captures the query parameters of GET /results (SPEC_FULL.md §6).
type ResultFilter struct {
	Operator  string
	Status    string
	DateFrom  *time.Time
	DateTo    *time.Time
	ScoreMin  *int
	ScoreMax  *int
	Query     string
	Page      int
	Limit     int
}

type FileRepo interface {
	Create(dbc dbctx.Context, f *types.File) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.File, error)
	// HashesNotFailed snapshots the set of file_hash values whose
	// status != failed, for the ingestion façade's dedup scan (I5).
	HashesNotFailed(dbc dbctx.Context) (map[string]uuid.UUID, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// ListRecoverable returns every File whose status is in the
	// mid-stage-running set, for crash recovery (§4.3).
	ListRecoverable(dbc dbctx.Context) ([]*types.File, error)
	List(dbc dbctx.Context, filter ResultFilter) ([]*types.File, int64, error)
	// GetByOrderID is the CRM bridge's primary correlation lookup
	// (SPEC_FULL.md §6.2).
	GetByOrderID(dbc dbctx.Context, orderID string) (*types.File, error)
	// FindNearestByPhones is the CRM bridge's fallback correlation when no
	// order_id match exists: the most recently created File within
	// window of now for the given caller/called phone pair that has no
	// order_id yet assigned.
	FindNearestByPhones(dbc dbctx.Context, callerPhone, calledPhone string, window time.Duration) (*types.File, error)
}

type fileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFileRepo(db *gorm.DB, baseLog *logger.Logger) FileRepo {
	return &fileRepo{db: db, log: baseLog.With("repo", "FileRepo")}
}

func (r *fileRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *fileRepo) Create(dbc dbctx.Context, f *types.File) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Create(f).Error
}

func (r *fileRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.File, error) {
	var f types.File
	if err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepo) HashesNotFailed(dbc dbctx.Context) (map[string]uuid.UUID, error) {
	var rows []types.File
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Select("id", "file_hash").
		Where("status <> ?", types.StatusFailed).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]uuid.UUID, len(rows))
	for _, row := range rows {
		out[row.FileHash] = row.ID
	}
	return out, nil
}

func (r *fileRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.File{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *fileRepo) ListRecoverable(dbc dbctx.Context) ([]*types.File, error) {
	var out []*types.File
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("status IN ?", types.RecoverableStatuses).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileRepo) GetByOrderID(dbc dbctx.Context, orderID string) (*types.File, error) {
	if orderID == "" {
		return nil, nil
	}
	var f types.File
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("order_id = ?", orderID).First(&f).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (r *fileRepo) FindNearestByPhones(dbc dbctx.Context, callerPhone, calledPhone string, window time.Duration) (*types.File, error) {
	if callerPhone == "" && calledPhone == "" {
		return nil, nil
	}
	var f types.File
	q := r.tx(dbc).WithContext(dbc.Ctx).
		Where("order_id = ''").
		Where("created_at >= ?", time.Now().Add(-window))
	if callerPhone != "" {
		q = q.Where("caller_phone = ?", callerPhone)
	}
	if calledPhone != "" {
		q = q.Where("called_phone = ?", calledPhone)
	}
	err := q.Order("created_at DESC").First(&f).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (r *fileRepo) List(dbc dbctx.Context, filter ResultFilter) ([]*types.File, int64, error) {
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	q := r.tx(dbc).WithContext(dbc.Ctx).Model(&types.File{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.DateFrom != nil {
		q = q.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		q = q.Where("created_at <= ?", *filter.DateTo)
	}
	if filter.Query != "" {
		q = q.Where("original_name ILIKE ?", "%"+filter.Query+"%")
	}
	if filter.Operator != "" {
		q = q.Joins("JOIN operators ON operators.id = files.operator_id").
			Where("operators.name ILIKE ?", "%"+filter.Operator+"%")
	}
	if filter.ScoreMin != nil || filter.ScoreMax != nil {
		q = q.Joins("JOIN analyses ON analyses.file_id = files.id")
		if filter.ScoreMin != nil {
			q = q.Where("analyses.overall >= ?", *filter.ScoreMin)
		}
		if filter.ScoreMax != nil {
			q = q.Where("analyses.overall <= ?", *filter.ScoreMax)
		}
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []*types.File
	err := q.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
