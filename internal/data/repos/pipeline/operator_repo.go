package pipeline

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/voxpipe/voxpipe/internal/domain/pipeline"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
	"github.com/voxpipe/voxpipe/internal/platform/logger"
)

type OperatorRepo interface {
	// GetOrCreateByName implements the first-wins upsert: select by trimmed
	// name, create and flush if missing. Matches the original's
	// _get_or_create_operator exactly (no unique constraint is relied on).
	GetOrCreateByName(dbc dbctx.Context, name string) (*types.Operator, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Operator, error)
	Search(dbc dbctx.Context, q string, limit int) ([]*types.Operator, error)
}

type operatorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOperatorRepo(db *gorm.DB, baseLog *logger.Logger) OperatorRepo {
	return &operatorRepo{db: db, log: baseLog.With("repo", "OperatorRepo")}
}

func (r *operatorRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *operatorRepo) GetOrCreateByName(dbc dbctx.Context, name string) (*types.Operator, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, gorm.ErrInvalidData
	}
	tx := r.tx(dbc).WithContext(dbc.Ctx)

	var op types.Operator
	err := tx.Where("name = ?", name).Order("created_at ASC").Limit(1).Find(&op).Error
	if err != nil {
		return nil, err
	}
	if op.ID != uuid.Nil {
		return &op, nil
	}

	op = types.Operator{Name: name}
	if err := tx.Create(&op).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *operatorRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Operator, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var op types.Operator
	if err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&op).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *operatorRepo) Search(dbc dbctx.Context, q string, limit int) ([]*types.Operator, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.Operator
	tx := r.tx(dbc).WithContext(dbc.Ctx).Order("name ASC").Limit(limit)
	if q = strings.TrimSpace(q); q != "" {
		tx = tx.Where("name ILIKE ?", "%"+q+"%")
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
